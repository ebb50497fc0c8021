package extractor

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"zkcred-be/pkg/claim"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// GradePortal logs into an authenticated student portal and reads a grade
// point value off the results page.
type GradePortal struct {
	Label            string
	LoginURL         string
	ResultsURL       string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	Pattern          *regexp.Regexp

	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	PreLoginDelay     time.Duration
	SettleDelay       time.Duration
}

func (p *GradePortal) Name() string  { return p.Label }
func (p *GradePortal) Stealth() bool { return false }

func (p *GradePortal) Run(ctx context.Context, page *rod.Page, auth Auth, logf func(string)) (claim.Fact, error) {
	if auth.Username == "" || auth.Password == "" {
		return claim.Fact{}, NewError(ReasonAuthRejected, "Username and password are required", nil)
	}

	logf(fmt.Sprintf("Navigating to %s portal...", p.Label))
	if err := navigate(ctx, page, p.LoginURL, p.NavigationTimeout); err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, fmt.Sprintf("%s portal is unreachable", p.Label), err)
	}
	if err := pause(ctx, p.PreLoginDelay); err != nil {
		return claim.Fact{}, err
	}

	logf("Inputting credentials...")
	if err := p.fill(ctx, page, p.UsernameSelector, auth.Username); err != nil {
		return claim.Fact{}, err
	}
	if err := p.fill(ctx, page, p.PasswordSelector, auth.Password); err != nil {
		return claim.Fact{}, err
	}

	logf("Clicking login...")
	submit, err := page.Context(ctx).Timeout(p.ElementTimeout).Element(p.SubmitSelector)
	if err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, "Login form not found", err)
	}
	// Some portals swap content in place instead of navigating; when no
	// transition shows up before the ceiling, give the page a fixed settle.
	started := time.Now()
	waitPage := page.Context(ctx).Timeout(p.NavigationTimeout)
	waitNav := waitPage.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	if err := submit.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		waitPage.CancelTimeout()
		return claim.Fact{}, classify(ctx, ReasonUnreachable, "Could not submit login form", err)
	}
	waitNav()
	waitPage.CancelTimeout()
	if err := checkpoint(ctx); err != nil {
		return claim.Fact{}, err
	}
	if time.Since(started) >= p.NavigationTimeout {
		logf("Waiting for page to settle...")
		if err := pause(ctx, p.SettleDelay); err != nil {
			return claim.Fact{}, err
		}
	}

	stillOnLogin, _, _ := page.Context(ctx).Has(p.PasswordSelector)

	logf("Accessing results page...")
	if err := navigate(ctx, page, p.ResultsURL, p.NavigationTimeout); err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, "Results page is unreachable", err)
	}

	text, err := bodyText(ctx, page)
	if err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, "Could not read results page", err)
	}
	value, err := ParseDecimal(text, p.Pattern)
	if err != nil {
		if stillOnLogin {
			return claim.Fact{}, NewError(ReasonAuthRejected, "Login rejected by portal", err)
		}
		return claim.Fact{}, NewError(ReasonFactNotFound, "CGPA not found", err)
	}

	logf(fmt.Sprintf("Found CGPA: %s", formatValue(value)))
	return claim.Fact{Value: value}, nil
}

func (p *GradePortal) fill(ctx context.Context, page *rod.Page, selector, value string) error {
	el, err := page.Context(ctx).Timeout(p.ElementTimeout).Element(selector)
	if err != nil {
		return classify(ctx, ReasonUnreachable, "Login form not found", err)
	}
	if err := el.Context(ctx).Input(value); err != nil {
		return classify(ctx, ReasonUnreachable, "Could not fill login form", err)
	}
	return nil
}
