package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"zkcred-be/pkg/claim"

	"github.com/go-rod/rod"
)

// ProfilePortal reads an activity count from a public profile page.
type ProfilePortal struct {
	Label string
	// ProfileURL is a format string with a single %s for the handle.
	ProfileURL string

	NavigationTimeout  time.Duration
	HydrationDelay     time.Duration
	InterstitialDelay  time.Duration
	InterstitialChecks int
}

func (p *ProfilePortal) Name() string  { return p.Label }
func (p *ProfilePortal) Stealth() bool { return true }

func (p *ProfilePortal) Run(ctx context.Context, page *rod.Page, auth Auth, logf func(string)) (claim.Fact, error) {
	handle := strings.TrimSpace(auth.Username)
	if handle == "" {
		return claim.Fact{}, NewError(ReasonSubjectNotFound, "A profile handle is required", nil)
	}

	logf(fmt.Sprintf("Navigating to %s profile...", p.Label))
	target := fmt.Sprintf(p.ProfileURL, url.PathEscape(handle))
	if err := navigate(ctx, page, target, p.NavigationTimeout); err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, fmt.Sprintf("%s is unreachable", p.Label), err)
	}

	logf("Waiting for page to load...")
	if err := pause(ctx, p.HydrationDelay); err != nil {
		return claim.Fact{}, err
	}

	for i := 0; i < p.InterstitialChecks; i++ {
		info, err := page.Context(ctx).Info()
		if err != nil {
			return claim.Fact{}, classify(ctx, ReasonUnreachable, "Could not inspect profile page", err)
		}
		if !IsInterstitial(info.Title, info.URL) {
			break
		}
		logf("Bypassing security check...")
		if err := pause(ctx, p.InterstitialDelay); err != nil {
			return claim.Fact{}, err
		}
	}

	text, err := bodyText(ctx, page)
	if err != nil {
		return claim.Fact{}, classify(ctx, ReasonUnreachable, "Could not read profile page", err)
	}
	if ProfileMissing(p.heading(ctx, page), text) {
		return claim.Fact{}, NewError(ReasonSubjectNotFound, fmt.Sprintf("Profile %q not found or page blocked", handle), nil)
	}

	logf("Reading profile stats...")
	stats, err := ParseActivity(text)
	if err != nil {
		return claim.Fact{}, NewError(ReasonFactNotFound, "Could not find solved count on profile. Is the profile public?", err)
	}

	logf(fmt.Sprintf("Found: %d problems solved (E:%d M:%d H:%d)",
		stats.Total, stats.Breakdown["easy"], stats.Breakdown["medium"], stats.Breakdown["hard"]))
	return claim.Fact{Value: float64(stats.Total), Breakdown: stats.Breakdown}, nil
}

func (p *ProfilePortal) heading(ctx context.Context, page *rod.Page) string {
	has, el, err := page.Context(ctx).Has("h1")
	if err != nil || !has {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}
