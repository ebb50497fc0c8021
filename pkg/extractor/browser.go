package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zkcred-be/pkg/claim"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"
)

// BrowserConfig controls how each disposable browser is launched.
type BrowserConfig struct {
	Bin            string
	Headless       bool
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	FrameInterval  time.Duration
	FrameQuality   int
	FrameMaxWidth  int
}

// DefaultBrowserConfig mirrors the viewport and screencast settings the
// portals were tuned against.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		FrameInterval:  200 * time.Millisecond,
		FrameQuality:   80,
		FrameMaxWidth:  640,
	}
}

// Script is the portal-specific interaction run against a fresh page.
type Script interface {
	Name() string
	// Stealth reports whether the portal sits behind anti-automation checks.
	Stealth() bool
	Run(ctx context.Context, page *rod.Page, auth Auth, logf func(string)) (claim.Fact, error)
}

// RodExtractor launches a dedicated Chrome per run and drives it with a Script.
type RodExtractor struct {
	cfg    BrowserConfig
	script Script
}

func NewRodExtractor(cfg BrowserConfig, script Script) *RodExtractor {
	return &RodExtractor{cfg: cfg, script: script}
}

// Launch starts Chrome, opens a page and begins streaming frames to sink.
func (e *RodExtractor) Launch(ctx context.Context, sink Sink) (Run, error) {
	l := launcher.New().
		Context(ctx).
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", e.cfg.ViewportWidth, e.cfg.ViewportHeight))
	if e.cfg.Bin != "" {
		l = l.Bin(e.cfg.Bin)
	}
	if e.script.Stealth() {
		l = l.Set(flags.Flag("disable-blink-features"), "AutomationControlled").
			Set(flags.Flag("disable-gpu")).
			Set(flags.Flag("no-first-run")).
			Set(flags.Flag("no-zygote"))
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, classify(ctx, ReasonLaunch, "Failed to launch secure browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, classify(ctx, ReasonLaunch, "Failed to connect to secure browser", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, classify(ctx, ReasonLaunch, "Failed to open browser page", err)
	}

	r := &rodRun{
		cfg:      e.cfg,
		script:   e.script,
		launcher: l,
		browser:  browser,
		page:     page,
		sink:     sink,
	}
	r.configurePage()
	r.startScreencast()
	return r, nil
}

type rodRun struct {
	cfg      BrowserConfig
	script   Script
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	sink        Sink
	stopFrames  func()
	closeOnce   sync.Once
	closeResult error
}

func (r *rodRun) configurePage() {
	_ = proto.EmulationSetDeviceMetricsOverride{
		Width:             r.cfg.ViewportWidth,
		Height:            r.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(r.page)

	if r.script.Stealth() && r.cfg.UserAgent != "" {
		_ = r.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent})
	}
}

// startScreencast forwards CDP screencast frames to the sink, capped at one
// frame per FrameInterval. Frames over the cap are dropped.
func (r *rodRun) startScreencast() {
	interval := r.cfg.FrameInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	framePage, cancel := r.page.WithCancel()
	wait := framePage.EachEvent(func(e *proto.PageScreencastFrame) {
		_ = proto.PageScreencastFrameAck{SessionID: e.SessionID}.Call(r.page)
		if limiter.Allow() {
			r.sink.Frame(e.Data)
		}
	})
	go wait()
	r.stopFrames = cancel

	quality, maxWidth := r.cfg.FrameQuality, r.cfg.FrameMaxWidth
	_ = proto.PageStartScreencast{
		Format:   proto.PageStartScreencastFormatJpeg,
		Quality:  &quality,
		MaxWidth: &maxWidth,
	}.Call(r.page)
}

func (r *rodRun) Extract(ctx context.Context, auth Auth) (claim.Fact, error) {
	if err := checkpoint(ctx); err != nil {
		return claim.Fact{}, err
	}
	return r.script.Run(ctx, r.page, auth, r.sink.Log)
}

// Close tears down the page, the browser process and its profile dir.
// Safe to call more than once.
func (r *rodRun) Close() error {
	r.closeOnce.Do(func() {
		if r.stopFrames != nil {
			r.stopFrames()
		}
		_ = proto.PageStopScreencast{}.Call(r.page)
		_ = r.page.Close()
		r.closeResult = r.browser.Close()
		r.launcher.Kill()
		r.launcher.Cleanup()
	})
	return r.closeResult
}

// bodyText returns document.body.innerText.
func bodyText(ctx context.Context, page *rod.Page) (string, error) {
	res, err := page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// navigate loads url with a bounded wait.
func navigate(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	p := page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}
