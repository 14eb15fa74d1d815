// Package fetch runs one stealth page fetch: launch, navigate, wait, read,
// save artifacts, and always close the browser.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantcarthew/stealthfetch/internal/challenge"
)

// ChallengePollInterval is how often a running challenge is re-inspected.
const ChallengePollInterval = time.Second

// Launcher starts a browser session.
type Launcher interface {
	Launch(ctx context.Context, cfg LaunchConfig) (Browser, error)
}

// LaunchConfig carries the launch-time subset of Options.
type LaunchConfig struct {
	Headless bool

	// Proxy is the full proxy URL and may embed credentials.
	Proxy string

	// UserAgent overrides the browser UA when non-empty.
	UserAgent string

	// ChromePath selects the binary; empty means auto-detect.
	ChromePath string

	// Profile is a user data directory kept after the run. Empty uses a
	// temporary one.
	Profile    string
	DebugPort  int
	ChromeArgs []string

	LoadTimeout time.Duration
}

// Browser is a running session. Close must be safe to call once after any
// successful Launch, whatever state the session is in.
type Browser interface {
	Get(ctx context.Context, url string) (Page, error)
	Close() error
}

// Page is a loaded document.
type Page interface {
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// Reporter receives progress lines for the user.
type Reporter interface {
	Step(msg string)
	Warn(msg string)
}

// Options for a single Run.
type Options struct {
	URL string

	// Wait is the fixed settle time after navigation.
	Wait time.Duration

	// Screenshot and Output are file or directory paths; empty skips the
	// artifact.
	Screenshot string
	Output     string

	Proxy     string
	Headless  bool
	FullPage  bool
	UserAgent string

	LoadTimeout time.Duration

	// ChallengeTimeout enables polling until a detected challenge clears.
	// Zero disables it.
	ChallengeTimeout time.Duration

	ChromePath string
	Profile    string
	DebugPort  int
	ChromeArgs []string
}

// Result describes a completed fetch.
type Result struct {
	URL      string
	FinalURL string
	Title    string
	Content  string
	Bytes    int
	Verdict  challenge.Verdict

	// Paths actually written, after directory resolution.
	ScreenshotPath string
	OutputPath     string
}

// Fetcher runs fetches with a Launcher.
type Fetcher struct {
	launcher Launcher
	reporter Reporter
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the debug logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithClock replaces the sleep and time source.
func WithClock(sleep func(ctx context.Context, d time.Duration) error, now func() time.Time) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
		if now != nil {
			f.now = now
		}
	}
}

// New returns a Fetcher. A nil reporter discards progress.
func New(launcher Launcher, reporter Reporter, opts ...Option) *Fetcher {
	if reporter == nil {
		reporter = discardReporter{}
	}
	f := &Fetcher{
		launcher: launcher,
		reporter: reporter,
		logger:   slog.New(slog.DiscardHandler),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run performs the fetch. Once the browser has launched it is closed before
// Run returns, on every path. A close failure is returned only when nothing
// failed earlier.
func (f *Fetcher) Run(ctx context.Context, opts Options) (result *Result, err error) {
	f.reporter.Step("Starting browser...")
	browser, err := f.launcher.Launch(ctx, LaunchConfig{
		Headless:    opts.Headless,
		Proxy:       opts.Proxy,
		UserAgent:   opts.UserAgent,
		ChromePath:  opts.ChromePath,
		Profile:     opts.Profile,
		DebugPort:   opts.DebugPort,
		ChromeArgs:  opts.ChromeArgs,
		LoadTimeout: opts.LoadTimeout,
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		closeErr := browser.Close()
		f.reporter.Step("Browser closed")
		if closeErr != nil {
			f.logger.Debug("browser close failed", "error", closeErr)
			if err == nil {
				result = nil
				err = fmt.Errorf("close browser: %w", closeErr)
			}
		}
	}()

	return f.visit(ctx, browser, opts)
}

func (f *Fetcher) visit(ctx context.Context, browser Browser, opts Options) (*Result, error) {
	f.reporter.Step("Navigating to: " + opts.URL)
	page, err := browser.Get(ctx, opts.URL)
	if err != nil {
		return nil, err
	}

	f.reporter.Step(fmt.Sprintf("Waiting %ds for page to fully load...", int(opts.Wait/time.Second)))
	if err := f.sleep(ctx, opts.Wait); err != nil {
		return nil, err
	}

	if opts.ChallengeTimeout > 0 {
		if err := f.awaitChallenge(ctx, page, opts.ChallengeTimeout); err != nil {
			return nil, err
		}
	}

	title, err := page.Title(ctx)
	if err != nil {
		return nil, err
	}
	f.reporter.Step("Page title: " + title)

	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		URL:     opts.URL,
		Title:   title,
		Content: content,
		Bytes:   len(content),
		Verdict: challenge.Inspect(title, content),
	}
	if res.Verdict.Blocked {
		f.reporter.Warn("Page may be blocked. Try a different proxy or run headful.")
	}

	if opts.Screenshot != "" {
		png, err := page.Screenshot(ctx, opts.FullPage)
		if err != nil {
			return nil, err
		}
		path, err := writeArtifact(opts.Screenshot, title, ".png", png, f.now())
		if err != nil {
			return nil, err
		}
		res.ScreenshotPath = path
		f.reporter.Step("Screenshot saved: " + path)
	}

	if opts.Output != "" {
		path, err := writeArtifact(opts.Output, title, ".html", []byte(content), f.now())
		if err != nil {
			return nil, err
		}
		res.OutputPath = path
		f.reporter.Step("HTML saved: " + path)
	}

	finalURL, err := page.Location(ctx)
	if err != nil {
		return nil, err
	}
	res.FinalURL = finalURL

	return res, nil
}

// awaitChallenge polls until no challenge indicator remains. Running out of
// time is reported and the fetch carries on with whatever loaded.
func (f *Fetcher) awaitChallenge(ctx context.Context, page Page, timeout time.Duration) error {
	deadline := f.now().Add(timeout)
	announced := false

	for {
		title, err := page.Title(ctx)
		if err != nil {
			return err
		}
		content, err := page.Content(ctx)
		if err != nil {
			return err
		}

		v := challenge.Inspect(title, content)
		if !v.Challenge {
			if announced {
				f.reporter.Step("Challenge cleared")
			}
			return nil
		}
		if !announced {
			f.reporter.Step(fmt.Sprintf("Challenge detected (%s), waiting up to %s...", v.Indicator, timeout))
			announced = true
		}
		f.logger.Debug("challenge still present", "indicator", v.Indicator)

		if !f.now().Before(deadline) {
			f.reporter.Warn("Challenge still present after " + timeout.String())
			return nil
		}
		if err := f.sleep(ctx, ChallengePollInterval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type discardReporter struct{}

func (discardReporter) Step(string) {}
func (discardReporter) Warn(string) {}

// IsCanceled reports whether err came from an interrupted run.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
