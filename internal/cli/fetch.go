package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/stealthfetch/internal/browser"
	"github.com/grantcarthew/stealthfetch/internal/cli/format"
	"github.com/grantcarthew/stealthfetch/internal/config"
	"github.com/grantcarthew/stealthfetch/internal/fetch"
	"github.com/grantcarthew/stealthfetch/internal/log"
)

// chromeHint completes the message shown when no browser can be found.
const chromeHint = "install Google Chrome or Chromium, or set " + browser.ChromeEnv

// newLauncher is the package-level launcher factory, replaceable for testing.
var newLauncher = func(logger *slog.Logger) fetch.Launcher {
	return fetch.ChromeLauncher{Logger: logger}
}

// fetchResult is the --json shape of a successful run.
type fetchResult struct {
	OK         bool   `json:"ok"`
	URL        string `json:"url"`
	FinalURL   string `json:"final_url"`
	Title      string `json:"title"`
	Bytes      int    `json:"bytes"`
	Blocked    bool   `json:"blocked"`
	Challenge  bool   `json:"challenge"`
	Screenshot string `json:"screenshot,omitempty"`
	Output     string `json:"output,omitempty"`
}

// reporter prints fetch progress to stderr.
type reporter struct {
	w    io.Writer
	opts format.OutputOptions
}

func (r reporter) Step(msg string) { _ = format.Step(r.w, msg, r.opts) }
func (r reporter) Warn(msg string) { _ = format.Warning(r.w, msg, r.opts) }

func runFetch(cmd *cobra.Command, args []string) error {
	logger := log.NewLogger(stderr, Debug)

	configPath, _ := cmd.Flags().GetString("config")
	cfg, usedPath, err := config.Load(configPath)
	if err != nil {
		return outputError(log.RedactURL(err.Error()))
	}
	if usedPath != "" {
		logger.Debug("config loaded", "path", usedPath)
	}

	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return outputError(log.RedactURL(err.Error()))
	}

	opts := fetch.Options{
		URL:              normalizeURL(args[0]),
		Wait:             time.Duration(cfg.Wait) * time.Second,
		Proxy:            cfg.Proxy,
		Headless:         cfg.Headless,
		FullPage:         cfg.FullPage,
		UserAgent:        cfg.UserAgent,
		LoadTimeout:      time.Duration(cfg.Timeout) * time.Second,
		ChallengeTimeout: time.Duration(cfg.ChallengeTimeout) * time.Second,
		ChromePath:       cfg.Chrome,
		Profile:          cfg.Profile,
		DebugPort:        cfg.DebugPort,
		ChromeArgs:       cfg.ChromeArgs,
	}
	opts.Screenshot, _ = cmd.Flags().GetString("screenshot")
	opts.Output, _ = cmd.Flags().GetString("output")

	logger.Debug("fetch options",
		"url", opts.URL,
		"wait", opts.Wait,
		"headless", opts.Headless,
		"proxy", opts.Proxy,
		"challenge_timeout", opts.ChallengeTimeout,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// JSON mode keeps stderr machine-readable
	var progress fetch.Reporter
	if !JSONOutput {
		progress = reporter{w: stderr, opts: outputOptions(os.Stderr)}
	}
	fetcher := fetch.New(newLauncher(logger), progress, fetch.WithLogger(logger))

	res, err := fetcher.Run(ctx, opts)
	if err != nil {
		return outputError(errorMessage(err))
	}

	if JSONOutput {
		return outputJSON(stdout, fetchResult{
			OK:         true,
			URL:        res.URL,
			FinalURL:   res.FinalURL,
			Title:      res.Title,
			Bytes:      res.Bytes,
			Blocked:    res.Verdict.Blocked,
			Challenge:  res.Verdict.Challenge,
			Screenshot: res.ScreenshotPath,
			Output:     res.OutputPath,
		})
	}

	if opts.Output == "" {
		return format.Summary(stdout, res.Bytes, res.FinalURL, outputOptions(os.Stdout))
	}
	return nil
}

// applyFlags copies explicitly set flags over the config file values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("wait") {
		cfg.Wait, _ = flags.GetInt("wait")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetInt("timeout")
	}
	if flags.Changed("challenge-timeout") {
		cfg.ChallengeTimeout, _ = flags.GetInt("challenge-timeout")
	}
	if flags.Changed("proxy") {
		cfg.Proxy, _ = flags.GetString("proxy")
	}
	if flags.Changed("headless") {
		cfg.Headless, _ = flags.GetBool("headless")
	}
	if flags.Changed("full-page") {
		cfg.FullPage, _ = flags.GetBool("full-page")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("chrome") {
		cfg.Chrome, _ = flags.GetString("chrome")
	}
	if flags.Changed("profile") {
		cfg.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("debug-port") {
		cfg.DebugPort, _ = flags.GetInt("debug-port")
	}
	if flags.Changed("chrome-arg") {
		// Flag values extend the config list
		extra, _ := flags.GetStringArray("chrome-arg")
		cfg.ChromeArgs = append(cfg.ChromeArgs, extra...)
	}
}

// errorMessage turns a fetch failure into the line shown to the user.
// Proxy credentials never appear in it.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, browser.ErrChromeNotFound):
		if err == browser.ErrChromeNotFound {
			return err.Error() + ": " + chromeHint
		}
		return log.RedactURL(err.Error()) + " (" + chromeHint + ")"
	case fetch.IsCanceled(err):
		return "interrupted"
	}
	return log.RedactURL(err.Error())
}

// normalizeURL adds a protocol to URLs that lack one.
// Localhost and loopback addresses get http://, everything else https://.
func normalizeURL(url string) string {
	// Already has protocol
	if strings.Contains(url, "://") {
		return url
	}

	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "localhost") ||
		strings.HasPrefix(lower, "127.0.0.1") ||
		strings.HasPrefix(lower, "0.0.0.0") {
		return "http://" + url
	}

	return "https://" + url
}
