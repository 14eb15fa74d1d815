package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/grantcarthew/stealthfetch/internal/browser"
	"github.com/grantcarthew/stealthfetch/internal/cdp"
	"github.com/grantcarthew/stealthfetch/internal/page"
	"github.com/grantcarthew/stealthfetch/internal/stealth"
)

// ChromeLauncher launches a local Chrome with stealth settings and drives
// its first tab over CDP.
type ChromeLauncher struct {
	Logger *slog.Logger
}

func (l ChromeLauncher) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}

// Launch starts Chrome, connects to its page target and prepares the page.
// Any failure after the process starts closes it again.
func (l ChromeLauncher) Launch(ctx context.Context, cfg LaunchConfig) (Browser, error) {
	logger := l.logger()

	bin, err := browser.ResolveChrome(cfg.ChromePath)
	if err != nil {
		return nil, err
	}

	proxyServer, username, password, err := SplitProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	logger.Debug("launching chrome", "binary", bin, "headless", cfg.Headless, "proxy", cfg.Proxy)
	proc, err := browser.StartWithBinary(ctx, bin, launchOptions(cfg, proxyServer))
	if err != nil {
		return nil, err
	}
	logger.Debug("chrome started", "pid", proc.PID(), "port", proc.Port(), "profile", proc.DataDir())

	b, err := l.connect(ctx, proc, cfg, username, password)
	if err != nil {
		_ = proc.Close()
		return nil, err
	}
	return b, nil
}

// launchOptions maps cfg onto the browser package. proxyServer must already
// be stripped of credentials.
func launchOptions(cfg LaunchConfig, proxyServer string) browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless:    cfg.Headless,
		Port:        cfg.DebugPort,
		UserDataDir: cfg.Profile,
		ProxyServer: proxyServer,
		ExtraArgs:   cfg.ChromeArgs,
	}
}

func (l ChromeLauncher) connect(ctx context.Context, proc *browser.Browser, cfg LaunchConfig, username, password string) (*chromeBrowser, error) {
	logger := l.logger()

	wsURL, err := proc.WebSocketURL(ctx)
	if err != nil {
		return nil, err
	}

	client, err := cdp.Dial(ctx, wsURL)
	if err != nil {
		return nil, err
	}

	p := page.New(client, page.WithLogger(logger), page.WithLoadTimeout(cfg.LoadTimeout))

	if username != "" {
		if _, err := p.EnableProxyAuth(ctx, username, password); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		info, err := proc.Version(ctx)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		ua = stealth.CleanUserAgent(info.UserAgent)
	}

	err = p.Prepare(ctx, page.PrepareOptions{
		UserAgent:      ua,
		AcceptLanguage: stealth.AcceptLanguage,
		Scripts:        []string{stealth.Script},
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &chromeBrowser{proc: proc, client: client, page: p, logger: logger}, nil
}

type chromeBrowser struct {
	proc   *browser.Browser
	client *cdp.Client
	page   *page.Page
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Get navigates the prepared tab. A missing load event is logged and
// tolerated; challenge pages often never finish loading.
func (b *chromeBrowser) Get(ctx context.Context, rawURL string) (Page, error) {
	err := b.page.Navigate(ctx, rawURL)
	switch {
	case errors.Is(err, page.ErrLoadTimeout):
		b.logger.Warn("continuing without load event", "url", rawURL, "error", err)
	case err != nil:
		return nil, err
	}
	return chromePage{b.page}, nil
}

func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = errors.Join(b.client.Close(), b.proc.Close())
	})
	return b.closeErr
}

type chromePage struct {
	*page.Page
}

func (p chromePage) Content(ctx context.Context) (string, error) {
	return p.HTML(ctx)
}

// SplitProxy separates credentials from a proxy URL. Chrome's
// --proxy-server ignores userinfo, so the server part goes on the command
// line and the credentials are answered over CDP.
func SplitProxy(raw string) (server, username, password string, err error) {
	if raw == "" {
		return "", "", "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("parse proxy: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("parse proxy: expected scheme://host:port")
	}
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	return u.Scheme + "://" + u.Host, username, password, nil
}
