// Package page drives a single browser tab over CDP: preparing it for a
// stealthy visit, navigating, and reading back title, location, HTML and
// screenshots.
package page

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantcarthew/stealthfetch/internal/cdp"
)

// DefaultLoadTimeout bounds the wait for Page.loadEventFired.
const DefaultLoadTimeout = 30 * time.Second

var (
	// ErrNavigation is returned when Chrome reports a navigation failure,
	// such as a DNS error or a refused connection.
	ErrNavigation = errors.New("navigation failed")

	// ErrLoadTimeout is returned when the load event does not fire in time.
	// The page may still be usable.
	ErrLoadTimeout = errors.New("page load timed out")
)

// Client is the subset of *cdp.Client a Page needs.
type Client interface {
	Call(ctx context.Context, method string, params, out any) error
	Subscribe(method string, handler func(cdp.Event)) (unsubscribe func())
}

// EvalError is a JavaScript exception thrown by an evaluated expression.
type EvalError struct {
	Text        string
	Description string
}

func (e *EvalError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("javascript error: %s", e.Description)
	}
	return fmt.Sprintf("javascript error: %s", e.Text)
}

// Page is one tab. It is not safe for concurrent navigation.
type Page struct {
	client      Client
	logger      *slog.Logger
	loadTimeout time.Duration
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Page) { p.logger = logger }
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(p *Page) {
		if d > 0 {
			p.loadTimeout = d
		}
	}
}

// New wraps a connected page-target client.
func New(client Client, opts ...Option) *Page {
	p := &Page{
		client:      client,
		logger:      slog.New(slog.DiscardHandler),
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PrepareOptions controls what Prepare installs before the first navigation.
type PrepareOptions struct {
	// UserAgent overrides the navigator and request UA when non-empty.
	UserAgent string

	// AcceptLanguage accompanies the UA override.
	AcceptLanguage string

	// Scripts run in every new document before page scripts.
	Scripts []string
}

// Prepare enables the Page and Network domains, applies the UA override and
// registers init scripts. Runtime is left disabled; enabling it is visible
// to the page.
func (p *Page) Prepare(ctx context.Context, opts PrepareOptions) error {
	if err := p.client.Call(ctx, "Page.enable", nil, nil); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := p.client.Call(ctx, "Network.enable", nil, nil); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}

	if opts.UserAgent != "" {
		params := map[string]any{"userAgent": opts.UserAgent}
		if opts.AcceptLanguage != "" {
			params["acceptLanguage"] = opts.AcceptLanguage
		}
		if err := p.client.Call(ctx, "Network.setUserAgentOverride", params, nil); err != nil {
			return fmt.Errorf("override user agent: %w", err)
		}
		p.logger.Debug("user agent overridden", "user_agent", opts.UserAgent)
	}

	for i, src := range opts.Scripts {
		var result struct {
			Identifier string `json:"identifier"`
		}
		err := p.client.Call(ctx, "Page.addScriptToEvaluateOnNewDocument", map[string]any{
			"source": src,
		}, &result)
		if err != nil {
			return fmt.Errorf("add init script %d: %w", i, err)
		}
		p.logger.Debug("init script registered", "identifier", result.Identifier)
	}

	return nil
}

// Navigate loads url and waits for the load event. Chrome-reported failures
// wrap ErrNavigation; a load event that never arrives yields ErrLoadTimeout.
func (p *Page) Navigate(ctx context.Context, url string) error {
	// Subscribe first so a fast load is not missed
	loaded := make(chan struct{}, 1)
	unsubscribe := p.client.Subscribe("Page.loadEventFired", func(cdp.Event) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	start := time.Now()
	var navResp struct {
		FrameID   string `json:"frameId"`
		LoaderID  string `json:"loaderId"`
		ErrorText string `json:"errorText"`
	}
	if err := p.client.Call(ctx, "Page.navigate", map[string]any{"url": url}, &navResp); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if navResp.ErrorText != "" {
		return fmt.Errorf("%w: %s: %s", ErrNavigation, url, navResp.ErrorText)
	}
	p.logger.Debug("navigation committed", "url", url, "frame_id", navResp.FrameID)

	timer := time.NewTimer(p.loadTimeout)
	defer timer.Stop()

	select {
	case <-loaded:
		p.logger.Debug("load event fired", "elapsed", time.Since(start))
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrLoadTimeout, p.loadTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type remoteObject struct {
	Type     string          `json:"type"`
	Subtype  string          `json:"subtype"`
	Value    json.RawMessage `json:"value"`
	ObjectID string          `json:"objectId"`
}

type exceptionDetails struct {
	Text      string `json:"text"`
	Exception *struct {
		Description string `json:"description"`
	} `json:"exception"`
}

func (e *exceptionDetails) err() error {
	if e == nil {
		return nil
	}
	evalErr := &EvalError{Text: e.Text}
	if e.Exception != nil {
		evalErr.Description = e.Exception.Description
	}
	return evalErr
}

type evalResult struct {
	Result           remoteObject      `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails"`
}

// Evaluate runs expression in the page and decodes its JSON value into out.
// Promises are awaited. A nil out discards the value.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	var resp evalResult
	err := p.client.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if err := resp.ExceptionDetails.err(); err != nil {
		return err
	}
	if out == nil || len(resp.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result.Value, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// Title returns document.title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.Evaluate(ctx, "document.title", &title); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Location returns window.location.href, the URL after redirects.
func (p *Page) Location(ctx context.Context) (string, error) {
	var href string
	if err := p.Evaluate(ctx, "window.location.href", &href); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return href, nil
}

// HTML returns the serialized document element. It resolves window, calls
// into it for documentElement, then asks DOM for the outer HTML, which
// avoids waiting on a fresh execution context while the page is busy.
func (p *Page) HTML(ctx context.Context) (string, error) {
	start := time.Now()

	var window evalResult
	err := p.client.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression": "window",
	}, &window)
	if err != nil {
		return "", fmt.Errorf("get window: %w", err)
	}
	if err := window.ExceptionDetails.err(); err != nil {
		return "", fmt.Errorf("get window: %w", err)
	}
	if window.Result.ObjectID == "" {
		return "", errors.New("window objectId is empty")
	}

	var docElem evalResult
	err = p.client.Call(ctx, "Runtime.callFunctionOn", map[string]any{
		"objectId":            window.Result.ObjectID,
		"functionDeclaration": "function() { return document.documentElement; }",
		"returnByValue":       false,
	}, &docElem)
	if err != nil {
		return "", fmt.Errorf("get documentElement: %w", err)
	}
	if err := docElem.ExceptionDetails.err(); err != nil {
		return "", fmt.Errorf("get documentElement: %w", err)
	}
	if docElem.Result.ObjectID == "" {
		return "", errors.New("documentElement objectId is empty")
	}

	var outer struct {
		OuterHTML string `json:"outerHTML"`
	}
	err = p.client.Call(ctx, "DOM.getOuterHTML", map[string]any{
		"objectId": docElem.Result.ObjectID,
	}, &outer)
	if err != nil {
		return "", fmt.Errorf("get outer HTML: %w", err)
	}

	p.logger.Debug("html extracted", "bytes", len(outer.OuterHTML), "elapsed", time.Since(start))
	return outer.OuterHTML, nil
}

// Screenshot captures a PNG of the viewport, or of the whole document when
// fullPage is set.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	params := map[string]any{"format": "png"}

	if fullPage {
		var metrics struct {
			ContentSize    size `json:"contentSize"`
			CSSContentSize size `json:"cssContentSize"`
		}
		if err := p.client.Call(ctx, "Page.getLayoutMetrics", nil, &metrics); err != nil {
			return nil, fmt.Errorf("get layout metrics: %w", err)
		}
		content := metrics.CSSContentSize
		if content.Width == 0 || content.Height == 0 {
			content = metrics.ContentSize
		}
		params["captureBeyondViewport"] = true
		if content.Width > 0 && content.Height > 0 {
			params["clip"] = map[string]any{
				"x":      0,
				"y":      0,
				"width":  content.Width,
				"height": content.Height,
				"scale":  1,
			}
		}
	}

	var shot struct {
		Data string `json:"data"`
	}
	if err := p.client.Call(ctx, "Page.captureScreenshot", params, &shot); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	png, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot data: %w", err)
	}
	return png, nil
}

type size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
