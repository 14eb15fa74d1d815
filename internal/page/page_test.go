package page_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/stealthfetch/internal/cdp"
	"github.com/grantcarthew/stealthfetch/internal/cdp/cdptest"
	"github.com/grantcarthew/stealthfetch/internal/page"
)

func newPage(t *testing.T, opts ...page.Option) (*page.Page, *cdptest.Conn) {
	t.Helper()
	conn := cdptest.NewConn()
	client := cdp.NewClient(conn)
	t.Cleanup(func() { _ = client.Close() })
	return page.New(client, opts...), conn
}

func paramsOf(t *testing.T, conn *cdptest.Conn, method string) map[string]any {
	t.Helper()
	call, ok := conn.Find(method)
	require.True(t, ok, "expected %s to be called, got %v", method, conn.Methods())
	var params map[string]any
	require.NoError(t, json.Unmarshal(call.Params, &params))
	return params
}

func TestPrepare_EnablesDomainsAndInstallsScripts(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.addScriptToEvaluateOnNewDocument", map[string]string{"identifier": "1"})

	err := p.Prepare(context.Background(), page.PrepareOptions{
		UserAgent:      "Mozilla/5.0 Chrome/120.0.0.0",
		AcceptLanguage: "en-US,en;q=0.9",
		Scripts:        []string{"window.__a = 1", "window.__b = 2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Page.enable",
		"Network.enable",
		"Network.setUserAgentOverride",
		"Page.addScriptToEvaluateOnNewDocument",
		"Page.addScriptToEvaluateOnNewDocument",
	}, conn.Methods())
	assert.NotContains(t, conn.Methods(), "Runtime.enable")

	ua := paramsOf(t, conn, "Network.setUserAgentOverride")
	assert.Equal(t, "Mozilla/5.0 Chrome/120.0.0.0", ua["userAgent"])
	assert.Equal(t, "en-US,en;q=0.9", ua["acceptLanguage"])

	script := paramsOf(t, conn, "Page.addScriptToEvaluateOnNewDocument")
	assert.Equal(t, "window.__a = 1", script["source"])
}

func TestPrepare_SkipsOverrideWithoutUserAgent(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)

	require.NoError(t, p.Prepare(context.Background(), page.PrepareOptions{}))
	assert.Equal(t, []string{"Page.enable", "Network.enable"}, conn.Methods())
}

func TestPrepare_PropagatesError(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleError("Network.enable", -32601, "'Network.enable' wasn't found")

	err := p.Prepare(context.Background(), page.PrepareOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable network domain")

	var cdpErr *cdp.Error
	assert.True(t, errors.As(err, &cdpErr))
}

func TestNavigate_WaitsForLoadEvent(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.Handle("Page.navigate", func(json.RawMessage) (any, error) {
		conn.Emit("Page.loadEventFired", map[string]float64{"timestamp": 1})
		return map[string]string{"frameId": "F1", "loaderId": "L1"}, nil
	})

	require.NoError(t, p.Navigate(context.Background(), "https://example.com"))
	assert.Equal(t, "https://example.com", paramsOf(t, conn, "Page.navigate")["url"])
}

func TestNavigate_ReportsErrorText(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.navigate", map[string]string{
		"frameId":   "F1",
		"errorText": "net::ERR_NAME_NOT_RESOLVED",
	})

	err := p.Navigate(context.Background(), "https://nope.invalid")
	require.ErrorIs(t, err, page.ErrNavigation)
	assert.Contains(t, err.Error(), "net::ERR_NAME_NOT_RESOLVED")
}

func TestNavigate_LoadTimeout(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t, page.WithLoadTimeout(50*time.Millisecond))
	conn.HandleResult("Page.navigate", map[string]string{"frameId": "F1"})

	err := p.Navigate(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, page.ErrLoadTimeout)
}

func TestNavigate_ContextCancelled(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.navigate", map[string]string{"frameId": "F1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Navigate(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTitle_UnansweredCommandTimesOut(t *testing.T) {
	t.Parallel()

	conn := cdptest.NewConn()
	conn.Handle("Runtime.evaluate", func(json.RawMessage) (any, error) { return nil, cdptest.ErrNoReply })
	client := cdp.NewClient(conn, cdp.WithTimeout(50*time.Millisecond))
	t.Cleanup(func() { _ = client.Close() })
	p := page.New(client)

	done := make(chan error, 1)
	go func() {
		_, err := p.Title(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Title blocked on a page that never answers")
	}
}

func TestTitleAndLocation(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.Handle("Runtime.evaluate", func(raw json.RawMessage) (any, error) {
		var params struct {
			Expression string `json:"expression"`
		}
		_ = json.Unmarshal(raw, &params)
		switch params.Expression {
		case "document.title":
			return map[string]any{"result": map[string]any{"type": "string", "value": "Example Domain"}}, nil
		case "window.location.href":
			return map[string]any{"result": map[string]any{"type": "string", "value": "https://example.com/final"}}, nil
		}
		return nil, errors.New("unexpected expression")
	})

	title, err := p.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)

	href, err := p.Location(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/final", href)

	params := paramsOf(t, conn, "Runtime.evaluate")
	assert.Equal(t, true, params["returnByValue"])
}

func TestEvaluate_Exception(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Runtime.evaluate", map[string]any{
		"result": map[string]any{"type": "object", "subtype": "error"},
		"exceptionDetails": map[string]any{
			"text":      "Uncaught",
			"exception": map[string]any{"description": "ReferenceError: nope is not defined"},
		},
	})

	err := p.Evaluate(context.Background(), "nope", nil)

	var evalErr *page.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "javascript error: ReferenceError: nope is not defined", evalErr.Error())
}

func TestHTML_WalksWindowToOuterHTML(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Runtime.evaluate", map[string]any{
		"result": map[string]any{"type": "object", "objectId": "window-1"},
	})
	conn.HandleResult("Runtime.callFunctionOn", map[string]any{
		"result": map[string]any{"type": "object", "subtype": "node", "objectId": "html-1"},
	})
	conn.HandleResult("DOM.getOuterHTML", map[string]string{
		"outerHTML": "<html><head><title>T</title></head><body>hi</body></html>",
	})

	html, err := p.HTML(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<html><head><title>T</title></head><body>hi</body></html>", html)

	assert.Equal(t, "window-1", paramsOf(t, conn, "Runtime.callFunctionOn")["objectId"])
	assert.Equal(t, "html-1", paramsOf(t, conn, "DOM.getOuterHTML")["objectId"])
}

func TestHTML_EmptyObjectID(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Runtime.evaluate", map[string]any{
		"result": map[string]any{"type": "undefined"},
	})

	_, err := p.HTML(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window objectId is empty")
	assert.NotContains(t, conn.Methods(), "DOM.getOuterHTML")
}

func TestScreenshot_Viewport(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.captureScreenshot", map[string]string{
		"data": base64.StdEncoding.EncodeToString([]byte("\x89PNG fake")),
	})

	png, err := p.Screenshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), png)

	params := paramsOf(t, conn, "Page.captureScreenshot")
	assert.Equal(t, "png", params["format"])
	assert.NotContains(t, params, "clip")
	assert.NotContains(t, conn.Methods(), "Page.getLayoutMetrics")
}

func TestScreenshot_FullPageClipsToContent(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.getLayoutMetrics", map[string]any{
		"cssContentSize": map[string]float64{"x": 0, "y": 0, "width": 1280, "height": 4200},
	})
	conn.HandleResult("Page.captureScreenshot", map[string]string{
		"data": base64.StdEncoding.EncodeToString([]byte("png")),
	})

	_, err := p.Screenshot(context.Background(), true)
	require.NoError(t, err)

	params := paramsOf(t, conn, "Page.captureScreenshot")
	assert.Equal(t, true, params["captureBeyondViewport"])
	clip, ok := params["clip"].(map[string]any)
	require.True(t, ok, "expected clip, got %v", params)
	assert.Equal(t, 1280.0, clip["width"])
	assert.Equal(t, 4200.0, clip["height"])
}

func TestScreenshot_BadData(t *testing.T) {
	t.Parallel()

	p, conn := newPage(t)
	conn.HandleResult("Page.captureScreenshot", map[string]string{"data": "!!not base64!!"})

	_, err := p.Screenshot(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode screenshot data")
}
