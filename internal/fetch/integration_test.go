//go:build integration

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/stealthfetch/internal/browser"
)

func requireChrome(t *testing.T) {
	t.Helper()
	if _, err := browser.FindChrome(); err != nil {
		t.Skip("chrome not available")
	}
}

func TestChrome_FetchesLocalPage(t *testing.T) {
	requireChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Stealth Check</title></head><body>
<p id="ua">%s</p>
<script>document.body.dataset.webdriver = String(navigator.webdriver)</script>
</body></html>`, r.UserAgent())
	}))
	defer server.Close()

	dir := t.TempDir()
	rep := &recordingReporter{}
	f := New(ChromeLauncher{}, rep)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := f.Run(ctx, Options{
		URL:         server.URL,
		Wait:        time.Second,
		Headless:    true,
		Screenshot:  filepath.Join(dir, "page.png"),
		Output:      filepath.Join(dir, "page.html"),
		LoadTimeout: 20 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "Stealth Check", res.Title)
	assert.True(t, strings.HasPrefix(res.FinalURL, server.URL))
	assert.NotContains(t, res.Content, "HeadlessChrome")
	assert.NotContains(t, res.Content, `data-webdriver="true"`)

	info, err := os.Stat(res.ScreenshotPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	html, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, res.Content, string(html))

	assert.Equal(t, "Browser closed", rep.steps[len(rep.steps)-1])
}
