package fetch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Example Domain", "example-domain"},
		{"truncate at 30", "abcdefghijklmnopqrstuvwxyz0123456789", "abcdefghijklmnopqrstuvwxyz0123"},
		{"truncate creates trailing hyphen", "abcdefghijklmnopqrstuvwxyz----extra", "abcdefghijklmnopqrstuvwxyz"},
		{"multiple spaces", "   Lots   of---Spaces!!!   ", "lots-of-spaces"},
		{"empty string", "", "untitled"},
		{"only non-alphanumeric", "!@#$%^&*()", "untitled"},
		{"challenge title", "Just a moment...", "just-a-moment"},
		{"special unicode", "Café ☕ 日本", "cafe"},
		{"accents folded", "Él Niño Über", "el-nino-uber"},
		{"path separators", "path/to/file", "path-to-file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeTitle(tt.title))
		})
	}
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC)
	assert.Equal(t, "24-12-31-235901-example-domain.png", artifactName("Example Domain", ".png", now))
}

func TestResolveArtifactPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, filepath.Join(dir, "page.html"),
		resolveArtifactPath(filepath.Join(dir, "page.html"), "T", ".html", now), "files are used as given")
	assert.Equal(t, filepath.Join(dir, "24-01-02-030405-t.html"),
		resolveArtifactPath(dir, "T", ".html", now), "existing directory")

	missing := filepath.Join(dir, "new") + string(os.PathSeparator)
	assert.Equal(t, filepath.Join(dir, "new", "24-01-02-030405-t.png"),
		resolveArtifactPath(missing, "T", ".png", now), "trailing separator")
}

func TestWriteArtifact_CreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "page.html")
	got, err := writeArtifact(path, "T", ".html", []byte("<html></html>"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}
