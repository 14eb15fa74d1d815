package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	multiHyphen = regexp.MustCompile(`-+`)
)

// foldAccents strips combining marks so "Café" becomes "Cafe".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// normalizeTitle turns a page title into a filename component: accents
// folded, trimmed, cut to 30 bytes, non-alphanumerics collapsed to single
// hyphens, lower case, "untitled" when nothing is left.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(foldAccents(title))
	if len(title) > 30 {
		title = title[:30]
	}
	title = nonAlnum.ReplaceAllString(title, "-")
	title = multiHyphen.ReplaceAllString(title, "-")
	title = strings.ToLower(strings.Trim(title, "-"))
	if title == "" {
		return "untitled"
	}
	return title
}

// artifactName builds YY-MM-DD-HHMMSS-{title}{ext}.
func artifactName(title, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s%s", now.Format("06-01-02-150405"), normalizeTitle(title), ext)
}

// resolveArtifactPath returns path unchanged for a file, or a generated
// file name inside it when path is an existing directory or ends in a
// separator.
func resolveArtifactPath(path, title, ext string, now time.Time) string {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return filepath.Join(path, artifactName(title, ext, now))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, artifactName(title, ext, now))
	}
	return path
}

// writeArtifact writes data to the resolved path, creating parent
// directories, and returns the path written.
func writeArtifact(path, title, ext string, data []byte, now time.Time) (string, error) {
	path = resolveArtifactPath(path, title, ext, now)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
