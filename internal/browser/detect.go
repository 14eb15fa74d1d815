// Package browser finds, launches and tears down the Chrome process that a
// fetch drives, and discovers its DevTools endpoint.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ChromeEnv names the environment variable that overrides Chrome discovery.
const ChromeEnv = "STEALTHFETCH_CHROME"

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("chrome not found")

// chromePaths lists candidate binaries for the current platform, most
// specific first. Bare names are resolved through PATH.
func chromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			"chrome.exe",
		}
	default:
		return nil
	}
}

// FindChrome locates a Chrome or Chromium binary. STEALTHFETCH_CHROME wins
// when set; an invalid value is an error rather than a fallback to search.
func FindChrome() (string, error) {
	if envPath := os.Getenv(ChromeEnv); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s=%s does not exist", ErrChromeNotFound, ChromeEnv, envPath)
	}

	for _, path := range chromePaths() {
		if found, err := exec.LookPath(path); err == nil {
			return found, nil
		}
	}

	return "", ErrChromeNotFound
}

// ResolveChrome returns explicit when it names an executable (a path or a
// name on PATH), and falls back to FindChrome when explicit is empty.
func ResolveChrome(explicit string) (string, error) {
	if explicit == "" {
		return FindChrome()
	}
	found, err := exec.LookPath(explicit)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrChromeNotFound, explicit)
	}
	return found, nil
}
