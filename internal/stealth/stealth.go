// Package stealth holds the anti-detection configuration applied to every
// browser session: launch flags, an evasion script injected before page
// scripts run, and user-agent cleanup.
package stealth

import (
	_ "embed"
	"fmt"
	"strings"
)

// Window size reported to pages. Headless Chrome defaults to 800x600,
// which is itself a fingerprint.
const (
	WindowWidth  = 1920
	WindowHeight = 1080
)

// AcceptLanguage is sent with the user-agent override so that the
// Accept-Language header agrees with navigator.languages.
const AcceptLanguage = "en-US,en;q=0.9"

// Script runs in every new document before the page's own scripts.
//
//go:embed evasions.js
var Script string

// Flags returns the Chrome command line switches that remove automation
// tells. Headless mode uses the new headless implementation, which shares
// the full browser's rendering stack.
func Flags(headless bool) []string {
	flags := []string{
		// navigator.webdriver is the first thing every bot check reads
		"--disable-blink-features=AutomationControlled",
		"--disable-infobars",
		"--disable-extensions",
		"--disable-default-apps",
		"--disable-component-update",
		"--no-service-autorun",
		"--lang=en-US",
		fmt.Sprintf("--window-size=%d,%d", WindowWidth, WindowHeight),
	}
	if headless {
		flags = append(flags, "--headless=new", "--hide-scrollbars", "--mute-audio")
	}
	return flags
}

// CleanUserAgent removes the HeadlessChrome token that headless builds put
// in their default user agent.
func CleanUserAgent(ua string) string {
	return strings.ReplaceAll(ua, "HeadlessChrome", "Chrome")
}
