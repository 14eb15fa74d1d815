// Package challenge recognises anti-bot interstitials and block pages in a
// fetched document.
package challenge

import (
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Titles that mean an interstitial is still running. Matched lower-cased.
var challengeTitles = []string{
	"just a moment",
	"checking your browser",
	"ddos-guard",
	"please wait",
	"attention required",
}

// Elements only present on challenge pages.
var challengeSelectors = []string{
	"#cf-challenge-running",
	".ray_id",
	"#turnstile-wrapper",
	"#cf-wrapper",
	"#challenge-running",
	"#challenge-stage",
	"#cf-spinner-please-wait",
	"#cf-spinner-redirecting",
}

// Verdict is the outcome of Inspect.
type Verdict struct {
	// Blocked is the coarse block-page heuristic: the raw HTML contains
	// "Access Denied", or contains "blocked" in any case.
	Blocked bool `json:"blocked"`

	// Challenge reports an interstitial that may still resolve by waiting.
	Challenge bool `json:"challenge"`

	// Indicator names the title fragment or selector that matched.
	Indicator string `json:"indicator,omitempty"`
}

// IsBlocked applies the block-page heuristic to raw HTML. "Access Denied"
// is matched case-sensitively, "blocked" in any case.
func IsBlocked(content string) bool {
	return strings.Contains(content, "Access Denied") ||
		strings.Contains(strings.ToLower(content), "blocked")
}

// Inspect classifies a page from its title and HTML. An empty title is read
// from the document's <title> element.
func Inspect(title, content string) Verdict {
	v := Verdict{Blocked: IsBlocked(content)}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		doc = nil
	}

	if title == "" && doc != nil {
		title = documentTitle(doc)
	}

	lower := strings.ToLower(title)
	for _, t := range challengeTitles {
		if strings.Contains(lower, t) {
			v.Challenge = true
			v.Indicator = "title: " + t
			return v
		}
	}

	if doc == nil {
		return v
	}
	for _, sel := range challengeSelectors {
		if dom.QuerySelector(doc, sel) != nil {
			v.Challenge = true
			v.Indicator = "selector: " + sel
			return v
		}
	}

	return v
}

func documentTitle(doc *html.Node) string {
	titles := dom.GetElementsByTagName(doc, "title")
	if len(titles) == 0 {
		return ""
	}
	return strings.TrimSpace(dom.TextContent(titles[0]))
}
