package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/grantcarthew/stealthfetch/internal/cli"
)

var argCountPattern = regexp.MustCompile(`accepts (\d+) arg\(s\), received (\d+)`)

// formatCobraError converts verbose Cobra errors to user-friendly messages.
func formatCobraError(err error) string {
	msg := err.Error()

	// "accepts 1 arg(s), received 0"
	if m := argCountPattern.FindStringSubmatch(msg); m != nil {
		if m[2] == "0" {
			return "missing URL argument (usage: stealthfetch <url>)"
		}
		return fmt.Sprintf("expected exactly one URL, got %s arguments", m[2])
	}

	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return msg + " (see stealthfetch --help)"
	}

	return msg
}

func main() {
	if err := cli.Execute(); err != nil {
		// Print error if not already printed by command handler
		if !cli.IsPrintedError(err) {
			msg := formatCobraError(err)
			if cli.JSONOutput {
				resp := map[string]any{
					"ok":    false,
					"error": msg,
				}
				_ = json.NewEncoder(os.Stderr).Encode(resp)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
			}
		}
		os.Exit(1)
	}
}
