// Package format renders stealthfetch's human-readable output.
package format

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

func colorFprint(w io.Writer, c color.Attribute, s string) {
	color.New(c).Fprint(w, s)
}

// OutputOptions controls text formatting behavior.
type OutputOptions struct {
	UseColor bool // Enable ANSI color codes
}

// NewOutputOptions returns output options for text written to f.
// Priority: jsonOutput > noColorFlag > NO_COLOR env > TTY detection.
func NewOutputOptions(jsonOutput bool, noColorFlag bool, f *os.File) OutputOptions {
	if jsonOutput || noColorFlag {
		return OutputOptions{UseColor: false}
	}
	if os.Getenv("NO_COLOR") != "" {
		return OutputOptions{UseColor: false}
	}
	if f == nil {
		return OutputOptions{UseColor: false}
	}
	return OutputOptions{UseColor: term.IsTerminal(int(f.Fd()))}
}

// Step outputs one progress line.
func Step(w io.Writer, msg string, opts OutputOptions) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

// Warning outputs a progress line that needs the user's attention.
func Warning(w io.Writer, msg string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgYellow, msg)
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}

// Error outputs "Error: <message>".
func Error(w io.Writer, msg string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgRed, "Error:")
		_, err := fmt.Fprintf(w, " %s\n", msg)
		return err
	}
	_, err := fmt.Fprintf(w, "Error: %s\n", msg)
	return err
}

// Summary outputs the result block shown when no output file was requested:
//
//	Success! Page loaded (N bytes)
//	   URL: <url>
func Summary(w io.Writer, bytes int, url string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgGreen, "Success!")
		fmt.Fprintf(w, " Page loaded (%d bytes)\n", bytes)
	} else {
		fmt.Fprintf(w, "Success! Page loaded (%d bytes)\n", bytes)
	}
	_, err := fmt.Fprintf(w, "   URL: %s\n", url)
	return err
}
