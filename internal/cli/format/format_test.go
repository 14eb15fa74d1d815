package format

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
)

func init() {
	// Disable colors in tests for consistent output
	color.NoColor = true
}

func TestNewOutputOptions(t *testing.T) {
	tests := []struct {
		name             string
		jsonOutput       bool
		noColorFlag      bool
		noColorEnv       string
		file             *os.File
		expectedUseColor bool
	}{
		{
			name:             "JSON output disables color",
			jsonOutput:       true,
			file:             os.Stderr,
			expectedUseColor: false,
		},
		{
			name:             "no-color flag disables color",
			noColorFlag:      true,
			file:             os.Stderr,
			expectedUseColor: false,
		},
		{
			name:             "NO_COLOR env disables color",
			noColorEnv:       "1",
			file:             os.Stderr,
			expectedUseColor: false,
		},
		{
			name:             "nil file disables color",
			expectedUseColor: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColorEnv)

			opts := NewOutputOptions(tt.jsonOutput, tt.noColorFlag, tt.file)
			if opts.UseColor != tt.expectedUseColor {
				t.Errorf("UseColor = %v, want %v", opts.UseColor, tt.expectedUseColor)
			}
		})
	}
}

func TestStep(t *testing.T) {
	var buf bytes.Buffer
	if err := Step(&buf, "Starting browser...", OutputOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "Starting browser...\n" {
		t.Errorf("got %q", got)
	}
}

func TestWarning(t *testing.T) {
	for _, useColor := range []bool{false, true} {
		var buf bytes.Buffer
		msg := "Page may be blocked. Try a different proxy or run headful."
		if err := Warning(&buf, msg, OutputOptions{UseColor: useColor}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// color.NoColor suppresses escape codes either way
		if got := buf.String(); got != msg+"\n" {
			t.Errorf("UseColor=%v: got %q", useColor, got)
		}
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	if err := Error(&buf, "test error", OutputOptions{UseColor: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "Error: test error\n"
	if got := buf.String(); got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, 1256, "https://example.com/", OutputOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "Success! Page loaded (1256 bytes)\n   URL: https://example.com/\n"
	if got := buf.String(); got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}
