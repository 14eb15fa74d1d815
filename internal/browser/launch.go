package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/grantcarthew/stealthfetch/internal/stealth"
)

// LaunchOptions configures browser launch behavior.
type LaunchOptions struct {
	// Headless runs the browser without a visible window. Headful is the
	// stealthier default.
	Headless bool

	// Port for CDP remote debugging. Zero lets Chrome pick a free port,
	// which is read back from DevToolsActivePort in the profile directory.
	Port int

	// UserDataDir is the profile directory. Empty creates a temporary one
	// that Close removes.
	UserDataDir string

	// ProxyServer is passed to --proxy-server. It must not carry
	// credentials; Chrome ignores them there.
	ProxyServer string

	// ExtraArgs are appended after the built-in switches.
	ExtraArgs []string
}

// buildArgs constructs the Chrome command line. opts.UserDataDir must be
// resolved already.
func buildArgs(opts LaunchOptions) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		fmt.Sprintf("--user-data-dir=%s", opts.UserDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-popup-blocking",
	}

	// Keep the OS keyring dialogs out of the way
	switch runtime.GOOS {
	case "darwin":
		args = append(args, "--use-mock-keychain")
	case "linux":
		args = append(args, "--password-store=basic")
	}

	args = append(args, stealth.Flags(opts.Headless)...)

	if opts.ProxyServer != "" {
		args = append(args, "--proxy-server="+opts.ProxyServer)
	}

	args = append(args, opts.ExtraArgs...)

	// Start on a blank page; navigation happens over CDP
	return append(args, "about:blank")
}

func createTempDataDir() (string, error) {
	return os.MkdirTemp("", "stealthfetch-chrome-*")
}

// spawnProcess starts Chrome without waiting for it. It returns the command,
// the profile directory in use, and whether that directory was created here.
func spawnProcess(binPath string, opts LaunchOptions) (*exec.Cmd, string, bool, error) {
	ownsData := false
	if opts.UserDataDir == "" {
		dir, err := createTempDataDir()
		if err != nil {
			return nil, "", false, fmt.Errorf("create temp profile: %w", err)
		}
		opts.UserDataDir = dir
		ownsData = true
	}

	cmd := exec.Command(binPath, buildArgs(opts)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		if ownsData {
			os.RemoveAll(opts.UserDataDir)
		}
		return nil, "", false, fmt.Errorf("start browser: %w", err)
	}

	return cmd, opts.UserDataDir, ownsData, nil
}
