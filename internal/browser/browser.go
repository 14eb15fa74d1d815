package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StartTimeout bounds how long Start waits for the CDP endpoint.
const StartTimeout = 30 * time.Second

// shutdownGrace is how long Close waits after an interrupt before killing.
const shutdownGrace = 5 * time.Second

// Browser represents a running Chrome instance with CDP enabled.
type Browser struct {
	cmd      *exec.Cmd
	port     int
	dataDir  string
	ownsData bool // true if we created the temp data dir

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// ErrBrowserClosed is returned when operating on a closed browser.
var ErrBrowserClosed = errors.New("browser is closed")

// ErrNoPageTarget is returned when no page target is available.
var ErrNoPageTarget = errors.New("no page target found")

// ErrStartTimeout is returned when the browser fails to start in time.
var ErrStartTimeout = errors.New("browser start timeout")

// ErrBrowserExited is returned when Chrome dies before its CDP endpoint is up.
var ErrBrowserExited = errors.New("browser exited during startup")

// StartWithBinary launches Chrome from binPath. It returns once the CDP
// endpoint answers, or fails with ErrStartTimeout or ErrBrowserExited.
func StartWithBinary(ctx context.Context, binPath string, opts LaunchOptions) (*Browser, error) {
	cmd, dataDir, ownsData, err := spawnProcess(binPath, opts)
	if err != nil {
		return nil, err
	}

	b := &Browser{
		cmd:      cmd,
		port:     opts.Port,
		dataDir:  dataDir,
		ownsData: ownsData,
		exited:   make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go func() {
		b.waitErr = cmd.Wait()
		close(b.exited)
	}()

	ctx, cancel := context.WithTimeout(ctx, StartTimeout)
	defer cancel()

	if err := b.waitForCDP(ctx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// waitForCDP polls until the DevTools endpoint answers /json/version. With
// an ephemeral port the port is first read from DevToolsActivePort.
func (b *Browser) waitForCDP(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 0 // bounded by ctx

	var lastErr error
	err := backoff.Retry(func() error {
		select {
		case <-b.exited:
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrBrowserExited, b.waitErr))
		default:
		}

		if b.port == 0 {
			port, err := readActivePort(b.dataDir)
			if err != nil {
				lastErr = err
				return err
			}
			b.port = port
		}

		if _, err := FetchVersion(ctx, "127.0.0.1", b.port); err != nil {
			lastErr = err
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBrowserExited) {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrStartTimeout, lastErr)
	}
	return ErrStartTimeout
}

// readActivePort parses the port Chrome writes to DevToolsActivePort when
// started with --remote-debugging-port=0. The first line is the port; the
// second is the browser target path.
func readActivePort(dataDir string) (int, error) {
	f, err := os.Open(filepath.Join(dataDir, "DevToolsActivePort"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, errors.New("DevToolsActivePort is empty")
	}
	port, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("invalid DevToolsActivePort line %q", scanner.Text())
	}
	return port, nil
}

// Port returns the CDP debugging port.
func (b *Browser) Port() int {
	return b.port
}

// PID returns the browser process ID.
func (b *Browser) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// DataDir returns the profile directory in use.
func (b *Browser) DataDir() string {
	return b.dataDir
}

func (b *Browser) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// Targets fetches the list of available CDP targets.
func (b *Browser) Targets(ctx context.Context) ([]Target, error) {
	if b.isClosed() {
		return nil, ErrBrowserClosed
	}
	return FetchTargets(ctx, "127.0.0.1", b.port)
}

// PageTarget returns the first page-type target.
func (b *Browser) PageTarget(ctx context.Context) (*Target, error) {
	targets, err := b.Targets(ctx)
	if err != nil {
		return nil, err
	}

	target := FindPageTarget(targets)
	if target == nil {
		return nil, ErrNoPageTarget
	}

	return target, nil
}

// Version fetches the browser version information.
func (b *Browser) Version(ctx context.Context) (*VersionInfo, error) {
	if b.isClosed() {
		return nil, ErrBrowserClosed
	}
	return FetchVersion(ctx, "127.0.0.1", b.port)
}

// WebSocketURL returns the WebSocket URL for connecting to the first page target.
func (b *Browser) WebSocketURL(ctx context.Context) (string, error) {
	target, err := b.PageTarget(ctx)
	if err != nil {
		return "", err
	}

	if target.WebSocketURL == "" {
		return "", fmt.Errorf("target %s has no WebSocket URL", target.ID)
	}

	return target.WebSocketURL, nil
}

// Close interrupts the browser, kills it if it lingers, and removes a
// temporary profile. Only the first call does any work.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.terminate()

		if b.ownsData && b.dataDir != "" {
			os.RemoveAll(b.dataDir)
		}
	})
	return nil
}

func (b *Browser) terminate() {
	if b.cmd == nil || b.cmd.Process == nil {
		return
	}

	select {
	case <-b.exited:
		return
	default:
	}

	if err := b.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = b.cmd.Process.Kill()
	}

	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()

	select {
	case <-b.exited:
	case <-timer.C:
		_ = b.cmd.Process.Kill()
		<-b.exited
	}
}
