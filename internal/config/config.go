package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName is used for the XDG config directory.
const AppName = "stealthfetch"

// LocalConfigFile is looked up in the working directory.
const LocalConfigFile = ".stealthfetch.yaml"

// Defaults.
const (
	DefaultWait    = 5
	DefaultTimeout = 30
)

// Config holds the settings a config file may provide. Durations are whole
// seconds.
type Config struct {
	Wait             int    `yaml:"wait"`
	Headless         bool   `yaml:"headless"`
	Proxy            string `yaml:"proxy"`
	UserAgent        string `yaml:"user_agent"`
	Chrome           string `yaml:"chrome"`
	Timeout          int    `yaml:"timeout"`
	ChallengeTimeout int    `yaml:"challenge_timeout"`
	FullPage         bool   `yaml:"full_page"`

	// Profile is a persistent Chrome user data directory. Empty uses a
	// throwaway profile.
	Profile    string   `yaml:"profile"`
	DebugPort  int      `yaml:"debug_port"`
	ChromeArgs []string `yaml:"chrome_args"`
}

// Default returns the built-in settings: headful, 5s wait, 30s load timeout,
// challenge polling off.
func Default() *Config {
	return &Config{
		Wait:    DefaultWait,
		Timeout: DefaultTimeout,
	}
}

// XDGConfigFile returns the per-user config path,
// e.g. ~/.config/stealthfetch/config.yaml on Linux.
func XDGConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if c.Wait < 0 {
		return ErrInvalidWait
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ChallengeTimeout < 0 {
		return ErrInvalidChallengeTimeout
	}
	if c.DebugPort < 0 || c.DebugPort > 65535 {
		return ErrInvalidDebugPort
	}
	if c.Proxy != "" {
		if err := ValidateProxy(c.Proxy); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProxy checks that raw is an absolute proxy URL with a host.
func ValidateProxy(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		// url.Error quotes the raw URL, credentials included
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	switch u.Scheme {
	case "http", "https", "socks4", "socks5":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}
	return nil
}

// Find returns the config file to use, or "" when there is none.
// Search order:
//  1. explicit, which must exist
//  2. ./.stealthfetch.yaml
//  3. $XDG_CONFIG_HOME/stealthfetch/config.yaml
func Find(explicit string) (string, error) {
	cwd, _ := os.Getwd()
	return find(explicit, cwd, XDGConfigFile())
}

func find(explicit, cwd, userFile string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
		}
		return explicit, nil
	}

	candidates := []string{userFile}
	if cwd != "" {
		candidates = []string{filepath.Join(cwd, LocalConfigFile), userFile}
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

// Load finds and parses the config file, layered over Default. It returns
// the path that was read, or "" when defaults were used.
func Load(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return Default(), "", nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile parses path over Default and validates the result. Unknown keys
// are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
