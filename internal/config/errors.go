package config

import "errors"

// Sentinel errors returned by Load and Config.Validate. Callers match them
// with errors.Is.
var (
	// ErrConfigNotFound is returned when an explicitly named config file
	// does not exist. Missing files on the default search path are not an
	// error.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfig wraps YAML syntax errors and unknown keys.
	ErrInvalidConfig = errors.New("invalid configuration file")

	// ErrInvalidWait is returned when wait is negative.
	ErrInvalidWait = errors.New("invalid wait: must be non-negative")

	// ErrInvalidTimeout is returned when the page load timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidChallengeTimeout is returned when challenge_timeout is
	// negative. Zero disables challenge polling.
	ErrInvalidChallengeTimeout = errors.New("invalid challenge timeout: must be non-negative")

	// ErrInvalidDebugPort is returned for a debug_port outside 0-65535.
	// Zero lets Chrome pick a free port.
	ErrInvalidDebugPort = errors.New("invalid debug port: must be between 0 and 65535")

	// ErrInvalidProxy is returned for a proxy that is not an absolute
	// http, https, socks4 or socks5 URL.
	ErrInvalidProxy = errors.New("invalid proxy: expected scheme://host:port")
)
