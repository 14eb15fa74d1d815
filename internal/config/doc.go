// Package config loads optional stealthfetch defaults from a YAML file.
// Command-line flags override anything set here.
package config
