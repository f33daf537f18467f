package secrets

import (
	"errors"

	"github.com/fyrsmithlabs/inboxd/internal/config"
)

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Config configures the scrubber.
type Config struct {
	// Enabled controls whether scrubbing is active.
	Enabled bool

	// AllowlistFile is an optional gitleaks-style TOML allowlist.
	AllowlistFile string

	// Allowlist holds extra content patterns that are never redacted.
	Allowlist []string
}

// DefaultConfig enables scrubbing with no allowlist.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// FromSettings builds a Config from the file/env facing settings.
func FromSettings(s config.SecretsConfig) Config {
	return Config{Enabled: s.Enabled, AllowlistFile: s.AllowlistFile}
}
