// Package config provides configuration loading for inboxd.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file,
// an optional .env file and INBOXD_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete inboxd configuration.
type Config struct {
	Gateway   GatewayConfig   `koanf:"gateway"`
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Batch     BatchConfig     `koanf:"batch"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// GatewayConfig selects and tunes the extraction backend.
type GatewayConfig struct {
	// Provider is one of "heuristic", "googleai", "openai", "anthropic".
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
	// RateLimit is requests per second; Burst is the limiter bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig controls publishing of run events.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SecretsConfig controls scrubbing of raw input before extraction.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// BatchConfig controls the batch runner.
type BatchConfig struct {
	Parallelism   int  `koanf:"parallelism"`
	SharedSession bool `koanf:"shared_session"`
}

// LoggingConfig is the file/env facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the file/env facing subset of telemetry.Config.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Providers accepted by GatewayConfig.Provider.
const (
	ProviderHeuristic = "heuristic"
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// providerKeyEnv maps each remote provider to the conventional env var that
// holds its key when gateway.api_key is not set.
var providerKeyEnv = map[string]string{
	ProviderGoogleAI:  "GOOGLE_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Default returns a configuration that runs fully offline.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = ProviderHeuristic
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = Duration(30 * time.Second)
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = 50.0 / 60.0
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = 5
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "inboxd"
	}

	if cfg.Batch.Parallelism == 0 {
		cfg.Batch.Parallelism = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
}

// ResolveAPIKey fills Gateway.APIKey from the provider's conventional
// environment variable when no key was configured explicitly.
func (c *Config) ResolveAPIKey(getenv func(string) string) {
	if c.Gateway.APIKey.IsSet() {
		return
	}
	if name, ok := providerKeyEnv[c.Gateway.Provider]; ok {
		c.Gateway.APIKey = Secret(getenv(name))
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case ProviderHeuristic:
	case ProviderGoogleAI, ProviderOpenAI, ProviderAnthropic:
		if !c.Gateway.APIKey.IsSet() {
			return fmt.Errorf("gateway provider %q requires an api key (set %s or gateway.api_key)",
				c.Gateway.Provider, providerKeyEnv[c.Gateway.Provider])
		}
	default:
		return fmt.Errorf("unknown gateway provider: %q", c.Gateway.Provider)
	}

	if c.Gateway.Timeout.Duration() <= 0 {
		return errors.New("gateway timeout must be positive")
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway rate_limit must be >= 0, got %f", c.Gateway.RateLimit)
	}
	if c.Gateway.Burst < 1 {
		return fmt.Errorf("gateway burst must be >= 1, got %d", c.Gateway.Burst)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}

	if c.Batch.Parallelism < 1 {
		return fmt.Errorf("batch parallelism must be >= 1, got %d", c.Batch.Parallelism)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate)
	}

	return nil
}
