package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the inboxd config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "inboxd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, ProviderHeuristic, cfg.Gateway.Provider)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout.Duration())
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "inboxd", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 4, cfg.Batch.Parallelism)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `gateway:
  provider: heuristic
  timeout: 5s
server:
  port: 8088
logging:
  level: debug
  format: json
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout.Duration())
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 8088\n", 0600)

	t.Setenv("INBOXD_SERVER_PORT", "9999")
	t.Setenv("INBOXD_GATEWAY_TIMEOUT", "2s")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Gateway.Timeout.Duration())
}

func TestLoadWithFile_ProviderKeyFallback(t *testing.T) {
	setupTestHome(t)

	t.Setenv("INBOXD_GATEWAY_PROVIDER", "googleai")
	t.Setenv("GOOGLE_API_KEY", "gk-test-value")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "gk-test-value", cfg.Gateway.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Gateway.APIKey.String())
}

func TestLoadWithFile_RemoteProviderWithoutKey(t *testing.T) {
	setupTestHome(t)

	t.Setenv("INBOXD_GATEWAY_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadWithFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an api key")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 8088\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INBOXD_TEST_DOTENV=from-file\nINBOXD_TEST_KEEP=from-file\n"), 0600))

	t.Setenv("INBOXD_TEST_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("INBOXD_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("INBOXD_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("INBOXD_TEST_KEEP"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"INBOXD_GATEWAY_API_KEY":         "gateway.api_key",
		"INBOXD_SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
		"INBOXD_NATS_URL":                "nats.url",
		"INBOXD_VERBOSE":                 "verbose",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	assert.Equal(t, "", Secret("").String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Gateway.Provider = "llama" }, "unknown gateway provider"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"bad sampling", func(c *Config) { c.Telemetry.SamplingRate = 2 }, "sampling_rate"},
		{"bad parallelism", func(c *Config) { c.Batch.Parallelism = -1 }, "parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
