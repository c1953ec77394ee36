package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "aura", cfg.Name)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, SessionBackendFile, cfg.Session.Backend)
	assert.Equal(t, "Hello! I am AURA. How can I assist you today?", cfg.Chat.Greeting)
	assert.Equal(t, 1500*time.Millisecond, cfg.GetGuestPromptDelay())
	assert.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetResendCooldown())
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://aura.example.com"
	cfg.Session.Backend = SessionBackendSQLite
	cfg.Guest.PromptDelay = "250ms"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://aura.example.com", loaded.Backend.BaseURL)
	assert.Equal(t, SessionBackendSQLite, loaded.Session.Backend)
	assert.Equal(t, 250*time.Millisecond, loaded.GetGuestPromptDelay())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Backend, cfg.Backend)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  base_url: http://10.0.0.5:9000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "60s", cfg.Backend.RequestTimeout)
	assert.Equal(t, DefaultConfig().Chat.Apology, cfg.Chat.Apology)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("AURA_API_URL overrides file value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend:\n  base_url: http://from-file:8000\n"), 0644))
		t.Setenv("AURA_API_URL", "http://from-env:8000")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://from-env:8000", cfg.Backend.BaseURL)
	})

	t.Run("session and logging overrides", func(t *testing.T) {
		t.Setenv("AURA_SESSION_BACKEND", "memory")
		t.Setenv("AURA_LOG_LEVEL", "debug")
		t.Setenv("AURA_GUEST_PROMPT_DISABLED", "true")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, SessionBackendMemory, cfg.Session.Backend)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Guest.Disabled)
	})

	t.Run("malformed bool is an error", func(t *testing.T) {
		t.Setenv("AURA_GUEST_PROMPT_DISABLED", "sometimes")

		cfg := DefaultConfig()
		assert.Error(t, cfg.applyEnvOverrides())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty base url", func(c *Config) { c.Backend.BaseURL = "" }, "base_url cannot be empty"},
		{"non-http base url", func(c *Config) { c.Backend.BaseURL = "ftp://host" }, "http(s) URL"},
		{"unknown backend", func(c *Config) { c.Session.Backend = "redis" }, "unknown session.backend"},
		{"file backend without path", func(c *Config) { c.Session.Path = "" }, "session.path"},
		{"sqlite backend without db", func(c *Config) {
			c.Session.Backend = SessionBackendSQLite
			c.Session.DatabasePath = ""
		}, "database_path"},
		{"empty apology", func(c *Config) { c.Chat.Apology = "" }, "apology"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("memory backend needs no path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Session.Backend = SessionBackendMemory
		cfg.Session.Path = ""
		cfg.Session.DatabasePath = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	cfg.Backend.RequestTimeout = "soon"
	cfg.Guest.PromptDelay = "-1s"
	cfg.Reset.ResendCooldown = ""

	assert.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.GetGuestPromptDelay())
	assert.Equal(t, 30*time.Second, cfg.GetResendCooldown())

	cfg.Guest.PromptDelay = "0s"
	assert.Equal(t, time.Duration(0), cfg.GetGuestPromptDelay())
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.True(t, lc.IsCategoryEnabled("chat"))

	lc.Categories = map[string]bool{"chat": false, "auth": true}
	assert.False(t, lc.IsCategoryEnabled("chat"))
	assert.True(t, lc.IsCategoryEnabled("auth"))
	assert.True(t, lc.IsCategoryEnabled("guest"))
}
