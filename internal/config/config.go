package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Session storage backends.
const (
	SessionBackendFile   = "file"
	SessionBackendSQLite = "sqlite"
	SessionBackendMemory = "memory"
)

// Config holds all AURA client configuration.
type Config struct {
	Name string `yaml:"name"`

	// Backend is the chat/auth service the client talks to.
	Backend BackendConfig `yaml:"backend"`

	// Session controls where the login token is persisted.
	Session SessionConfig `yaml:"session"`

	Chat  ChatConfig  `yaml:"chat"`
	Guest GuestConfig `yaml:"guest"`
	Reset ResetConfig `yaml:"reset"`

	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the HTTP collaborator.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" env:"AURA_API_URL"`
	RequestTimeout string `yaml:"request_timeout" env:"AURA_REQUEST_TIMEOUT"`
}

// SessionConfig configures the SessionStore backend.
type SessionConfig struct {
	Backend      string `yaml:"backend" env:"AURA_SESSION_BACKEND"` // file, sqlite, memory
	Path         string `yaml:"path" env:"AURA_SESSION_PATH"`
	DatabasePath string `yaml:"database_path" env:"AURA_DB"`
}

// ChatConfig holds the fixed transcript strings.
type ChatConfig struct {
	Greeting string `yaml:"greeting"`
	Apology  string `yaml:"apology"`
}

// GuestConfig configures the sign-in nudge shown to guests.
type GuestConfig struct {
	PromptDelay string `yaml:"prompt_delay" env:"AURA_GUEST_PROMPT_DELAY"`
	Disabled    bool   `yaml:"disabled" env:"AURA_GUEST_PROMPT_DISABLED"`
}

// ResetConfig configures the password reset flow.
type ResetConfig struct {
	ResendCooldown string `yaml:"resend_cooldown"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home := DefaultHomeDir()
	return &Config{
		Name: "aura",

		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: "60s",
		},

		Session: SessionConfig{
			Backend:      SessionBackendFile,
			Path:         filepath.Join(home, "session.json"),
			DatabasePath: filepath.Join(home, "aura.db"),
		},

		Chat: ChatConfig{
			Greeting: "Hello! I am AURA. How can I assist you today?",
			Apology:  "Sorry, I couldn't reach the assistant right now. Please try again.",
		},

		Guest: GuestConfig{
			PromptDelay: "1.5s",
		},

		Reset: ResetConfig{
			ResendCooldown: "30s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   filepath.Join(home, "logs", "aura.log"),
		},
	}
}

// DefaultHomeDir returns ~/.aura, or .aura when the home directory is unknown.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aura"
	}
	return filepath.Join(home, ".aura")
}

// DefaultConfigPath returns the default path to config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultHomeDir(), "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies AURA_* environment variables on top of the file values.
// Unset variables leave the loaded value alone.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// Validate checks that required fields are set and well formed.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url cannot be empty")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}

	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.Path == "" {
			return fmt.Errorf("session.path cannot be empty for the file backend")
		}
	case SessionBackendSQLite:
		if c.Session.DatabasePath == "" {
			return fmt.Errorf("session.database_path cannot be empty for the sqlite backend")
		}
	case SessionBackendMemory:
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}

	if c.Chat.Greeting == "" {
		return fmt.Errorf("chat.greeting cannot be empty")
	}
	if c.Chat.Apology == "" {
		return fmt.Errorf("chat.apology cannot be empty")
	}
	return nil
}

// GetRequestTimeout returns the per-request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.RequestTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetGuestPromptDelay returns the guest nudge delay as a duration.
func (c *Config) GetGuestPromptDelay() time.Duration {
	d, err := time.ParseDuration(c.Guest.PromptDelay)
	if err != nil || d < 0 {
		return 1500 * time.Millisecond
	}
	return d
}

// GetResendCooldown returns the minimum spacing between OTP resends.
func (c *Config) GetResendCooldown() time.Duration {
	d, err := time.ParseDuration(c.Reset.ResendCooldown)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}
