// Package config loads claude-relay settings from a YAML or TOML file and
// CLAUDE_RELAY_* environment variables, and watches the file for changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/randalmurphal/claude-relay/claudecontract"
	"github.com/randalmurphal/claude-relay/relay"
)

// Config holds relay server configuration.
// Zero values use sensible defaults where noted.
type Config struct {
	// --- Server ---

	// Listen is the HTTP address for the websocket and admin endpoints.
	// Default: "127.0.0.1:3001".
	Listen string `json:"listen" yaml:"listen" toml:"listen"`

	// AllowedOrigins lists websocket Origin values accepted in addition to
	// same-origin requests. "*" accepts any origin.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`

	// --- CLI ---

	// ClaudePath is the path to the claude CLI binary.
	// Default: "claude" (found via PATH).
	ClaudePath string `json:"claude_path" yaml:"claude_path" toml:"claude_path"`

	// WorkDir is used for requests that do not name a cwd.
	// Default: the relay's working directory.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`

	// GracePeriod is the delay between SIGTERM and SIGKILL on abort.
	// Default: 5s.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period" toml:"grace_period"`

	// --- Request defaults ---

	// Model applies to requests that do not choose one. Optional.
	Model string `json:"model" yaml:"model" toml:"model"`

	// AllowedTools applies to requests with no allowed-tools list.
	AllowedTools []string `json:"allowed_tools" yaml:"allowed_tools" toml:"allowed_tools"`

	// DisallowedTools applies to requests with no disallowed-tools list.
	DisallowedTools []string `json:"disallowed_tools" yaml:"disallowed_tools" toml:"disallowed_tools"`

	// --- Logging ---

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// LogFormat is text or json. Default: text.
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:      "127.0.0.1:3001",
		ClaudePath:  claudecontract.DefaultBinary,
		GracePeriod: relay.DefaultGracePeriod,
		LogLevel:    "info",
		LogFormat:   LogFormatText,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.ClaudePath == "" {
		c.ClaudePath = d.ClaudePath
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	return c
}

// LoadFromEnv populates config fields from environment variables.
// Environment variables use the CLAUDE_RELAY_ prefix and take precedence
// over existing values.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("CLAUDE_RELAY_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CLAUDE_RELAY_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("CLAUDE_RELAY_CLAUDE_PATH"); v != "" {
		c.ClaudePath = v
	}
	if v := os.Getenv("CLAUDE_RELAY_WORK_DIR"); v != "" {
		c.WorkDir = v
	}
	if v := os.Getenv("CLAUDE_RELAY_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GracePeriod = d
		}
	}
	if v := os.Getenv("CLAUDE_RELAY_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CLAUDE_RELAY_ALLOWED_TOOLS"); v != "" {
		c.AllowedTools = splitList(v)
	}
	if v := os.Getenv("CLAUDE_RELAY_DISALLOWED_TOOLS"); v != "" {
		c.DisallowedTools = splitList(v)
	}
	if v := os.Getenv("CLAUDE_RELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CLAUDE_RELAY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.ClaudePath == "" {
		return fmt.Errorf("claude_path is required")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be >= 0, got %v", c.GracePeriod)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("log_format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat)
	}
	return nil
}

// ParseLevel converts a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}

// ToOptions converts the config to relay runner options.
func (c *Config) ToOptions() []relay.Option {
	opts := make([]relay.Option, 0, 4)

	if c.ClaudePath != "" {
		opts = append(opts, relay.WithClaudePath(c.ClaudePath))
	}
	if c.WorkDir != "" {
		opts = append(opts, relay.WithWorkdir(c.WorkDir))
	}
	if c.GracePeriod > 0 {
		opts = append(opts, relay.WithGracePeriod(c.GracePeriod))
	}
	if c.Model != "" || len(c.AllowedTools) > 0 || len(c.DisallowedTools) > 0 {
		opts = append(opts, relay.WithDefaults(c.Model, relay.ToolsSettings{
			AllowedTools:    c.AllowedTools,
			DisallowedTools: c.DisallowedTools,
		}))
	}

	return opts
}
