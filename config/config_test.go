package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:3001", cfg.Listen)
	assert.Equal(t, "claude", cfg.ClaudePath)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestWithDefaults_KeepsSetFields(t *testing.T) {
	cfg := Config{Listen: ":9000", GracePeriod: time.Second}.WithDefaults()

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, time.Second, cfg.GracePeriod)
	assert.Equal(t, "claude", cfg.ClaudePath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLAUDE_RELAY_LISTEN", ":8080")
	t.Setenv("CLAUDE_RELAY_CLAUDE_PATH", "/opt/claude")
	t.Setenv("CLAUDE_RELAY_WORK_DIR", "/srv/work")
	t.Setenv("CLAUDE_RELAY_GRACE_PERIOD", "250ms")
	t.Setenv("CLAUDE_RELAY_MODEL", "sonnet")
	t.Setenv("CLAUDE_RELAY_ALLOWED_TOOLS", "Read, Grep,,")
	t.Setenv("CLAUDE_RELAY_DISALLOWED_TOOLS", "Bash")
	t.Setenv("CLAUDE_RELAY_ALLOWED_ORIGINS", "http://localhost:5173")
	t.Setenv("CLAUDE_RELAY_LOG_LEVEL", "debug")
	t.Setenv("CLAUDE_RELAY_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/opt/claude", cfg.ClaudePath)
	assert.Equal(t, "/srv/work", cfg.WorkDir)
	assert.Equal(t, 250*time.Millisecond, cfg.GracePeriod)
	assert.Equal(t, "sonnet", cfg.Model)
	assert.Equal(t, []string{"Read", "Grep"}, cfg.AllowedTools)
	assert.Equal(t, []string{"Bash"}, cfg.DisallowedTools)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestLoadFromEnv_BadDurationIgnored(t *testing.T) {
	t.Setenv("CLAUDE_RELAY_GRACE_PERIOD", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing listen", func(c *Config) { c.Listen = "" }, "listen is required"},
		{"missing claude path", func(c *Config) { c.ClaudePath = "" }, "claude_path is required"},
		{"negative grace", func(c *Config) { c.GracePeriod = -time.Second }, "grace_period"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("")
	assert.Error(t, err)
}

func TestToOptions(t *testing.T) {
	cfg := Config{}
	assert.Empty(t, cfg.ToOptions())

	cfg = DefaultConfig()
	cfg.WorkDir = "/tmp"
	cfg.Model = "opus"
	assert.Len(t, cfg.ToOptions(), 4)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.yaml", `
listen: ":4000"
claude_path: /usr/local/bin/claude
grace_period: 2s
model: sonnet
allowed_tools: [Read, Write]
allowed_origins: ["*"]
log_level: warn
`)

	cfg, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Listen)
	assert.Equal(t, "/usr/local/bin/claude", cfg.ClaudePath)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
	assert.Equal(t, "sonnet", cfg.Model)
	assert.Equal(t, []string{"Read", "Write"}, cfg.AllowedTools)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestReadFile_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.toml", `
listen = ":4001"
grace_period = "1500ms"
disallowed_tools = ["Bash"]
log_format = "json"
`)

	cfg, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":4001", cfg.Listen)
	assert.Equal(t, 1500*time.Millisecond, cfg.GracePeriod)
	assert.Equal(t, []string{"Bash"}, cfg.DisallowedTools)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestReadFile_TOMLUnknownKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.toml", `lisen = ":4001"`)

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestReadFile_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.ini", "listen=:1")

	_, err := ReadFile(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.yml", "listen: \":4002\"\nmodel: haiku\n")
	t.Setenv("CLAUDE_RELAY_MODEL", "opus")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4002", cfg.Listen)
	assert.Equal(t, "opus", cfg.Model, "env overrides file")
	assert.Equal(t, "claude", cfg.ClaudePath, "defaults fill the rest")
}

func TestLoad_NoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relay.yaml", "log_format: xml\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.yaml", "log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { changes <- c })
	}()

	// Unrelated files in the same directory are ignored.
	writeFile(t, dir, "other.yaml", "log_level: error\n")

	// Rewrite until the watcher is registered and picks up a change.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got Config
wait:
	for {
		select {
		case got = <-changes:
			// A write can be observed before it is complete.
			if got.LogLevel == "debug" {
				break wait
			}
		case <-tick.C:
			writeFile(t, dir, "relay.yaml", "log_level: debug\n")
		case <-deadline:
			t.Fatal("no config change observed")
		}
	}
	assert.Equal(t, "debug", got.LogLevel)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "relay.yaml"), func(Config) {})
	assert.Error(t, err)
}
