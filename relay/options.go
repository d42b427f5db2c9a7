package relay

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/claude-relay/attachments"
	"github.com/randalmurphal/claude-relay/claudecontract"
)

// Options are the per-request settings a client sends with a prompt. JSON
// names match the client wire format.
type Options struct {
	// SessionID resumes an existing session. Empty starts a new one.
	SessionID string `json:"sessionId,omitempty" yaml:"session_id"`

	// Cwd is the working directory of the CLI process.
	// Default: the runner's workdir, then the relay's own.
	Cwd string `json:"cwd,omitempty" yaml:"cwd"`

	// Model selects the model. Empty uses the runner default, then the CLI's.
	Model string `json:"model,omitempty" yaml:"model"`

	// Images are inline attachments as data URIs.
	Images []attachments.Image `json:"images,omitempty" yaml:"images"`

	ToolsSettings ToolsSettings `json:"toolsSettings,omitempty" yaml:"tools_settings"`
}

// ToolsSettings restricts the tools the CLI may use. Order is preserved.
type ToolsSettings struct {
	AllowedTools    []string `json:"allowedTools,omitempty" yaml:"allowed_tools"`
	DisallowedTools []string `json:"disallowedTools,omitempty" yaml:"disallowed_tools"`
}

// DefaultGracePeriod is how long Abort waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// Option configures a Runner.
type Option func(*Runner)

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) Option {
	return func(r *Runner) { r.claudePath = path }
}

// WithWorkdir sets the working directory used when a request has no Cwd.
func WithWorkdir(dir string) Option {
	return func(r *Runner) { r.workdir = dir }
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithDefaults sets the model and tool lists applied when a request leaves
// them empty.
func WithDefaults(model string, tools ToolsSettings) Option {
	return func(r *Runner) {
		r.defaultModel = model
		r.defaultTools = tools
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver sets the observer notified of run outcomes and sent events.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

func defaultRunner() Runner {
	return Runner{
		claudePath: claudecontract.DefaultBinary,
		grace:      DefaultGracePeriod,
		logger:     slog.Default(),
		observer:   NoopObserver{},
	}
}
