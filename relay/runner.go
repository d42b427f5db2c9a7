package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/randalmurphal/claude-relay/attachments"
	"github.com/randalmurphal/claude-relay/claudecontract"
	"github.com/randalmurphal/claude-relay/session"
)

// maxScanTokenSize bounds a single stream-json line.
const maxScanTokenSize = 10 * 1024 * 1024

// Runner spawns claude per request and relays its output. A Runner is safe
// for concurrent use; each Run owns its own process and registry entry.
type Runner struct {
	registry *session.Registry

	claudePath   string
	workdir      string
	grace        time.Duration
	defaultModel string
	defaultTools ToolsSettings

	logger   *slog.Logger
	observer Observer
}

// NewRunner creates a runner that registers runs in reg.
func NewRunner(reg *session.Registry, opts ...Option) *Runner {
	r := defaultRunner()
	r.registry = reg
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

// Registry returns the registry runs are tracked in.
func (r *Runner) Registry() *session.Registry {
	return r.registry
}

// IsActive reports whether a run is registered and active under id.
func (r *Runner) IsActive(id string) bool {
	return r.registry.IsActive(id)
}

// ActiveSessions returns a snapshot of the registered session IDs.
func (r *Runner) ActiveSessions() []string {
	return r.registry.List()
}

// run carries the per-request state of one Run call.
type run struct {
	opts      Options
	prompt    string
	sink      Sink
	key       string // current registry key
	sessionID string // real ID once reported by the CLI
	announced bool   // session-created sent
	logger    *slog.Logger
}

// Run executes one request to completion. It returns nil when the CLI exits
// 0 or when the run was aborted, and an *Error after sending an ErrorEvent
// otherwise. Cancelling ctx terminates the process the same way Abort does.
func (r *Runner) Run(ctx context.Context, prompt string, opts Options, sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}
	opts = r.withDefaults(opts)

	st := &run{
		opts:   opts,
		prompt: prompt,
		sink:   sink,
		logger: r.logger,
	}

	workdir := opts.Cwd
	if workdir == "" {
		workdir = r.workdir
	}

	staged := attachments.Stage(ctx, r.logger, prompt, opts.Images, workdir)
	args := BuildArgs(staged.Prompt, opts)
	entry := session.NewEntry(staged.Files, staged.Dir)

	cmd := exec.Command(r.claudePath, args...)
	cmd.Dir = workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.grace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.failStart(ctx, st, entry, fmt.Errorf("create stdout pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return r.failStart(ctx, st, entry, err)
	}

	entry.Attach(groupProcess{pid: cmd.Process.Pid})
	st.key = opts.SessionID
	if st.key == "" || !r.registry.Register(st.key, entry) {
		if st.key != "" {
			r.logger.Warn("session already running, tracking under a provisional id",
				slog.String("session", st.key))
		}
		st.key = r.registry.ProvisionalID()
		r.registry.Put(st.key, entry)
	}
	r.observer.RunStarted()
	st.logger = r.logger.With(slog.String("session", st.key))
	st.logger.Debug("claude started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("workdir", workdir),
		slog.Int("attachments", len(staged.Files)))

	// The callback runs on its own goroutine while stream may replace
	// st.logger, so it logs through a copy.
	logger := st.logger
	stop := context.AfterFunc(ctx, func() {
		logger.Debug("context done, terminating claude")
		_ = r.terminate(entry)
	})
	defer stop()

	scanErr := r.stream(st, stdout)
	if scanErr != nil {
		// Nobody drains stdout any more; the CLI would block on a full pipe.
		_ = entry.Process().Kill()
	}
	waitErr := cmd.Wait()
	entry.MarkExited()

	return r.finish(ctx, st, entry, waitErr, scanErr, stderr.String())
}

// stream forwards stdout line by line until EOF.
func (r *Runner) stream(st *run, stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			st.logger.Debug("forwarding non-JSON output line", slog.Any("error", err))
			r.send(st, Response{Data: TextPayload(string(line))})
			continue
		}

		if rec.SessionID != "" && st.sessionID == "" {
			r.captureSessionID(st, rec.SessionID)
		}
		if rec.IsResult() && rec.TotalCostUSD != nil {
			st.logger.Info("claude run cost",
				slog.Float64("total_cost_usd", *rec.TotalCostUSD),
				slog.String("subtype", rec.Subtype))
		}

		r.send(st, Response{Data: RecordPayload(rec)})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	return nil
}

// captureSessionID rekeys the run under the CLI's session ID, binds the sink
// and announces new sessions once.
func (r *Runner) captureSessionID(st *run, id string) {
	st.sessionID = id

	if id != st.key {
		moved, err := r.registry.Rekey(st.key, id)
		switch {
		case err != nil:
			st.logger.Warn("could not rekey session", slog.String("session_id", id), slog.Any("error", err))
		case moved:
			st.key = id
			st.logger = r.logger.With(slog.String("session", id))
		}
	}

	if binder, ok := st.sink.(SessionBinder); ok {
		binder.SetSessionID(id)
	}

	if st.opts.SessionID == "" && !st.announced {
		st.announced = true
		r.send(st, SessionCreated{SessionID: id})
	}
}

// finish removes the run from the registry and reports the outcome. When
// the entry is already gone, Abort finalized the run and nothing is sent.
func (r *Runner) finish(ctx context.Context, st *run, entry *session.Entry, waitErr, scanErr error, stderr string) error {
	if _, ok := r.registry.Take(st.key); !ok {
		st.logger.Info("claude run aborted")
		r.observer.RunFinished(OutcomeAborted)
		return nil
	}
	attachments.Cleanup(context.WithoutCancel(ctx), st.logger, entry.Files(), entry.Dir())

	id := st.sessionID
	if id == "" {
		id = st.opts.SessionID
	}

	exitCode, err := exitStatus(waitErr)
	op := "wait"
	switch {
	case err != nil:
	case scanErr != nil:
		op, err = "stream", scanErr
	case exitCode != claudecontract.ExitCodeSuccess:
		err = fmt.Errorf("%w: exit code %d", ErrProcessFailed, exitCode)
	}
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		err = fmt.Errorf("%w (%w)", err, ctxErr)
	}

	if err != nil {
		entry.SetStatus(session.StatusErrored)
		runErr := &Error{
			Op:        op,
			SessionID: st.key,
			ExitCode:  exitCode,
			Stderr:    sanitizeStderr(stderr),
			Err:       err,
		}
		st.logger.Warn("claude run failed", slog.Int("exit_code", exitCode), slog.Any("error", runErr))
		r.send(st, ErrorEvent{Error: runErr.Error()})
		r.observer.RunFinished(OutcomeFailed)
		return runErr
	}

	entry.SetStatus(session.StatusCompleted)
	st.logger.Debug("claude run completed", slog.Duration("elapsed", time.Since(entry.StartedAt())))
	r.send(st, Complete{
		SessionID:    id,
		ExitCode:     exitCode,
		IsNewSession: st.opts.SessionID == "" && st.prompt != "",
	})
	r.observer.RunFinished(OutcomeCompleted)
	return nil
}

// failStart handles a CLI that never ran. The entry was never registered,
// so only its attachments need removing.
func (r *Runner) failStart(ctx context.Context, st *run, entry *session.Entry, err error) error {
	attachments.Cleanup(context.WithoutCancel(ctx), st.logger, entry.Files(), entry.Dir())
	entry.SetStatus(session.StatusErrored)

	runErr := &Error{
		Op:        "start",
		SessionID: st.opts.SessionID,
		ExitCode:  -1,
		Err:       fmt.Errorf("%w: %w", ErrStartFailed, err),
	}
	r.logger.Error("failed to start claude", slog.String("path", r.claudePath), slog.Any("error", err))
	r.send(st, ErrorEvent{Error: runErr.Error()})
	r.observer.RunFinished(OutcomeFailed)
	return runErr
}

// send delivers ev without letting sink failures affect the run.
func (r *Runner) send(st *run, ev Event) {
	if err := st.sink.Send(ev); err != nil {
		st.logger.Debug("sink send failed", slog.String("event", string(ev.Type())), slog.Any("error", err))
		return
	}
	r.observer.EventSent(ev.Type())
}

// withDefaults fills model and tools from the runner defaults.
func (r *Runner) withDefaults(opts Options) Options {
	if opts.Model == "" {
		opts.Model = r.defaultModel
	}
	if len(opts.ToolsSettings.AllowedTools) == 0 {
		opts.ToolsSettings.AllowedTools = r.defaultTools.AllowedTools
	}
	if len(opts.ToolsSettings.DisallowedTools) == 0 {
		opts.ToolsSettings.DisallowedTools = r.defaultTools.DisallowedTools
	}
	return opts
}

// exitStatus splits a Wait error into an exit code and a non-exit failure.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, os.ErrProcessDone) {
		return -1, nil
	}
	return -1, err
}
