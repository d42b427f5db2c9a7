package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/randalmurphal/claude-relay/attachments"
	"github.com/randalmurphal/claude-relay/session"
)

// Abort stops the run registered under id. It returns false, with no error,
// when no such run exists. The returned error reports a failure to signal
// the process; the entry is removed and its files cleaned up regardless.
//
// Termination is asynchronous: SIGTERM is sent now and SIGKILL after the
// grace period unless the process has exited by then.
func (r *Runner) Abort(ctx context.Context, id string) (bool, error) {
	entry, ok := r.registry.Take(id)
	r.observer.AbortRequested(ok)
	if !ok {
		r.logger.Debug("abort: session not found", slog.String("session", id))
		return false, nil
	}

	entry.SetStatus(session.StatusAborted)
	err := r.terminate(entry)
	attachments.Cleanup(ctx, r.logger.With(slog.String("session", id)), entry.Files(), entry.Dir())

	r.logger.Info("claude run aborted by request",
		slog.String("session", id),
		slog.Duration("elapsed", time.Since(entry.StartedAt())))
	return true, err
}

// AbortAll aborts every registered run. Used at shutdown.
func (r *Runner) AbortAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.registry.List() {
		if _, err := r.Abort(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// terminate sends SIGTERM and schedules SIGKILL after the grace period. It
// does not wait for the process.
func (r *Runner) terminate(entry *session.Entry) error {
	p := entry.Process()
	if p == nil || entry.Exited() {
		return nil
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	time.AfterFunc(r.grace, func() {
		if entry.Exited() {
			return
		}
		r.logger.Warn("claude did not exit after SIGTERM, killing", slog.Duration("grace", r.grace))
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.logger.Warn("failed to kill claude", slog.Any("error", err))
		}
	})
	return nil
}
