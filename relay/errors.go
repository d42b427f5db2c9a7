package relay

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for relay operations.
var (
	// ErrProcessFailed indicates the CLI exited with a non-zero status.
	ErrProcessFailed = errors.New("claude process failed")

	// ErrStartFailed indicates the CLI could not be spawned.
	ErrStartFailed = errors.New("start claude")

	// ErrNilSink indicates Run was called without a sink.
	ErrNilSink = errors.New("nil sink")
)

// maxStderrLength bounds how much captured stderr is carried in errors.
const maxStderrLength = 4096

// Error describes a run that failed after the request was accepted.
type Error struct {
	Op        string // "start", "stream", "wait"
	SessionID string // real ID if known, else the key the run was registered under
	ExitCode  int    // -1 when the process did not exit normally
	Stderr    string // captured stderr, trimmed
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("claude %s: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// sanitizeStderr keeps the tail of stderr, where the CLI prints the reason
// it gave up.
func sanitizeStderr(stderr string) string {
	if len(stderr) > maxStderrLength {
		cut := len(stderr) - maxStderrLength
		for cut < len(stderr) && !utf8.RuneStart(stderr[cut]) {
			cut++
		}
		stderr = "(truncated) ..." + stderr[cut:]
	}
	return strings.TrimSpace(stderr)
}
