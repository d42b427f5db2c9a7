package session

import (
	"os"
	"sync"
	"time"
)

// Status represents the state of a run.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusErrored   Status = "errored"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusErrored
}

// Process is the handle the registry needs to stop a run. *os.Process
// satisfies it; the relay uses a process-group wrapper.
type Process interface {
	// Signal delivers sig (normally SIGTERM) to the process.
	Signal(sig os.Signal) error

	// Kill terminates the process unconditionally.
	Kill() error
}

// Entry is the mutable record for one run.
type Entry struct {
	process   Process
	startedAt time.Time
	files     []string
	dir       string

	mu     sync.Mutex
	status Status

	exitOnce sync.Once
	exited   chan struct{}
}

// NewEntry creates a pending entry owning the given attachment files and
// directory.
func NewEntry(files []string, dir string) *Entry {
	return &Entry{
		startedAt: time.Now(),
		files:     files,
		dir:       dir,
		status:    StatusPending,
		exited:    make(chan struct{}),
	}
}

// Attach records the started process and marks the entry active.
func (e *Entry) Attach(p Process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.process = p
	if e.status == StatusPending {
		e.status = StatusActive
	}
}

// Process returns the process handle, or nil before Attach.
func (e *Entry) Process() Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process
}

// StartedAt returns when the entry was created. The value carries Go's
// monotonic clock reading, so Since(StartedAt()) is immune to wall-clock
// changes.
func (e *Entry) StartedAt() time.Time {
	return e.startedAt
}

// Files returns the attachment paths owned by the entry.
func (e *Entry) Files() []string {
	return e.files
}

// Dir returns the attachment directory owned by the entry, if any.
func (e *Entry) Dir() string {
	return e.dir
}

// Status returns the current state.
func (e *Entry) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStatus moves the entry to s. Terminal states are sticky: once aborted,
// a later natural exit does not rewrite the outcome.
func (e *Entry) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return
	}
	e.status = s
}

// MarkExited records that the process has been reaped. Safe to call more
// than once.
func (e *Entry) MarkExited() {
	e.exitOnce.Do(func() { close(e.exited) })
}

// Exited reports whether the process has been reaped.
func (e *Entry) Exited() bool {
	select {
	case <-e.exited:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the process has been reaped.
func (e *Entry) Done() <-chan struct{} {
	return e.exited
}

// Info is a point-in-time view of an entry.
type Info struct {
	ID        string        `json:"id"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Age       time.Duration `json:"age"`
	Files     int           `json:"files"`
}
