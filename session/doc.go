// Package session tracks the claude processes that are currently running on
// behalf of clients.
//
// A Registry maps a session ID to an Entry that owns the process handle and
// the temporary attachment files of one run. A run registers under a
// provisional ID until the CLI reports its real session ID, at which point the
// entry is rekeyed. Take removes an entry atomically so that exactly one of
// the natural-exit path and the abort path finalizes a run.
//
// # Lifecycle
//
// Entries move through:
//   - StatusPending: created, process not yet started
//   - StatusActive: process running and registered
//   - StatusCompleted, StatusAborted, StatusErrored: terminal
//
// # Thread Safety
//
// Registry and Entry are safe for concurrent use from multiple goroutines.
package session
