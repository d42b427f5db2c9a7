package session

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Registry maps session IDs to running entries. The zero value is not
// usable; create one with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	seq     atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// ProvisionalID returns a placeholder key derived from the current time,
// used until the CLI reports the real session ID. The sequence suffix keeps
// keys unique for runs started in the same millisecond.
func (r *Registry) ProvisionalID() string {
	return "pending-" + strconv.FormatInt(time.Now().UnixMilli(), 10) +
		"-" + strconv.FormatUint(r.seq.Add(1), 10)
}

// Put inserts or overwrites the entry under id.
func (r *Registry) Put(id string, e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// Register inserts e under id unless id is already taken.
func (r *Registry) Register(id string, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[id]; taken {
		return false
	}
	r.entries[id] = e
	return true
}

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Delete removes id. Missing keys are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Take removes and returns the entry under id. Of several concurrent callers
// for the same id exactly one receives ok == true.
func (r *Registry) Take(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

// Rekey moves the entry from oldID to newID in one step, so no reader sees
// both keys or neither. It returns false, and inserts nothing, when oldID is
// no longer registered (the run was aborted or already finished).
func (r *Registry) Rekey(oldID, newID string) (bool, error) {
	if oldID == newID {
		_, ok := r.Get(oldID)
		return ok, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[oldID]
	if !ok {
		return false, nil
	}
	if other, taken := r.entries[newID]; taken && other != e {
		return false, fmt.Errorf("session %s already registered", newID)
	}
	delete(r.entries, oldID)
	r.entries[newID] = e
	return true, nil
}

// IsActive reports whether id is registered with StatusActive.
func (r *Registry) IsActive(id string) bool {
	e, ok := r.Get(id)
	return ok && e.Status() == StatusActive
}

// List returns a sorted snapshot of the registered IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Info returns a snapshot of the entry under id.
func (r *Registry) Info(id string) (*Info, bool) {
	e, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return &Info{
		ID:        id,
		Status:    e.Status(),
		StartedAt: e.StartedAt(),
		Age:       time.Since(e.StartedAt()),
		Files:     len(e.Files()),
	}, true
}
