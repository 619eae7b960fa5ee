package task

import (
	"context"
	"sync"
	"time"
)

// entry is the mutable record behind one task. snap and started are
// guarded by mu; the other fields are set at submit and never change.
type entry struct {
	mu      sync.Mutex
	snap    Snapshot
	started time.Time // when the worker began running
	cancel  context.CancelFunc
	request Request
	done    chan struct{} // closed once the task is terminal
}

// snapshot copies the entry state under its lock.
func (e *entry) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Registry is the process-scoped store of tasks. Entries are added on
// submit and never evicted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) add(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.snap.ID] = e
	r.order = append(r.order, e.snap.ID)
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Snapshots returns a copy of every task in submission order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	out := make([]Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
