package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// CleanupFunc releases one resource during shutdown.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name     string
	fn       CleanupFunc
	priority int // lower = earlier execution
}

// Registry runs cleanup functions once, in priority order.
//
// Priorities used by edgedetect:
//   - 10: history database
//   - 40: partial artifacts in the output directory
//   - 90: logger sync
type Registry struct {
	mu      sync.Mutex
	entries []cleanupEntry
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registration after Run is a no-op.
func (r *Registry) Register(name string, priority int, fn CleanupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || fn == nil {
		return
	}
	r.entries = append(r.entries, cleanupEntry{name: name, fn: fn, priority: priority})
}

// Run calls every function, even after failures, and combines their
// errors. Subsequent calls return nil.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var err error
	for _, entry := range sorted {
		if ferr := entry.fn(ctx); ferr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", entry.name, ferr))
		}
	}
	return err
}

// Names returns the registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []cleanupEntry {
	sorted := make([]cleanupEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}
