// Package shutdown coordinates cancellation and cleanup when edgedetect
// receives SIGINT or SIGTERM.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTrackerClosed is returned by Launch after Close.
	ErrTrackerClosed = errors.New("shutdown: no new workers accepted")

	// ErrWaitTimeout is returned by Wait when workers are still running.
	ErrWaitTimeout = errors.New("shutdown: workers still running after timeout")
)

// OperationTracker starts band workers and keeps count of them. After
// Close it refuses new workers while the running ones finish, so Wait
// observes a count that only goes down.
//
// It implements filter.Launcher:
//
//	tracker := NewOperationTracker()
//	engine, _ := filter.NewEngine(23, filter.WithLauncher(tracker))
type OperationTracker struct {
	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup

	active  atomic.Int64
	started atomic.Int64
}

// NewOperationTracker returns an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers one unit of work and reports whether it was accepted.
// Every accepted Start must be paired with Done.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	// Add happens under mu so it cannot race with a Wait that began after
	// Close.
	t.running.Add(1)
	t.active.Add(1)
	t.started.Add(1)
	return true
}

// Done ends one unit of work started with Start.
func (t *OperationTracker) Done() {
	t.active.Add(-1)
	t.running.Done()
}

// Launch runs fn on a tracked goroutine. When ctx is done or the tracker
// is closed it returns the reason and fn never runs.
func (t *OperationTracker) Launch(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.Start() {
		return ErrTrackerClosed
	}
	go func() {
		defer t.Done()
		fn()
	}()
	return nil
}

// Wait blocks until no work is running, or returns ErrWaitTimeout after
// timeout.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	idle := make(chan struct{})
	go func() {
		t.running.Wait()
		close(idle)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ErrWaitTimeout
	}
}

// Close stops accepting work. It does not wait; use Wait.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// ActiveCount returns the number of workers currently running.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}

// TotalStarted returns how many workers were ever accepted.
func (t *OperationTracker) TotalStarted() int64 {
	return t.started.Load()
}
