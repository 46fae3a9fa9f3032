package shutdown

import (
	"os"
	"sync"
)

// SignalCounter records received signals and fires onForce when the
// threshold is reached. The Manager uses a threshold of two: the first
// signal cancels the run, the second exits.
type SignalCounter struct {
	mu        sync.Mutex
	received  []os.Signal
	threshold int
	onForce   func(os.Signal)
}

// NewSignalCounter returns a counter that calls onForce (may be nil) for
// every signal from the threshold-th on. A threshold below 1 means 1.
func NewSignalCounter(threshold int, onForce func(os.Signal)) *SignalCounter {
	return &SignalCounter{threshold: max(threshold, 1), onForce: onForce}
}

// Increment records sig and returns how many signals have been seen.
// onForce runs under the counter's lock, so concurrent signals cannot
// force twice in parallel.
func (s *SignalCounter) Increment(sig os.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, sig)
	n := len(s.received)
	if n >= s.threshold && s.onForce != nil {
		s.onForce(sig)
	}
	return n
}

// Count returns the number of signals seen.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Last returns the most recent signal, or nil.
func (s *SignalCounter) Last() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return nil
	}
	return s.received[len(s.received)-1]
}
