package metrics

import (
	"sync/atomic"
	"time"
)

// Accumulator sums filter durations reported from many goroutines.
// The zero value is ready to use and starts at zero.
type Accumulator struct {
	nanos atomic.Int64
	count atomic.Int64
}

// Add records one filter pass. Negative durations are ignored.
func (a *Accumulator) Add(d time.Duration) {
	if d < 0 {
		return
	}
	a.nanos.Add(int64(d))
	a.count.Add(1)
}

// Total returns the sum of every duration added so far.
func (a *Accumulator) Total() time.Duration {
	return time.Duration(a.nanos.Load())
}

// Count returns how many passes were added.
func (a *Accumulator) Count() int64 {
	return a.count.Load()
}

// Seconds returns Total in seconds.
func (a *Accumulator) Seconds() float64 {
	return a.Total().Seconds()
}
