package filter

import (
	"errors"
	"fmt"
)

// Partitioning errors.
var (
	ErrInvalidThreadCount = errors.New("filter: thread count must be at least 1")
	ErrInvalidHeight      = errors.New("filter: height must not be negative")
)

// Band is a contiguous range of rows assigned to one worker.
type Band struct {
	Start int
	Rows  int
}

// End returns the first row after the band.
func (b Band) End() int {
	return b.Start + b.Rows
}

// Empty reports whether the band has no rows.
func (b Band) Empty() bool {
	return b.Rows == 0
}

func (b Band) String() string {
	return fmt.Sprintf("rows [%d,%d)", b.Start, b.End())
}

// Partition splits height rows into threads bands. Every band but the last
// gets height/threads rows; the last band absorbs the remainder. When
// threads exceeds height the leading bands are empty.
func Partition(height, threads int) ([]Band, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreadCount, threads)
	}
	if height < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHeight, height)
	}

	base := height / threads
	bands := make([]Band, threads)
	for i := 0; i < threads-1; i++ {
		bands[i] = Band{Start: i * base, Rows: base}
	}
	last := (threads - 1) * base
	bands[threads-1] = Band{Start: last, Rows: height - last}
	return bands, nil
}
