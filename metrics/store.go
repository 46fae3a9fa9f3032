package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistoryCapacity is the number of records Store keeps when the
// capacity given to NewStore is not positive.
const DefaultHistoryCapacity = 256

// Store is an in-memory Collector. Aggregates cover every record ever
// added; the record history itself is a ring buffer of fixed capacity.
//
// Usage:
//
//	store := NewStore(0)
//	store.RecordTask(rec)
//	sum := store.Summary()
type Store struct {
	mu sync.RWMutex

	history []TaskRecord
	cap     int
	head    int
	size    int

	totalTasks    int64
	totalSuccess  int64
	totalDegraded int64
	totalErrors   int64
	filtered      int64
	filterTime    time.Duration
	outputBytes   int64
	byCode        map[string]int64
}

// NewStore creates a Store that retains the last capacity records.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		history: make([]TaskRecord, capacity),
		cap:     capacity,
		byCode:  make(map[string]int64),
	}
}

// RecordTask adds one image outcome.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = task
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusDegraded:
		s.totalDegraded++
	case TaskStatusError, TaskStatusSkipped:
		s.totalErrors++
	}
	if task.Code != "" {
		s.byCode[task.Code]++
	}
	if task.FilterTime > 0 {
		s.filtered++
		s.filterTime += task.FilterTime
	}
	s.outputBytes += task.OutputBytes
}

// Summary returns the aggregates over every recorded task.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalDegraded:  s.totalDegraded,
		TotalErrors:    s.totalErrors,
		FilterTime:     s.filterTime,
		OutputBytes:    s.outputBytes,
		ByCode:         make(map[string]int64, len(s.byCode)),
	}
	if s.filtered > 0 {
		sum.AvgFilterTime = s.filterTime / time.Duration(s.filtered)
	}
	for code, n := range s.byCode {
		sum.ByCode[code] = n
	}
	return sum
}

// RecentTasks returns up to limit of the newest records, oldest first.
func (s *Store) RecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []TaskRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - limit + i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// TasksByIndex returns the retained records sorted by input index, which
// is the order the summary prints them in.
func (s *Store) TasksByIndex() []TaskRecord {
	tasks := s.RecentTasks(s.cap)
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Index < tasks[j].Index
	})
	return tasks
}

var _ Collector = (*Store)(nil)
