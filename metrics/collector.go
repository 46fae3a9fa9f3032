package metrics

// Collector receives per-image records. Implementations must be safe for
// concurrent use, since every image goroutine reports independently.
type Collector interface {
	RecordTask(task TaskRecord)
	Summary() Summary
	RecentTasks(limit int) []TaskRecord
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTask(TaskRecord) {}
func (Nop) Summary() Summary { return Summary{ByCode: map[string]int64{}} }
func (Nop) RecentTasks(int) []TaskRecord { return []TaskRecord{} }

var _ Collector = Nop{}
