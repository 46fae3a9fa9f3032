// Package metrics collects per-image timing and outcome records for one
// edgedetect run.
package metrics

import "time"

// TaskRecord is the outcome of one input image.
type TaskRecord struct {
	// ID is the per-image correlation ID
	ID string `json:"id"`

	// Index is the 1-based position on the command line
	Index int `json:"index"`

	Input  string `json:"input"`
	Output string `json:"output,omitempty"`

	// Status is one of the TaskStatus* constants
	Status string `json:"status"`

	// Code is the error code for failed images (FILE_OPEN, DECODE, ...)
	Code string `json:"code,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	// Duration covers decode, filter and encode
	Duration time.Duration `json:"duration"`

	// FilterTime is the filter pass alone; zero when the image never
	// reached the filter
	FilterTime time.Duration `json:"filter_time"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// FailedBands counts bands whose worker could not be started
	FailedBands int `json:"failed_bands,omitempty"`

	// OutputBytes is the size of the written artifact
	OutputBytes int64 `json:"output_bytes,omitempty"`

	ErrorMsg string `json:"error_msg,omitempty"`
}

// Succeeded reports whether an artifact was written.
func (r TaskRecord) Succeeded() bool {
	return r.Status == TaskStatusSuccess || r.Status == TaskStatusDegraded
}

// Summary aggregates every TaskRecord of a Store.
type Summary struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalSuccess   int64 `json:"total_success"`
	TotalDegraded  int64 `json:"total_degraded"`
	TotalErrors    int64 `json:"total_errors"`

	// FilterTime is the sum of TaskRecord.FilterTime
	FilterTime time.Duration `json:"filter_time"`

	// AvgFilterTime is FilterTime divided by the images that were filtered
	AvgFilterTime time.Duration `json:"avg_filter_time"`

	// OutputBytes is the total size of every artifact written
	OutputBytes int64 `json:"output_bytes"`

	// ByCode counts failures per error code
	ByCode map[string]int64 `json:"by_code"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess = "success"
	// TaskStatusDegraded: written with zero rows for bands that never ran
	TaskStatusDegraded = "degraded"
	TaskStatusError    = "error"
	TaskStatusSkipped  = "skipped"
)
