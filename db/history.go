package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrClosed is returned by History methods after Close.
var ErrClosed = errors.New("db: history is closed")

// Run is one row of the runs table.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Threads      int
	Images       int
	Succeeded    int
	Failed       int
	TotalElapsed time.Duration
	Interrupted  bool
}

// ImageResult is one row of the image_results table.
type ImageResult struct {
	RunID         string
	Index         int
	CorrelationID string
	Input         string
	Output        string
	Status        string
	Code          string
	Width         int
	Height        int
	FilterTime    time.Duration
	FailedBands   int
	OutputBytes   int64
	ErrorMessage  string
}

// History reads and writes the run history database.
type History struct {
	db   *sql.DB
	path string
}

// Open creates path and its parent directory if needed, migrates the
// schema to SchemaVersion and returns a History on it.
func Open(path string) (*History, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given.
	migrateConn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(migrateConn); err != nil {
		return nil, err
	}

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}
	return &History{db: conn, path: path}, nil
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.path
}

// Close closes the database. It is safe to call more than once.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// RecordRun inserts run and its results in one transaction.
func (h *History) RecordRun(ctx context.Context, run Run, results []ImageResult) error {
	if h.db == nil {
		return ErrClosed
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	for _, res := range results {
		res.RunID = run.ID
		if err := insertImageResult(ctx, tx, res); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run Run) error {
	const query = `
		INSERT INTO runs (
			id, started_at, finished_at, threads, images,
			succeeded, failed, total_elapsed_ns, interrupted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		run.ID,
		unixNano(run.StartedAt),
		unixNano(run.FinishedAt),
		run.Threads,
		run.Images,
		run.Succeeded,
		run.Failed,
		int64(run.TotalElapsed),
		run.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func insertImageResult(ctx context.Context, tx *sql.Tx, res ImageResult) error {
	const query = `
		INSERT INTO image_results (
			run_id, image_index, correlation_id, input, output, status, code,
			width, height, filter_ns, failed_bands, output_bytes, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		res.RunID,
		res.Index,
		res.CorrelationID,
		res.Input,
		res.Output,
		res.Status,
		res.Code,
		res.Width,
		res.Height,
		int64(res.FilterTime),
		res.FailedBands,
		res.OutputBytes,
		res.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %d of run %s: %w", res.Index, res.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if h.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT id, started_at, finished_at, threads, images,
			succeeded, failed, total_elapsed_ns, interrupted
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			elapsed           int64
			interrupted       bool
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Threads, &r.Images,
			&r.Succeeded, &r.Failed, &elapsed, &interrupted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = fromUnixNano(started)
		r.FinishedAt = fromUnixNano(finished)
		r.TotalElapsed = time.Duration(elapsed)
		r.Interrupted = interrupted
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// ImageResults returns the results of runID ordered by image index.
func (h *History) ImageResults(ctx context.Context, runID string) ([]ImageResult, error) {
	if h.db == nil {
		return nil, ErrClosed
	}

	const query = `
		SELECT run_id, image_index, correlation_id, input,
			COALESCE(output, ''), status, COALESCE(code, ''),
			width, height, filter_ns, failed_bands, output_bytes,
			COALESCE(error_message, '')
		FROM image_results
		WHERE run_id = ?
		ORDER BY image_index`

	rows, err := h.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of run %s: %w", runID, err)
	}
	defer rows.Close()

	results := []ImageResult{}
	for rows.Next() {
		var res ImageResult
		var filterNS int64
		if err := rows.Scan(&res.RunID, &res.Index, &res.CorrelationID, &res.Input,
			&res.Output, &res.Status, &res.Code, &res.Width, &res.Height,
			&filterNS, &res.FailedBands, &res.OutputBytes, &res.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.FilterTime = time.Duration(filterNS)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

// Timestamps are stored as Unix nanoseconds; 0 is the zero time.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
