package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNewSQLiteConnection_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteConnection(ConnectionConfig{}); err == nil {
		t.Error("NewSQLiteConnection() with empty path should fail")
	}
}

func TestConnectionConfig_DSN(t *testing.T) {
	dsn := DefaultConnectionConfig("/tmp/h.db").DSN()
	for _, want := range []string{"/tmp/h.db?", "journal_mode%28WAL%29", "busy_timeout%285000%29", "foreign_keys%281%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN() = %q, missing %q", dsn, want)
		}
	}
}

func TestNewSQLiteConnection_Pragmas(t *testing.T) {
	conn, err := NewSQLiteConnection(DefaultConnectionConfig(filepath.Join(t.TempDir(), "p.db")))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error: %v", err)
	}
	defer conn.Close()

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestMigrations_UpDownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	open := func() ConnectionConfig { return DefaultConnectionConfig(path) }

	conn, _ := NewSQLiteConnection(open())
	if v, dirty, err := MigrationVersion(conn); err != nil || v != 0 || dirty {
		t.Fatalf("MigrationVersion() before up = (%d, %v, %v), want (0, false, nil)", v, dirty, err)
	}

	conn, _ = NewSQLiteConnection(open())
	if err := MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp() error: %v", err)
	}
	conn, _ = NewSQLiteConnection(open())
	if err := MigrateUp(conn); err != nil {
		t.Fatalf("second MigrateUp() error: %v", err)
	}

	conn, _ = NewSQLiteConnection(open())
	if v, dirty, err := MigrationVersion(conn); err != nil || v != SchemaVersion || dirty {
		t.Fatalf("MigrationVersion() = (%d, %v, %v), want (%d, false, nil)", v, dirty, err, SchemaVersion)
	}

	conn, _ = NewSQLiteConnection(open())
	if err := MigrateDown(conn); err != nil {
		t.Fatalf("MigrateDown() error: %v", err)
	}

	conn, _ = NewSQLiteConnection(open())
	defer conn.Close()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('runs', 'image_results')").Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if n != 0 {
		t.Errorf("tables after MigrateDown = %d, want 0", n)
	}
}

func TestMigrateUp_ClosesConnectionOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	// query_only makes creating the migrations table fail.
	conn, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}

	if err := MigrateUp(conn); err == nil {
		t.Fatal("MigrateUp() on a query-only database error = nil")
	}
	if err := conn.Ping(); err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Errorf("Ping() after failed MigrateUp = %v, want database is closed", err)
	}
}

func TestMigrateUp_NilConnection(t *testing.T) {
	if err := MigrateUp(nil); err == nil {
		t.Error("MigrateUp(nil) error = nil")
	}
}

func TestHistory_RecordAndQuery(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := Run{
			ID:           id,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Threads:      23,
			Images:       2,
			Succeeded:    1,
			Failed:       1,
			TotalElapsed: 1500 * time.Microsecond,
			Interrupted:  id == "run-c",
		}
		results := []ImageResult{
			{Index: 2, CorrelationID: id + "-002", Input: "b.ppm", Status: "error", Code: "FILE_OPEN", ErrorMessage: "no such file"},
			{Index: 1, CorrelationID: id + "-001", Input: "a.ppm", Output: "laplacian1.ppm", Status: "success",
				Width: 4, Height: 3, FilterTime: 1500 * time.Microsecond, OutputBytes: 51},
		}
		if err := h.RecordRun(ctx, run, results); err != nil {
			t.Fatalf("RecordRun(%s) error: %v", id, err)
		}
	}

	runs, err := h.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("RecentRuns(2) = %+v, want run-c then run-b", runs)
	}
	if !runs[0].Interrupted || runs[1].Interrupted {
		t.Errorf("Interrupted flags = %v, %v, want true, false", runs[0].Interrupted, runs[1].Interrupted)
	}
	if !runs[0].StartedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("StartedAt = %v, want %v", runs[0].StartedAt, base.Add(2*time.Minute))
	}
	if runs[0].TotalElapsed != 1500*time.Microsecond {
		t.Errorf("TotalElapsed = %v, want 1.5ms", runs[0].TotalElapsed)
	}

	results, err := h.ImageResults(ctx, "run-a")
	if err != nil {
		t.Fatalf("ImageResults() error: %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[1].Index != 2 {
		t.Fatalf("ImageResults() = %+v, want indexes 1, 2", results)
	}
	if results[0].RunID != "run-a" || results[0].OutputBytes != 51 || results[0].FilterTime != 1500*time.Microsecond {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Code != "FILE_OPEN" || results[1].Output != "" {
		t.Errorf("results[1] = %+v, want FILE_OPEN with no output", results[1])
	}
}

func TestHistory_RecordRunRollsBack(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	dup := []ImageResult{
		{Index: 1, CorrelationID: "x-1", Input: "a.ppm", Status: "success"},
		{Index: 1, CorrelationID: "x-1", Input: "a.ppm", Status: "success"},
	}
	if err := h.RecordRun(ctx, Run{ID: "dup", Images: 2}, dup); err == nil {
		t.Fatal("RecordRun() with duplicate index should fail")
	}

	runs, err := h.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("RecentRuns() = %+v, want none after rollback", runs)
	}
}

func TestHistory_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := h.RecordRun(context.Background(), Run{ID: "keep", StartedAt: time.Now()}, nil); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	h.Close()

	h, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer h.Close()
	runs, err := h.RecentRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 || runs[0].ID != "keep" {
		t.Errorf("RecentRuns() after reopen = %+v, %v", runs, err)
	}
}

func TestHistory_Closed(t *testing.T) {
	h := openTestHistory(t)
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := h.RecordRun(context.Background(), Run{ID: "late"}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordRun() after Close error = %v, want %v", err, ErrClosed)
	}
	if _, err := h.RecentRuns(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("RecentRuns() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
