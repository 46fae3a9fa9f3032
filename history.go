package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"edgedetect/core"
	"edgedetect/db"
	"edgedetect/pipeline"
)

// historyRecords converts a report into database rows.
func historyRecords(r *pipeline.Report, threads int) (db.Run, []db.ImageResult) {
	run := db.Run{
		ID:           r.RunID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Threads:      threads,
		Images:       len(r.Outcomes),
		Succeeded:    r.Succeeded(),
		Failed:       r.Failed(),
		TotalElapsed: r.TotalElapsed,
		Interrupted:  r.Interrupted,
	}

	results := make([]db.ImageResult, len(r.Outcomes))
	for i, o := range r.Outcomes {
		res := db.ImageResult{
			RunID:         r.RunID,
			Index:         o.Job.Index,
			CorrelationID: o.Job.CorrelationID,
			Input:         o.Job.Input,
			Output:        o.Artifact.Path,
			Status:        o.Status,
			Code:          o.Code(),
			Width:         o.Width,
			Height:        o.Height,
			FilterTime:    o.FilterTime,
			FailedBands:   o.FailedBands,
			OutputBytes:   o.Artifact.Bytes,
		}
		if o.Err != nil {
			res.ErrorMessage = o.Err.Error()
		}
		results[i] = res
	}
	return run, results
}

// printHistory writes the last n runs to w.
func printHistory(cfg *core.Config, n int, w, stderr io.Writer) int {
	if !cfg.HistoryEnabled() {
		fmt.Fprintln(stderr, "Run history is disabled; set HISTORY_DB_PATH to enable it")
		return core.ExitCodeError
	}

	history, err := db.Open(cfg.HistoryDBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open run history: %v\n", err)
		return core.ExitCodeError
	}
	defer history.Close()

	runs, err := history.RecentRuns(context.Background(), n)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read run history: %v\n", err)
		return core.ExitCodeError
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return core.ExitCodeSuccess
	}

	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for _, r := range runs {
		status := color.New(color.FgGreen).Sprint("✓")
		switch {
		case r.Interrupted:
			status = color.New(color.FgYellow).Sprint("!")
		case r.Failed > 0:
			status = color.New(color.FgRed).Sprint("✗")
		}
		bold.Fprintf(w, "%s %s", status, r.ID)
		dim.Fprintf(w, "  %s  %d/%d ok  threads=%d  Time: %.4f\n",
			humanize.Time(r.StartedAt), r.Succeeded, r.Images, r.Threads, r.TotalElapsed.Seconds())
	}
	return core.ExitCodeSuccess
}
