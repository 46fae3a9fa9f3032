package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"edgedetect/metrics"
)

// PrintSummary writes one colored line per image followed by a totals
// line and, when images failed, a count per error code taken from stats.
// It is meant for stderr; stdout carries only the timing line.
func PrintSummary(w io.Writer, r *Report, stats metrics.Summary) {
	for _, o := range r.Outcomes {
		printOutcome(w, o)
	}

	fmt.Fprintln(w)
	if r.Failed() == 0 {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(w, "━━━ %d/%d images filtered ", r.Succeeded(), len(r.Outcomes))
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprintf(w, "━━━ %d of %d images failed ", r.Failed(), len(r.Outcomes))
	}
	color.New(color.FgHiBlack).Fprintf(w, "(filter time %v, wall %v)",
		r.TotalElapsed.Round(time.Microsecond), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintln(w, " ━━━")
	if len(stats.ByCode) > 0 {
		codes := make([]string, 0, len(stats.ByCode))
		for code := range stats.ByCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, len(codes))
		for i, code := range codes {
			parts[i] = fmt.Sprintf("%s=%d", code, stats.ByCode[code])
		}
		color.New(color.FgHiBlack).Fprintf(w, "    codes: %s\n", strings.Join(parts, " "))
	}
	if stats.TotalProcessed > 0 && stats.AvgFilterTime > 0 {
		color.New(color.FgHiBlack).Fprintf(w, "    avg filter time %v, %s written\n",
			stats.AvgFilterTime.Round(time.Microsecond), humanize.Bytes(uint64(stats.OutputBytes)))
	}
	if r.Interrupted {
		color.New(color.FgYellow).Fprintln(w, "    interrupted: images not yet started were skipped")
	}
}

func printOutcome(w io.Writer, o Outcome) {
	var icon string
	var clr *color.Color
	switch o.Status {
	case metrics.TaskStatusSuccess:
		icon, clr = "✓", color.New(color.FgGreen)
	case metrics.TaskStatusDegraded:
		icon, clr = "!", color.New(color.FgYellow)
	case metrics.TaskStatusSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "✗", color.New(color.FgRed)
	}

	clr.Fprintf(w, "  %s [%d] %s", icon, o.Job.Index, o.Job.Input)
	if !o.Failed() {
		color.New(color.FgHiBlack).Fprintf(w, " → %s (%dx%d, %s, %.4fs)",
			filepath.Base(o.Artifact.Path), o.Width, o.Height,
			humanize.Bytes(uint64(o.Artifact.Bytes)), o.FilterTime.Seconds())
	}
	fmt.Fprintln(w)

	if o.Err != nil {
		color.New(color.FgRed).Fprintf(w, "    └─ %s\n", o.Err.Error())
	}
}
