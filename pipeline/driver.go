package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edgedetect/core"
	"edgedetect/logging"
	"edgedetect/metrics"
)

// Report is the result of one Driver.Run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Outcomes are in input order.
	Outcomes []Outcome

	// TotalElapsed is the sum of every filter pass, including passes of
	// images that later failed to encode or were rejected as degraded.
	TotalElapsed time.Duration

	// Interrupted is true when the run context was cancelled.
	Interrupted bool
}

// FormatTotal returns TotalElapsed in seconds with four decimals.
func (r *Report) FormatTotal() string {
	return fmt.Sprintf("%.4f", r.TotalElapsed.Seconds())
}

// Succeeded counts outcomes that produced an artifact.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() {
			n++
		}
	}
	return n
}

// Failed counts outcomes without an artifact.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Err combines the errors of every failed image, or returns nil.
func (r *Report) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Failed() {
			err = multierr.Append(err, o.Err)
		}
	}
	return err
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMaxConcurrentImages bounds how many images are processed at once.
// 0 means one goroutine per input.
func WithMaxConcurrentImages(n int) DriverOption {
	return func(d *Driver) {
		if n >= 0 {
			d.maxConcurrent = n
		}
	}
}

// WithDriverLogger sets the run logger.
func WithDriverLogger(l *logging.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) DriverOption {
	return func(d *Driver) {
		d.runID = id
	}
}

// WithDriverClock replaces time.Now for the report timestamps.
func WithDriverClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// Driver processes a list of inputs concurrently.
type Driver struct {
	processor     *Processor
	maxConcurrent int
	logger        *logging.Logger
	runID         string
	now           func() time.Time
}

// NewDriver returns a Driver that hands each input to p.
func NewDriver(p *Processor, opts ...DriverOption) *Driver {
	d := &Driver{
		processor: p,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes inputs and blocks until every image goroutine has
// finished. It returns core.ErrUsage, without touching the filesystem,
// when inputs is empty. Per-image failures are in the Report, not the
// returned error.
//
// Once ctx is cancelled, images that have not started are reported as
// CANCELLED; images already filtering finish their launched bands.
func (d *Driver) Run(ctx context.Context, inputs []string) (*Report, error) {
	if len(inputs) == 0 {
		return nil, core.ErrUsage
	}

	runID := d.runID
	if runID == "" {
		runID = core.NewRunID()
	}
	log := d.logger.With(zap.String("run_id", runID))

	report := &Report{
		RunID:     runID,
		StartedAt: d.now(),
		Outcomes:  make([]Outcome, len(inputs)),
	}
	log.Info("Starting run",
		zap.Int("images", len(inputs)),
		zap.Int("max_concurrent_images", d.maxConcurrent),
		zap.Int("threads", d.processor.engine.Threads()),
	)

	var elapsed metrics.Accumulator
	var g errgroup.Group
	if d.maxConcurrent > 0 {
		g.SetLimit(d.maxConcurrent)
	}
	for i, input := range inputs {
		job := Job{
			Index:         i + 1,
			Input:         input,
			CorrelationID: core.NewCorrelationID(runID, i+1),
			Elapsed:       &elapsed,
		}
		g.Go(func() error {
			report.Outcomes[job.Index-1] = d.processor.Process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = d.now()
	report.TotalElapsed = elapsed.Total()
	report.Interrupted = ctx.Err() != nil

	log.Info("Run complete",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Duration("filter_time", report.TotalElapsed),
		zap.Bool("interrupted", report.Interrupted),
	)
	return report, nil
}
