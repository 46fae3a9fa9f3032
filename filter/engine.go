package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"edgedetect/logging"
	"edgedetect/raster"
)

// ErrEmptyImage is returned by Apply for a nil or zero-sized source.
var ErrEmptyImage = errors.New("filter: source image is empty")

// ErrWorkerSpawn matches every *SpawnError via errors.Is.
var ErrWorkerSpawn = errors.New("filter: unable to start band worker")

// SpawnError reports a band whose worker could not be started. The rows of
// that band are left zero in the result.
type SpawnError struct {
	Index int
	Band  Band
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("filter: unable to start worker %d for %s: %v", e.Index, e.Band, e.Err)
}

// Unwrap returns the launcher's error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrWorkerSpawn) true for any SpawnError.
func (e *SpawnError) Is(target error) bool {
	return target == ErrWorkerSpawn
}

// Result is the output of one filter pass.
type Result struct {
	// Image has the source's dimensions and is fully written once Apply
	// returns. Rows of failed bands are zero.
	Image *raster.Buffer

	// Elapsed is the wall-clock duration of the pass, from before the
	// result allocation until after the last worker joined.
	Elapsed time.Duration

	// Bands is the partition used for this pass, including empty bands.
	Bands []Band

	// SpawnErrors lists the bands that never ran.
	SpawnErrors []*SpawnError
}

// Degraded reports whether any band failed to start.
func (r *Result) Degraded() bool {
	return len(r.SpawnErrors) > 0
}

// Err combines all spawn errors, or returns nil for a complete result.
func (r *Result) Err() error {
	if len(r.SpawnErrors) == 0 {
		return nil
	}
	errs := make([]error, len(r.SpawnErrors))
	for i, se := range r.SpawnErrors {
		errs[i] = se
	}
	return multierr.Combine(errs...)
}

// Engine applies the Laplacian kernel with a fixed number of band workers.
// An Engine is safe for concurrent use; each Apply call owns its own
// result buffer and bands.
type Engine struct {
	threads  int
	launcher Launcher
	now      func() time.Time
	logger   *logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLauncher sets how band workers are started. Default: GoLauncher.
func WithLauncher(l Launcher) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.launcher = l
		}
	}
}

// WithClock replaces time.Now for elapsed-time measurement.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for launch failures.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine that splits every image into threads bands.
func NewEngine(threads int, opts ...EngineOption) (*Engine, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreadCount, threads)
	}
	e := &Engine{
		threads:  threads,
		launcher: GoLauncher{},
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Threads returns the configured number of bands per image.
func (e *Engine) Threads() int {
	return e.threads
}

// Apply filters src and returns a newly allocated result. src is only read.
//
// Apply blocks until every launched worker has finished. Bands whose worker
// could not be launched are reported in Result.SpawnErrors rather than as
// an error; callers decide whether a degraded image is acceptable.
func (e *Engine) Apply(ctx context.Context, src *raster.Buffer) (*Result, error) {
	if src == nil || src.Len() == 0 {
		return nil, ErrEmptyImage
	}

	start := e.now()

	dst, err := raster.New(src.Width(), src.Height())
	if err != nil {
		return nil, err
	}
	bands, err := Partition(src.Height(), e.threads)
	if err != nil {
		return nil, err
	}

	var (
		wg     sync.WaitGroup
		failed []*SpawnError
	)
	for i, band := range bands {
		if band.Empty() {
			continue
		}
		band := band
		wg.Add(1)
		err := e.launcher.Launch(ctx, func() {
			defer wg.Done()
			convolveBand(src, dst, band)
		})
		if err != nil {
			wg.Done()
			failed = append(failed, &SpawnError{Index: i, Band: band, Err: err})
			e.logger.Warn("Unable to start band worker",
				zap.Int("band", i),
				zap.Int("start_row", band.Start),
				zap.Int("rows", band.Rows),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	elapsed := e.now().Sub(start)
	e.logger.Debug("Filter pass complete",
		zap.Int("width", src.Width()),
		zap.Int("height", src.Height()),
		zap.Int("bands", len(bands)),
		zap.Int("failed_bands", len(failed)),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		Image:       dst,
		Elapsed:     elapsed,
		Bands:       bands,
		SpawnErrors: failed,
	}, nil
}
