package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"edgedetect/core"
	"edgedetect/export"
	"edgedetect/filter"
	"edgedetect/logging"
	"edgedetect/metrics"
	"edgedetect/ppm"
)

// ErrDegraded is the cause of a WORKER_SPAWN failure when degraded output
// is not allowed.
var ErrDegraded = errors.New("pipeline: image has unfilled bands")

// Job is one input image.
type Job struct {
	// Index is the 1-based position on the command line; it names the
	// artifact.
	Index int
	Input string

	// CorrelationID tags every log entry for this image.
	CorrelationID string

	// Elapsed receives the filter duration. May be nil.
	Elapsed *metrics.Accumulator
}

// Outcome is the result of one Job.
type Outcome struct {
	Job    Job
	Status string // metrics.TaskStatus*

	// Artifact is set when Status is success or degraded.
	Artifact export.Artifact

	Width, Height int
	FilterTime    time.Duration
	Duration      time.Duration
	FailedBands   int

	// Err is a *core.UnitError for failed and skipped jobs. Degraded
	// artifacts carry the combined spawn errors here as well.
	Err error
}

// Code returns the error code, or "" for a clean success.
func (o Outcome) Code() string {
	return core.GetErrorCode(o.Err)
}

// Failed reports whether no artifact was written.
func (o Outcome) Failed() bool {
	return o.Status == metrics.TaskStatusError || o.Status == metrics.TaskStatusSkipped
}

// ProcessorConfig holds the collaborators of a Processor.
type ProcessorConfig struct {
	Engine *filter.Engine
	Writer *export.Writer

	// Collector receives one record per Process call. Default: metrics.Nop.
	Collector metrics.Collector
	Logger    *logging.Logger

	// AllowDegraded writes images even when some bands never ran.
	AllowDegraded bool

	// Clock replaces time.Now for Outcome.Duration.
	Clock func() time.Time
}

// Processor decodes, filters and encodes single images.
type Processor struct {
	engine        *filter.Engine
	writer        *export.Writer
	collector     metrics.Collector
	logger        *logging.Logger
	allowDegraded bool
	now           func() time.Time
}

// NewProcessor returns a Processor. Engine and Writer are required.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Engine == nil {
		return nil, errors.New("pipeline: processor requires an engine")
	}
	if cfg.Writer == nil {
		return nil, errors.New("pipeline: processor requires a writer")
	}
	p := &Processor{
		engine:        cfg.Engine,
		writer:        cfg.Writer,
		collector:     cfg.Collector,
		logger:        cfg.Logger,
		allowDegraded: cfg.AllowDegraded,
		now:           cfg.Clock,
	}
	if p.collector == nil {
		p.collector = metrics.Nop{}
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Process runs one job. It never panics on bad input and never returns
// an error; failures are reported in the Outcome.
func (p *Processor) Process(ctx context.Context, job Job) Outcome {
	start := p.now()
	log := p.logger.With(
		zap.Int("index", job.Index),
		zap.String("input", job.Input),
		zap.String("correlation_id", job.CorrelationID),
	)

	out := p.process(ctx, job, log)
	out.Job = job
	out.Duration = p.now().Sub(start)

	p.collector.RecordTask(metrics.TaskRecord{
		ID:          job.CorrelationID,
		Index:       job.Index,
		Input:       job.Input,
		Output:      out.Artifact.Path,
		Status:      out.Status,
		Code:        out.Code(),
		StartTime:   start,
		EndTime:     start.Add(out.Duration),
		Duration:    out.Duration,
		FilterTime:  out.FilterTime,
		Width:       out.Width,
		Height:      out.Height,
		FailedBands: out.FailedBands,
		OutputBytes: out.Artifact.Bytes,
		ErrorMsg:    errString(out.Err),
	})
	return out
}

func (p *Processor) process(ctx context.Context, job Job, log *logging.Logger) Outcome {
	// fail marks out as failed with code. out keeps whatever was learned
	// about the image before the failure.
	fail := func(out Outcome, code string, err error) Outcome {
		out.Status = metrics.TaskStatusError
		if code == core.ErrCodeCancelled {
			out.Status = metrics.TaskStatusSkipped
		}
		out.Err = core.NewUnitError(code, job.Index, job.Input, err)
		log.Error("Image failed", zap.String("code", code), zap.Error(err))
		return out
	}

	var out Outcome
	if err := ctx.Err(); err != nil {
		return fail(out, core.ErrCodeCancelled, err)
	}

	f, err := os.Open(job.Input)
	if err != nil {
		return fail(out, core.ErrCodeFileOpen, err)
	}
	src, err := ppm.Decode(f)
	_ = f.Close()
	if err != nil {
		return fail(out, core.ErrCodeDecode, err)
	}
	out.Width, out.Height = src.Width(), src.Height()
	log.Debug("Decoded image", zap.Int("width", out.Width), zap.Int("height", out.Height))

	// Decode never yields an empty buffer, so Apply failing here means
	// the engine itself is broken.
	res, err := p.engine.Apply(ctx, src)
	src.Release()
	if err != nil {
		return fail(out, core.ErrCodeFilter, err)
	}
	defer res.Image.Release()

	if job.Elapsed != nil {
		job.Elapsed.Add(res.Elapsed)
	}
	out.FilterTime = res.Elapsed
	out.FailedBands = len(res.SpawnErrors)

	status := metrics.TaskStatusSuccess
	var degradedErr error
	if res.Degraded() {
		switch {
		case ctx.Err() != nil:
			return fail(out, core.ErrCodeCancelled, res.Err())
		case !p.allowDegraded:
			return fail(out, core.ErrCodeWorkerSpawn, fmt.Errorf("%w: %v", ErrDegraded, res.Err()))
		}
		status = metrics.TaskStatusDegraded
		degradedErr = core.NewUnitError(core.ErrCodeWorkerSpawn, job.Index, job.Input, res.Err())
		log.Warn("Writing degraded image", zap.Int("failed_bands", out.FailedBands))
	}

	artifact, err := p.writer.Write(job.Index, res.Image)
	if err != nil {
		code := core.ErrCodeEncode
		if errors.Is(err, export.ErrOutputOpen) {
			code = core.ErrCodeFileOpen
		}
		return fail(out, code, err)
	}

	out.Status = status
	out.Artifact = artifact
	out.Err = degradedErr
	log.Info("Image written",
		zap.String("output", artifact.Path),
		zap.String("size", humanize.Bytes(uint64(artifact.Bytes))),
		zap.Duration("filter_time", res.Elapsed),
	)
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
