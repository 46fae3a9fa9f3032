package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"edgedetect/core"
	"edgedetect/export"
	"edgedetect/filter"
	"edgedetect/logging"
	"edgedetect/metrics"
	"edgedetect/ppm"
	"edgedetect/raster"
)

// writeInput writes a w x h P6 file with a gradient into dir.
func writeInput(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img, err := raster.New(w, h)
	if err != nil {
		t.Fatalf("raster.New() error: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetPixel(x, y, raster.Pixel{R: uint8(x * 17), G: uint8(y * 29), B: uint8((x + y) * 7)})
		}
	}
	var buf bytes.Buffer
	if err := ppm.Encode(&buf, img); err != nil {
		t.Fatalf("ppm.Encode() error: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

type fixture struct {
	inDir     string
	outDir    string
	store     *metrics.Store
	processor *Processor
	logs      *observer.ObservedLogs
}

type fixtureOpts struct {
	threads       int
	launcher      filter.Launcher
	outDir        string
	allowDegraded bool
	clock         func() time.Time
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	if o.threads == 0 {
		o.threads = 3
	}
	f := &fixture{inDir: t.TempDir(), outDir: o.outDir, store: metrics.NewStore(0)}
	if f.outDir == "" {
		f.outDir = t.TempDir()
	}

	obsCore, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	logger := logging.New(zap.New(obsCore))

	var engineOpts []filter.EngineOption
	if o.launcher != nil {
		engineOpts = append(engineOpts, filter.WithLauncher(o.launcher))
	}
	if o.clock != nil {
		engineOpts = append(engineOpts, filter.WithClock(o.clock))
	}
	engine, err := filter.NewEngine(o.threads, engineOpts...)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	writer, err := export.NewWriter(export.Namer{Dir: f.outDir, Prefix: "laplacian"})
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}
	f.processor, err = NewProcessor(ProcessorConfig{
		Engine:        engine,
		Writer:        writer,
		Collector:     f.store,
		Logger:        logger,
		AllowDegraded: o.allowDegraded,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error: %v", err)
	}
	return f
}

// failNth returns a launcher that refuses the nth call (1-based) of each
// Apply and runs the rest on goroutines.
func failNth(n int64) filter.Launcher {
	var calls atomic.Int64
	return filter.LauncherFunc(func(ctx context.Context, fn func()) error {
		if calls.Add(1) == n {
			return errors.New("thread limit reached")
		}
		go fn()
		return nil
	})
}

func TestNewProcessor_RequiresCollaborators(t *testing.T) {
	engine, _ := filter.NewEngine(1)
	writer, _ := export.NewWriter(export.Namer{Dir: t.TempDir(), Prefix: "x"})

	if _, err := NewProcessor(ProcessorConfig{Writer: writer}); err == nil {
		t.Error("NewProcessor() without engine should fail")
	}
	if _, err := NewProcessor(ProcessorConfig{Engine: engine}); err == nil {
		t.Error("NewProcessor() without writer should fail")
	}
	if _, err := NewProcessor(ProcessorConfig{Engine: engine, Writer: writer}); err != nil {
		t.Errorf("NewProcessor() error: %v", err)
	}
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	input := writeInput(t, f.inDir, "a.ppm", 8, 5)

	var acc metrics.Accumulator
	out := f.processor.Process(context.Background(), Job{Index: 1, Input: input, CorrelationID: "run-001", Elapsed: &acc})

	if out.Status != metrics.TaskStatusSuccess {
		t.Fatalf("Status = %q, want %q (err %v)", out.Status, metrics.TaskStatusSuccess, out.Err)
	}
	if out.Err != nil || out.Code() != "" {
		t.Errorf("Err = %v, Code = %q, want none", out.Err, out.Code())
	}
	want := filepath.Join(f.outDir, "laplacian1.ppm")
	if out.Artifact.Path != want {
		t.Errorf("Artifact.Path = %q, want %q", out.Artifact.Path, want)
	}
	if out.Width != 8 || out.Height != 5 {
		t.Errorf("dimensions = %dx%d, want 8x5", out.Width, out.Height)
	}
	if acc.Count() != 1 || acc.Total() != out.FilterTime {
		t.Errorf("accumulator = (%d, %v), want (1, %v)", acc.Count(), acc.Total(), out.FilterTime)
	}

	fh, err := os.Open(want)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer fh.Close()
	got, err := ppm.Decode(fh)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if got.Width() != 8 || got.Height() != 5 {
		t.Errorf("artifact dimensions = %dx%d, want 8x5", got.Width(), got.Height())
	}

	tasks := f.store.RecentTasks(0)
	if len(tasks) != 1 || tasks[0].ID != "run-001" || !tasks[0].Succeeded() {
		t.Errorf("recorded tasks = %+v, want one success with ID run-001", tasks)
	}
	if n := f.logs.FilterMessage("Image written").FilterField(zap.String("correlation_id", "run-001")).Len(); n != 1 {
		t.Errorf("'Image written' entries = %d, want 1", n)
	}
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content []byte // nil means the file does not exist
		code    string
		cause   error
	}{
		{name: "missing file", content: nil, code: core.ErrCodeFileOpen, cause: os.ErrNotExist},
		{name: "bad magic", content: []byte("P3\n2 2\n255\n"), code: core.ErrCodeDecode, cause: ppm.ErrBadMagic},
		{name: "bad depth", content: []byte("P6\n2 2\n65535\n"), code: core.ErrCodeDecode, cause: ppm.ErrUnsupportedColorDepth},
		{name: "truncated", content: []byte("P6\n2 2\n255\n\x01\x02"), code: core.ErrCodeDecode, cause: ppm.ErrTruncatedPixels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})
			input := filepath.Join(f.inDir, "in.ppm")
			if tt.content != nil {
				if err := os.WriteFile(input, tt.content, 0o644); err != nil {
					t.Fatal(err)
				}
			}

			out := f.processor.Process(context.Background(), Job{Index: 2, Input: input})
			if out.Status != metrics.TaskStatusError {
				t.Errorf("Status = %q, want %q", out.Status, metrics.TaskStatusError)
			}
			if out.Code() != tt.code {
				t.Errorf("Code() = %q, want %q", out.Code(), tt.code)
			}
			if !errors.Is(out.Err, tt.cause) {
				t.Errorf("Err = %v, want wrapping %v", out.Err, tt.cause)
			}
			var ue *core.UnitError
			if !errors.As(out.Err, &ue) || ue.Index != 2 || ue.Input != input {
				t.Errorf("Err = %#v, want UnitError for image 2", out.Err)
			}
			if _, err := os.Stat(filepath.Join(f.outDir, "laplacian2.ppm")); !os.IsNotExist(err) {
				t.Errorf("artifact exists after failure (stat err %v)", err)
			}
		})
	}
}

func TestProcess_UnwritableOutput(t *testing.T) {
	f := newFixture(t, fixtureOpts{outDir: filepath.Join(t.TempDir(), "missing")})
	input := writeInput(t, f.inDir, "a.ppm", 4, 4)

	var acc metrics.Accumulator
	out := f.processor.Process(context.Background(), Job{Index: 1, Input: input, Elapsed: &acc})
	if out.Code() != core.ErrCodeFileOpen {
		t.Errorf("Code() = %q, want %q", out.Code(), core.ErrCodeFileOpen)
	}
	if !errors.Is(out.Err, export.ErrOutputOpen) {
		t.Errorf("Err = %v, want wrapping %v", out.Err, export.ErrOutputOpen)
	}
	// The filter ran, so its time still counts.
	if acc.Count() != 1 {
		t.Errorf("accumulator count = %d, want 1", acc.Count())
	}
}

func TestProcess_DegradedRejected(t *testing.T) {
	f := newFixture(t, fixtureOpts{threads: 3, launcher: failNth(2)})
	input := writeInput(t, f.inDir, "a.ppm", 4, 6)

	out := f.processor.Process(context.Background(), Job{Index: 1, Input: input})
	if out.Code() != core.ErrCodeWorkerSpawn {
		t.Errorf("Code() = %q, want %q", out.Code(), core.ErrCodeWorkerSpawn)
	}
	if !errors.Is(out.Err, ErrDegraded) {
		t.Errorf("Err = %v, want wrapping %v", out.Err, ErrDegraded)
	}
	if out.FailedBands != 1 {
		t.Errorf("FailedBands = %d, want 1", out.FailedBands)
	}
	if !out.Failed() {
		t.Error("Failed() = false, want true")
	}
	if _, err := os.Stat(filepath.Join(f.outDir, "laplacian1.ppm")); !os.IsNotExist(err) {
		t.Errorf("artifact exists for rejected image (stat err %v)", err)
	}
}

func TestProcess_DegradedAllowed(t *testing.T) {
	f := newFixture(t, fixtureOpts{threads: 3, launcher: failNth(2), allowDegraded: true})
	input := writeInput(t, f.inDir, "a.ppm", 4, 6)

	out := f.processor.Process(context.Background(), Job{Index: 1, Input: input})
	if out.Status != metrics.TaskStatusDegraded {
		t.Fatalf("Status = %q, want %q (err %v)", out.Status, metrics.TaskStatusDegraded, out.Err)
	}
	if out.Failed() {
		t.Error("Failed() = true, want false")
	}
	if !errors.Is(out.Err, filter.ErrWorkerSpawn) {
		t.Errorf("Err = %v, want wrapping %v", out.Err, filter.ErrWorkerSpawn)
	}

	fh, err := os.Open(out.Artifact.Path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer fh.Close()
	got, err := ppm.Decode(fh)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	// Band 2 of 3 covers rows 2-3 and never ran.
	for y := 2; y < 4; y++ {
		for x, p := range got.Row(y) {
			if p != (raster.Pixel{}) {
				t.Fatalf("pixel (%d,%d) = %v, want zero", x, y, p)
			}
		}
	}
	if f.logs.FilterMessage("Writing degraded image").Len() != 1 {
		t.Error("expected a 'Writing degraded image' warning")
	}
}

func TestProcess_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	input := writeInput(t, f.inDir, "a.ppm", 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.processor.Process(ctx, Job{Index: 1, Input: input})
	if out.Status != metrics.TaskStatusSkipped {
		t.Errorf("Status = %q, want %q", out.Status, metrics.TaskStatusSkipped)
	}
	if out.Code() != core.ErrCodeCancelled {
		t.Errorf("Code() = %q, want %q", out.Code(), core.ErrCodeCancelled)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Err = %v, want wrapping %v", out.Err, context.Canceled)
	}
}

func TestDriver_EmptyInputs(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	report, err := NewDriver(f.processor).Run(context.Background(), nil)
	if !errors.Is(err, core.ErrUsage) {
		t.Errorf("Run() error = %v, want %v", err, core.ErrUsage)
	}
	if report != nil {
		t.Errorf("Run() report = %+v, want nil", report)
	}
	entries, _ := os.ReadDir(f.outDir)
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries, want 0", len(entries))
	}
}

func TestDriver_RunMixedInputs(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	inputs := []string{
		writeInput(t, f.inDir, "a.ppm", 6, 4),
		filepath.Join(f.inDir, "missing.ppm"),
		writeInput(t, f.inDir, "c.ppm", 3, 9),
	}

	report, err := NewDriver(f.processor, WithRunID("run-fixed")).Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.RunID != "run-fixed" {
		t.Errorf("RunID = %q, want run-fixed", report.RunID)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("len(Outcomes) = %d, want 3", len(report.Outcomes))
	}
	for i, o := range report.Outcomes {
		if o.Job.Index != i+1 || o.Job.Input != inputs[i] {
			t.Errorf("Outcomes[%d].Job = %+v, want index %d input %q", i, o.Job, i+1, inputs[i])
		}
	}
	if report.Succeeded() != 2 || report.Failed() != 1 {
		t.Errorf("Succeeded/Failed = %d/%d, want 2/1", report.Succeeded(), report.Failed())
	}
	if got := report.Outcomes[1].Code(); got != core.ErrCodeFileOpen {
		t.Errorf("Outcomes[1].Code() = %q, want %q", got, core.ErrCodeFileOpen)
	}
	if err := report.Err(); err == nil || !strings.Contains(err.Error(), "missing.ppm") {
		t.Errorf("Err() = %v, want error naming missing.ppm", err)
	}
	for _, name := range []string{"laplacian1.ppm", "laplacian3.ppm"} {
		if _, err := os.Stat(filepath.Join(f.outDir, name)); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(f.outDir, "laplacian2.ppm")); !os.IsNotExist(err) {
		t.Errorf("laplacian2.ppm should not exist (stat err %v)", err)
	}
}

func TestDriver_TotalIsSumOfFilterTimes(t *testing.T) {
	// Every clock read advances 1ms, so each pass reports a deterministic
	// non-zero duration.
	var ticks atomic.Int64
	base := time.Unix(0, 0)
	clock := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}

	f := newFixture(t, fixtureOpts{clock: clock})
	var inputs []string
	for i := 0; i < 12; i++ {
		inputs = append(inputs, writeInput(t, f.inDir, fmt.Sprintf("in%d.ppm", i), 5, 7))
	}

	report, err := NewDriver(f.processor, WithMaxConcurrentImages(4)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var sum time.Duration
	for _, o := range report.Outcomes {
		if o.FilterTime <= 0 {
			t.Errorf("image %d FilterTime = %v, want > 0", o.Job.Index, o.FilterTime)
		}
		sum += o.FilterTime
	}
	if report.TotalElapsed != sum {
		t.Errorf("TotalElapsed = %v, want %v", report.TotalElapsed, sum)
	}
	if got, want := report.FormatTotal(), fmt.Sprintf("%.4f", sum.Seconds()); got != want {
		t.Errorf("FormatTotal() = %q, want %q", got, want)
	}
	if s := f.store.Summary(); s.TotalSuccess != 12 || s.FilterTime != sum {
		t.Errorf("store summary = %+v, want 12 successes totalling %v", s, sum)
	}
}

func TestDriver_ConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	var active, peak int

	// The launcher sees every band of every image; bands of one image
	// run inline so active counts images.
	launcher := filter.LauncherFunc(func(ctx context.Context, fn func()) error {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		fn()
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	f := newFixture(t, fixtureOpts{threads: 1, launcher: launcher})
	var inputs []string
	for i := 0; i < 8; i++ {
		inputs = append(inputs, writeInput(t, f.inDir, fmt.Sprintf("in%d.ppm", i), 3, 3))
	}

	report, err := NewDriver(f.processor, WithMaxConcurrentImages(2)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Failed() != 0 {
		t.Fatalf("Failed() = %d, want 0: %v", report.Failed(), report.Err())
	}
	if peak > 2 {
		t.Errorf("peak concurrent images = %d, want <= 2", peak)
	}
}

func TestDriver_CancelledRun(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	inputs := []string{
		writeInput(t, f.inDir, "a.ppm", 4, 4),
		writeInput(t, f.inDir, "b.ppm", 4, 4),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewDriver(f.processor).Run(ctx, inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !report.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	for _, o := range report.Outcomes {
		if o.Status != metrics.TaskStatusSkipped {
			t.Errorf("image %d Status = %q, want %q", o.Job.Index, o.Status, metrics.TaskStatusSkipped)
		}
	}
	if report.TotalElapsed != 0 {
		t.Errorf("TotalElapsed = %v, want 0", report.TotalElapsed)
	}
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	f := newFixture(t, fixtureOpts{})
	inputs := []string{
		writeInput(t, f.inDir, "a.ppm", 4, 4),
		filepath.Join(f.inDir, "nope.ppm"),
	}
	report, err := NewDriver(f.processor).Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var buf bytes.Buffer
	PrintSummary(&buf, report, f.store.Summary())
	out := buf.String()

	for _, want := range []string{
		"✓ [1] " + inputs[0],
		"laplacian1.ppm (4x4, ",
		"✗ [2] " + inputs[1],
		"FILE_OPEN: image 2",
		"1 of 2 images failed",
		"codes: FILE_OPEN=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("summary contains escape codes with NoColor set:\n%s", out)
	}
}
