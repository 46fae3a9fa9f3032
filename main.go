package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"edgedetect/core"
	"edgedetect/db"
	"edgedetect/export"
	"edgedetect/filter"
	"edgedetect/logging"
	"edgedetect/metrics"
	"edgedetect/pipeline"
	"edgedetect/shutdown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Warning: failed to load .env: %v\n", err)
	}

	flags := flag.NewFlagSet("edgedetect", flag.ContinueOnError)
	flags.SetOutput(stderr)
	historyN := flags.Int("history", 0, "print the last `N` recorded runs and exit")
	showVersion := flags.Bool("version", false, "print version information and exit")
	flags.Usage = func() {
		fmt.Fprintln(stderr, core.ErrUsage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return core.ExitCodeSuccess
		}
		return core.ExitCodeError
	}

	if *showVersion {
		fmt.Fprintln(stdout, core.GetVersionInfo())
		return core.ExitCodeSuccess
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Action != "" {
			fmt.Fprintf(stderr, "Configuration error: %v\n  %s\n", cfgErr, cfgErr.Action)
		} else {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		}
		return core.ExitCodeError
	}

	if *historyN > 0 {
		return printHistory(cfg, *historyN, stdout, stderr)
	}

	inputs := flags.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(stderr, core.ErrUsage)
		return core.ExitCodeFor(core.ErrUsage)
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:       cfg.Level(),
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Console:     stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("source", cfg.Source),
		zap.Int("threads", cfg.Threads),
		zap.Int("max_concurrent_images", cfg.MaxConcurrentImages),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("output_format", cfg.OutputFormat),
		zap.String("output_compression", cfg.OutputCompression),
		zap.Bool("allow_degraded", cfg.AllowDegraded),
		zap.Bool("history", cfg.HistoryEnabled()),
		zap.Bool("development", logger.IsDevelopment()),
		zap.String("log_file", logger.LogFilePath()),
	)

	m := shutdown.NewManager(logger.Named("shutdown"))
	m.Start()
	m.Register("logger", 90, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	m.Register("partial-artifacts", 40, shutdown.RemovePartialFiles(logger, cfg.OutputDir, export.PartialPattern))

	code := process(m, cfg, logger, inputs, stdout, stderr)
	logger.Info("Exiting", zap.Int("exit_code", code), zap.String("status", core.ExitCodeName(code)))

	if err := m.Shutdown(); err != nil && code == core.ExitCodeSuccess {
		code = core.ExitCodeError
	}
	return code
}

// process runs the pipeline over inputs and reports the result.
func process(m *shutdown.Manager, cfg *core.Config, logger *logging.Logger, inputs []string, stdout, stderr io.Writer) int {
	engine, err := filter.NewEngine(cfg.Threads,
		filter.WithLauncher(m.Tracker()),
		filter.WithLogger(logger.Named("filter")),
	)
	if err != nil {
		logger.Error("Failed to create filter engine", zap.Error(err))
		return core.ExitCodeError
	}

	writer, err := newWriter(cfg)
	if err != nil {
		logger.Error("Failed to create output writer", zap.Error(err))
		return core.ExitCodeError
	}

	var history *db.History
	if cfg.HistoryEnabled() {
		history, err = db.Open(cfg.HistoryDBPath)
		if err != nil {
			// History is optional; the images still get processed.
			logger.Warn("Run history disabled", zap.String("path", cfg.HistoryDBPath), zap.Error(err))
			history = nil
		} else {
			m.Register("history-db", 10, func(context.Context) error { return history.Close() })
		}
	}

	store := metrics.NewStore(0)
	processor, err := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Engine:        engine,
		Writer:        writer,
		Collector:     store,
		Logger:        logger.Named("pipeline"),
		AllowDegraded: cfg.AllowDegraded,
	})
	if err != nil {
		logger.Error("Failed to create processor", zap.Error(err))
		return core.ExitCodeError
	}
	driver := pipeline.NewDriver(processor,
		pipeline.WithMaxConcurrentImages(cfg.MaxConcurrentImages),
		pipeline.WithDriverLogger(logger.Named("driver")),
	)

	report, err := driver.Run(m.Context(), inputs)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return core.ExitCodeFor(err)
	}
	report.Interrupted = report.Interrupted || m.Interrupted()

	pipeline.PrintSummary(stderr, report, store.Summary())
	fmt.Fprintf(stdout, "Time: %s\n", report.FormatTotal())

	if history != nil {
		run, results := historyRecords(report, cfg.Threads)
		if err := history.RecordRun(context.Background(), run, results); err != nil {
			logger.Warn("Failed to record run history", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	return core.ExitCodeFor(report.Err())
}

func newWriter(cfg *core.Config) (*export.Writer, error) {
	format, err := export.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	compression, err := export.ParseCompression(cfg.OutputCompression)
	if err != nil {
		return nil, err
	}
	return export.NewWriter(export.Namer{
		Dir:         cfg.OutputDir,
		Prefix:      cfg.OutputPrefix,
		Format:      format,
		Compression: compression,
	})
}
