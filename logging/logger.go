package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the output layout used by the edgedetect
// tools: human-readable console output on stderr and, optionally, a
// rotated JSON log file.
//
// Logs never go to stdout. The CLI reserves stdout for the timing line.
//
// Example:
//
//	logger, err := NewLogger(Options{Level: InfoLevel, FilePath: "edgedetect.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info("image written", zap.String("path", "laplacian1.ppm"))
type Logger struct {
	zap *zap.Logger

	isDevelopment bool
	logFilePath   string
}

// Options controls how NewLogger builds its cores.
type Options struct {
	// Level is the minimum level for every output.
	Level LogLevel

	// Development switches the console to the colored encoder and adds
	// stack traces on warnings.
	Development bool

	// FilePath enables a second JSON core writing to a rotated file.
	// Empty means console only.
	FilePath string

	// FileConfig overrides the rotation settings for FilePath.
	FileConfig *FileWriterConfig

	// Console replaces os.Stderr as the console destination.
	Console io.Writer
}

// NewLogger creates a Logger from opts.
func NewLogger(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleWriter := zapcore.AddSync(console)

	var core zapcore.Core
	if opts.FilePath == "" {
		core = NewConsoleCore(opts.Level, consoleWriter, opts.Development)
	} else {
		cfg := DefaultFileWriterConfig()
		if opts.FileConfig != nil {
			cfg = *opts.FileConfig
		}
		fileWriter, err := OpenFileWriter(opts.FilePath, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create log core: %w", err)
		}
		core = NewMultiCoreWithWriters(opts.Level, consoleWriter, fileWriter, opts.Development)
	}

	zopts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if opts.Development {
		zopts = append(zopts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	zapLogger := zap.New(core, zopts...)

	return &Logger{
		zap:           zapLogger,
		isDevelopment: opts.Development,
		logFilePath:   opts.FilePath,
	}, nil
}

// New wraps an existing zap.Logger, typically one built by zaptest.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return New(zap.NewNop())
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// With creates a child logger that adds fields to every entry.
//
// Example:
//
//	imgLogger := logger.With(zap.String("input", path), zap.Int("index", 3))
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.zap.With(fields...)
	return &Logger{
		zap:           child,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name such as "filter" or "pipeline".
func (l *Logger) Named(name string) *Logger {
	child := l.zap.Named(name)
	return &Logger{
		zap:           child,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// IsDevelopment reports whether the logger was built in development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the rotated log file path, or "" for console only.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}
