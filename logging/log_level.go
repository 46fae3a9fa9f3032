package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// LogLevel is the level type accepted by Options.
type LogLevel = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// ParseLogLevel parses a case-insensitive level name. Empty or unknown
// names return defaultLevel and ok=false.
//
// Valid levels: debug, info, warn, warning, error
func ParseLogLevel(levelStr string, defaultLevel zapcore.Level) (level zapcore.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return defaultLevel, false
	}
}
