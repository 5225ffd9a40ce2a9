// Package logger provides a structured, module-aware logging system built on log/slog.
//
// Components receive a module-scoped Logger and log with typed fields:
//
//	log := logger.Global().Module("audio")
//	log.Info("capture started",
//	    logger.String("device", id),
//	    logger.Int("sample_rate", rate))
//
// Console output is human-readable text; optional file output is JSON with
// size-based rotation. Levels are trace, debug, info, warn and error, and
// can be overridden per module through LoggingConfig.ModuleLevels.
package logger

import (
	"context"
	"time"
	"unique"
)

// Logger is the interface all components log through
type Logger interface {
	// Module returns a child logger whose module name is "<parent>.<name>"
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Log logs at an explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// With returns a logger that adds fields to every record
	With(fields ...Field) Logger

	// WithContext returns a logger that carries the trace id stored in ctx, if any
	WithContext(ctx context.Context) Logger

	Flush() error
}

// LogLevel names a logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a structured key/value pair
type Field struct {
	Key   string
	Value any
}

// internKey deduplicates field keys; the same handful of keys is used on every log call
func internKey(key string) string {
	return unique.Make(key).Value()
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates a uint64 field
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float32 creates a float32 field
func Float32(key string, value float32) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field with the key "error"; a nil error logs as an empty string
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}

// Any creates a field holding an arbitrary value
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
