// Package logging provides structured logging types and interfaces
package logging

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
)

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// String returns the upper-case level name, or UNKNOWN.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel reads a level name case-insensitively. "warning" is accepted
// for WARN; anything unrecognized is InfoLevel.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return WarnLevel
	}
	for level, name := range levelNames {
		if name == s {
			return level
		}
	}
	return InfoLevel
}

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Field is one key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the structured logger every package takes.
type Logger interface {
	// Debug logs per-job detail: render timings, snippet failures.
	Debug(msg string, fields ...Field)
	// Info logs service lifecycle events.
	Info(msg string, fields ...Field)
	// Warn logs a recoverable problem such as a rejected request.
	Warn(msg string, fields ...Field)
	// Error logs a failure; err may be nil.
	Error(msg string, err error, fields ...Field)
	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields ...Field) Logger
	// WithContext returns a logger carrying the request, job and unit ids
	// stored in ctx by ContextWith.
	WithContext(ctx context.Context) Logger
}

// LogConfig configures NewZapLogger.
type LogConfig struct {
	Level LogLevel
	// Format is FormatConsole (the default) or FormatJSON.
	Format string
	// Output defaults to stderr. Process units write their reply to
	// stdout, so logs never go there.
	Output io.Writer
	// Name is prepended to every entry, "unit" in process units.
	Name string
}

// contextKey keys the values WithContext lifts into log fields.
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	JobIDKey     contextKey = "job_id"
	UnitIDKey    contextKey = "unit_id"
)

var contextKeys = []contextKey{RequestIDKey, JobIDKey, UnitIDKey}

// ContextWith returns a copy of ctx carrying value under key.
func ContextWith(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// contextFields returns the ids stored in ctx.
func contextFields(ctx context.Context) []Field {
	var fields []Field
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, String(string(key), v))
		}
	}
	return fields
}

type holder struct{ Logger }

var global atomic.Pointer[holder]

// SetGlobalLogger replaces the logger returned by GetGlobalLogger.
func SetGlobalLogger(logger Logger) {
	global.Store(&holder{logger})
}

// GetGlobalLogger returns the global logger, creating a default one on
// first use.
func GetGlobalLogger() Logger {
	if h := global.Load(); h != nil {
		return h.Logger
	}
	global.CompareAndSwap(nil, &holder{NewDefaultLogger()})
	return global.Load().Logger
}

func Info(msg string, fields ...Field) { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error logs through the global logger. err may be nil.
func Error(msg string, err error, fields ...Field) {
	GetGlobalLogger().Error(msg, err, fields...)
}
