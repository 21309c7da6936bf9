package logging

import (
	"context"
	"fmt"
	"os"
)

// NewDefaultLogger returns a console logger on stderr at the level named
// by LOG_LEVEL.
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(LogConfig{Level: ParseLevel(os.Getenv("LOG_LEVEL"))})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger replaces the global logger. Output goes to stderr unless
// logFile is set; stdout belongs to the worker reply protocol. Process
// units pass name "unit" so their stderr lines are told apart from the
// server's when both share a terminal.
func InitGlobalLogger(level, format, logFile, name string) error {
	config := LogConfig{Level: ParseLevel(level), Format: format, Name: name}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", logFile, err)
		}
		config.Output = file
	}

	logger, err := NewZapLogger(config)
	if err != nil {
		return err
	}
	SetGlobalLogger(logger)

	logger.Debug("Logger initialized",
		String("level", config.Level.String()),
		String("format", format),
		String("log_file", logFile),
	)
	return nil
}

// MustSync flushes any buffered log entries for zap loggers
// This should be called before application exit
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// Component returns the global logger tagged with a component name.
func Component(name string) Logger {
	return GetGlobalLogger().WithFields(String("component", name))
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)               {}
func (nopLogger) Info(string, ...Field)                {}
func (nopLogger) Warn(string, ...Field)                {}
func (nopLogger) Error(string, error, ...Field)        {}
func (n nopLogger) WithFields(...Field) Logger         { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
