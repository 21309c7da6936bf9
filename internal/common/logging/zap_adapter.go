package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter is the zap-backed Logger.
type ZapAdapter struct {
	logger *zap.Logger
}

var zapLevels = map[LogLevel]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
}

// NewZapLogger builds a logger from config. Errors carry a stack trace in
// JSON output only; console output stays one line per entry so a process
// unit's stderr tail reads cleanly in the fault it produces.
func NewZapLogger(config LogConfig) (Logger, error) {
	level, ok := zapLevels[config.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		FunctionKey:    zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var (
		encoder zapcore.Encoder
		opts    []zap.Option
	)
	switch config.Format {
	case "", FormatConsole:
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		encCfg.StacktraceKey = "stacktrace"
		encoder = zapcore.NewJSONEncoder(encCfg)
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level), opts...)
	if config.Name != "" {
		logger = logger.Named(config.Name)
	}
	return &ZapAdapter{logger: logger}, nil
}

// Debug logs at debug level. Render and snippet detail goes here, so it is
// off in production.
func (z *ZapAdapter) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, convertFields(fields)...)
}

// Info logs at info level.
func (z *ZapAdapter) Info(msg string, fields ...Field) {
	z.logger.Info(msg, convertFields(fields)...)
}

// Warn logs at warn level.
func (z *ZapAdapter) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, convertFields(fields)...)
}

// Error logs at error level, with err under the "error" key when non-nil.
func (z *ZapAdapter) Error(msg string, err error, fields ...Field) {
	zf := convertFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.logger.Error(msg, zf...)
}

func (z *ZapAdapter) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(convertFields(fields)...)}
}

// WithContext returns z itself when ctx carries no ids.
func (z *ZapAdapter) WithContext(ctx context.Context) Logger {
	return z.WithFields(contextFields(ctx)...)
}

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func convertFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out[i] = zap.String(f.Key, v)
		case int:
			out[i] = zap.Int(f.Key, v)
		case int64:
			out[i] = zap.Int64(f.Key, v)
		case bool:
			out[i] = zap.Bool(f.Key, v)
		case time.Duration:
			out[i] = zap.Duration(f.Key, v)
		case error:
			out[i] = zap.NamedError(f.Key, v)
		case fmt.Stringer:
			out[i] = zap.Stringer(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field, encoded in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field encoded by reflection.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
