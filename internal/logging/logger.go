// Package logging provides the structured logger shared by batchtrack
// components. A Logger is constructed once by the entry point and passed to
// whatever needs it; nothing here inspects the environment.
//
// In development mode every level is written in zap's human-readable console
// format. In production mode only warnings and errors are written, as JSON.
// The DB and User helpers log at debug level and are therefore
// development-only unless the level is overridden.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Development selects the console encoder and debug level.
	Development bool
	// Level overrides the mode's default level when set
	// (debug, info, warn, error).
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

// Logger wraps a zap logger with batchtrack's domain helpers.
// It is safe for concurrent use.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger from opts.
func New(opts Options) (*Logger, error) {
	level := zapcore.WarnLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("logging: parse level %q: %w", s, err)
		}
		level = parsed
	}

	var encoder zapcore.Encoder
	if opts.Development {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))
	zopts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(os.Stderr))}
	if opts.Development {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1), zap.Development())
	}
	return &Logger{z: zap.New(core, zopts...)}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.With(fields...)}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.Named(component)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Zap().Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.Zap().Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.Zap().Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Zap().Error(msg, fields...) }

// DB records a database operation on table.
func (l *Logger) DB(operation, table string, details any) {
	fields := []zap.Field{
		zap.String("kind", "db"),
		zap.String("operation", operation),
		zap.String("table", table),
	}
	if details != nil {
		fields = append(fields, zap.Any("details", details))
	}
	l.Zap().Debug(operation+" on "+table, fields...)
}

// User records a user-initiated action.
func (l *Logger) User(action string, details any) {
	fields := []zap.Field{
		zap.String("kind", "user"),
		zap.String("action", action),
	}
	if details != nil {
		fields = append(fields, zap.Any("details", details))
	}
	l.Zap().Debug(action, fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.z.Sync()
}
