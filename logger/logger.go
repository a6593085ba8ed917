// Package logger defines the structured logging interface used across the
// engine and a zap-backed implementation for hosts.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Logger defines the logging interface.
// Implementations should be safe for concurrent use.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// Zap adapts a zap.SugaredLogger to Logger.
type Zap struct {
	sugar *zap.SugaredLogger
}

// New builds a zap logger. Mode "prod" or "production" selects JSON output at
// info level; anything else selects the development console encoder at
// debug level.
func New(mode string) (*Zap, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Zap{sugar: l.Sugar()}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *Zap {
	return &Zap{sugar: l.Sugar()}
}

func (z *Zap) Debug(msg string, keysAndValues ...any) { z.sugar.Debugw(msg, keysAndValues...) }
func (z *Zap) Info(msg string, keysAndValues ...any)  { z.sugar.Infow(msg, keysAndValues...) }
func (z *Zap) Warn(msg string, keysAndValues ...any)  { z.sugar.Warnw(msg, keysAndValues...) }
func (z *Zap) Error(msg string, keysAndValues ...any) { z.sugar.Errorw(msg, keysAndValues...) }

// With returns a logger that adds keysAndValues to every entry.
func (z *Zap) With(keysAndValues ...any) *Zap {
	return &Zap{sugar: z.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries.
func (z *Zap) Sync() {
	_ = z.sugar.Sync()
}

// Nop returns a Logger that discards all log messages.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
