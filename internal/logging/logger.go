// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level       string // debug, info, warn, error; empty means info
	Development bool   // console encoder, stack traces on warn
}

// New returns a JSON production logger, or a console logger in development mode.
func New(opt Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opt.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opt.Level, err)
	}

	cfg := zap.NewProductionConfig()
	if opt.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Named("genieacs-gateway"), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
