// Package logging builds the zap loggers shared by the webfitts binaries.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Level is a zap level name ("debug", "info", "warn", "error").
	// Empty means info.
	Level string

	// Production selects the JSON encoder. When false the console
	// encoder is used unless APP_ENV=production.
	Production bool

	// RawTerminal terminates lines with "\r\n" so output stays aligned
	// while stdin is in raw mode.
	RawTerminal bool
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	cfg := zap.NewDevelopmentConfig()
	if opts.Production || os.Getenv("APP_ENV") == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if opts.RawTerminal {
		cfg.EncoderConfig.LineEnding = "\r\n"
	}

	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
