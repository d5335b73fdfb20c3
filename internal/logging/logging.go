// Package logging builds the zap loggers used by the CLI and the daemon.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is a zap level name; empty means info.
	Level string
	// Verbose switches to the human readable console encoder.
	Verbose bool
	// Paths receive the log output. Defaults to stderr.
	Paths []string
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		l, err := zapcore.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if len(opts.Paths) > 0 {
		cfg.OutputPaths = opts.Paths
	}
	cfg.DisableStacktrace = !opts.Verbose
	return cfg.Build()
}
