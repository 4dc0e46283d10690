// Package logger bootstraps the process-wide zerolog logger. Long-lived
// components derive child loggers carrying a "component" field
// (Component is the helper for that), so log lines are attributable to
// one part of the pipeline.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output with caller info, for development
}

// New creates the root structured logger. The level applies to this
// logger only — the process-global zerolog level is left untouched so
// tests and embedded uses can run their own.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stderr
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	ctx := zerolog.New(output).Level(level).With().Timestamp()
	// Caller frames are only worth the cost when a human is reading.
	if cfg.Pretty {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Component returns a child logger scoped to one named part of the
// pipeline (store, provider, runner, ...).
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
