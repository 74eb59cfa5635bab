// Package logger builds the zerolog.Logger used throughout the batch
// engine: a single console-or-JSON sink configured once at startup and
// threaded down via .With().Str(...).Logger() at each layer.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger's output.
type Config struct {
	// Level is a zerolog level name: "debug", "info", "warn", "error".
	Level string
	// Pretty selects a human-readable console writer instead of JSON lines.
	Pretty bool
}

// New builds the root logger. Unknown or empty Level falls back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writer = os.Stderr
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}).
			Level(level).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
