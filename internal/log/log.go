// Package log provides the logging infrastructure for croupier.
//
// It exposes a thin factory over log/slog so every component receives its
// logger via dependency injection instead of reaching for a global:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	store := store.New(querier, pool, cfg.HistoryLimit, logger.With("component", "store"))
//
// In tests, use NewNop to silence output or NewWithWriter to capture it.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. Components accept log.Logger as a
// dependency and add context via With().
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format).
	JSON bool

	// AddSource adds source file information to log entries.
	AddSource bool
}

// New creates a new logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a new logger that writes to the specified writer.
// Useful for tests or custom output destinations.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output. Test use only; production
// code should always see its logs.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
