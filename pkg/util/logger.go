package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Development gets human-readable text
// at debug level; everything else emits JSON for log aggregation. The service
// name distinguishes API and worker output when both ship to the same sink.
func NewLogger(env, service string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}
