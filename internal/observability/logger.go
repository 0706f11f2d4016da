package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger logs JSON in production and readable text elsewhere. level
// overrides the environment default (info in production, debug otherwise).
func NewLogger(env, level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env, level)
}

func NewLoggerTo(w io.Writer, env, level string) *slog.Logger {
	prod := env == "prod" || env == "production"
	opts := &slog.HandlerOptions{Level: parseLevel(level, prod)}

	var handler slog.Handler
	if prod {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "loangraph-reconciler")
}

func parseLevel(level string, prod bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if prod {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
