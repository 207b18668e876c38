// Package logger provides structured logging carried in a context, with an
// optional OpenTelemetry bridge.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type contextKey string

const loggerKey contextKey = "logger"

// AddToContext adds a logger to the context
func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or returns default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// Config controls the process logger.
type Config struct {
	Level slog.Level
	// Format is "json" or "text".
	Format string
}

// ParseLevel accepts debug, info, warn/warning and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger writing to w. When otelHandler is non-nil, records at
// or above cfg.Level are also sent to it.
func New(w io.Writer, cfg Config, otelHandler slog.Handler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if otelHandler != nil {
		h = slogmulti.Fanout(h, atLevel(cfg.Level, otelHandler))
	}
	return slog.New(h)
}

// atLevel drops records below minLevel before they reach h.
func atLevel(minLevel slog.Leveler, h slog.Handler) slog.Handler {
	return slogmulti.
		Pipe(slogmulti.NewEnabledInlineMiddleware(func(ctx context.Context, level slog.Level, next func(context.Context, slog.Level) bool) bool {
			return level >= minLevel.Level() && next(ctx, level)
		})).
		Handler(h)
}
