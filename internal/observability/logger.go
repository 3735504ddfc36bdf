// Package observability holds the process logger and correlation-id plumbing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ctxKey string

const ctxKeyCorrelationID ctxKey = "correlation_id"

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Logger returns the process-wide JSON logger.
func Logger() *slog.Logger {
	return logger
}

// SetOutput redirects the process logger, e.g. to stderr for terminal use or
// io.Discard in tests.
func SetOutput(w io.Writer, level slog.Level) {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithCorrelationID stores a correlation id in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationID returns the correlation id stored in ctx, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyCorrelationID).(string)
	return id
}

// LoggerFromContext adds correlation_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	id := CorrelationID(ctx)
	if id == "" {
		return logger
	}
	return logger.With("correlation_id", id)
}
