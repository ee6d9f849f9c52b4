package vektor

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vektor-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, externalID string, status string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"external_id", externalID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"external_id", externalID,
			"status", status,
		)
	}
}

// LogBatchUpsert logs a batch upsert operation.
func (l *Logger) LogBatchUpsert(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch upsert completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
	} else {
		l.InfoContext(ctx, "batch upsert completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, externalID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"external_id", externalID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"external_id", externalID,
		)
	}
}

// LogCompaction logs a compaction operation.
func (l *Logger) LogCompaction(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "compaction completed")
	}
}
