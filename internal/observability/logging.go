// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	TraceID       LogContextKey = "trace_id"
)

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// AuthzLogger provides structured logging for authorization decisions.
type AuthzLogger struct {
	logger *Logger
}

// NewAuthzLogger returns an AuthzLogger on the global logger.
func NewAuthzLogger() *AuthzLogger {
	return &AuthzLogger{logger: GlobalLogger}
}

// LogDecision logs one policy decision.
func (l *AuthzLogger) LogDecision(ctx context.Context, action string, conversationID string, userID uint, allowed bool, reason string) {
	l.logger.InfoContext(ctx, "authorization decision",
		slog.String("action", action),
		slog.String("conversation_id", conversationID),
		slog.Uint64("user_id", uint64(userID)),
		slog.Bool("allowed", allowed),
		slog.String("reason", reason),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogInvariantViolation logs a should-never-happen storage invariant failure
// as a fatal operational alert.
func LogInvariantViolation(ctx context.Context, component string, err error, fields map[string]interface{}) {
	attrs := []any{
		slog.String("component", component),
		slog.String("severity", "fatal"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "storage invariant violation", attrs...)
}
