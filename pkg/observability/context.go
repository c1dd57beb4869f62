package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDCtxKey contextKey = "correlation_id"
	sourceCtxKey        contextKey = "source"
	operationCtxKey     contextKey = "operation"
)

// Standard attribute keys used in logs and metrics.
const (
	CorrelationIDKey = "correlation_id"
	SourceKey        = "source"
	OperationKey     = "operation"
	DurationKey      = "duration_ms"
	ErrorKey         = "error"
	StatusKey        = "status"
)

// WithCorrelationID adds a correlation ID to the context.
// If id is empty, a new UUID is generated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDCtxKey)
}

// WithSource tags the context with the id of the calendar source being read.
func WithSource(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceCtxKey, sourceID)
}

// SourceFromContext extracts the source id from context.
func SourceFromContext(ctx context.Context) string {
	return stringFromContext(ctx, sourceCtxKey)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationCtxKey, operation)
}

// OperationFromContext extracts the operation name from context.
func OperationFromContext(ctx context.Context) string {
	return stringFromContext(ctx, operationCtxKey)
}

// NewCommandContext starts a command: it names the operation and stamps a
// fresh correlation ID unless ctx already carries one.
func NewCommandContext(ctx context.Context, operation string) context.Context {
	if CorrelationIDFromContext(ctx) == "" {
		ctx = WithCorrelationID(ctx, "")
	}
	return WithOperation(ctx, operation)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
