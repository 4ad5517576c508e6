package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldProductID is the standardized structured logging key for product identifiers.
	FieldProductID = "product_id"
	// FieldDeliveryID is the standardized structured logging key for delivery record identifiers.
	FieldDeliveryID = "delivery_id"
	// FieldLinkID is the standardized structured logging key for affiliate link identifiers.
	FieldLinkID = "link_id"
	// FieldPlatform is the standardized structured logging key for distribution platforms.
	FieldPlatform = "platform"
	// FieldTickID is the standardized structured logging key for scheduler tick identifiers.
	FieldTickID = "tick_id"
	// FieldRequestID is the standardized structured logging key for HTTP request identifiers.
	FieldRequestID = "request_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	tickIDKey    contextKey = "tick_id"
	requestIDKey contextKey = "request_id"
)

// WithTickID tags ctx with the identifier of the scheduler tick in progress.
func WithTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tickIDKey, id)
}

// WithRequestID tags ctx with the identifier of the HTTP request being served.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(tickIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldTickID, id))
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRequestID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
