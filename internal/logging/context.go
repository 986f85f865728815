package logging

import (
	"context"
	"log/slog"

	"simforge/internal/services"
)

// WithContext derives a logger annotated with any job, stage, or request
// identifiers carried by the context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	attrs := make([]Attr, 0, 3)
	if id, ok := services.JobIDFromContext(ctx); ok {
		attrs = append(attrs, Int64(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, requestID))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}
