package logger

import (
	"context"

	"go.uber.org/zap"

	"flowdesk/pkg/trace"
)

var Log *zap.Logger

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace returns a logger enriched with the trace_id carried by ctx.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
