package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey struct{}

// GenerateTraceID returns a fresh random trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext extracts the trace_id from ctx, or "" when absent.
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext attaches a trace_id to ctx.
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// HeaderName is the HTTP header the trace ID travels in.
func HeaderName() string {
	return "X-Trace-ID"
}
