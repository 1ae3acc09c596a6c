package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-ID"
	requestIDHeader = "X-Request-ID"
	maxTraceIDLen   = 128
)

// Trace propagates the caller's trace id (X-Trace-ID, then X-Request-ID) or mints one.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = r.Header.Get(requestIDHeader)
		}
		if traceID == "" || len(traceID) > maxTraceIDLen {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
