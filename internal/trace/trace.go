// Package trace attaches request and session identifiers to contexts and
// loggers so one voice session's log lines can be correlated end to end.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
)

// HeaderTraceID is the inbound/outbound HTTP header carrying the trace ID.
const HeaderTraceID = "X-Trace-Id"

type ctxKey struct{}

var traceCtxKey = ctxKey{}

// ID identifies one request or voice session.
type ID string

// New generates a fresh trace ID.
func New() ID {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return ID("0000000000000000")
	}
	return ID(hex.EncodeToString(b))
}

// WithID injects a trace ID into the context.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, traceCtxKey, id)
}

// FromContext extracts the trace ID, if any.
func FromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(traceCtxKey).(ID)
	return id, ok
}

// Ensure returns the context's trace ID, minting one if absent.
func Ensure(ctx context.Context) (context.Context, ID) {
	if id, ok := FromContext(ctx); ok {
		return ctx, id
	}
	id := New()
	return WithID(ctx, id), id
}

// Logger returns the default logger annotated with the context's trace ID.
func Logger(ctx context.Context) *slog.Logger {
	if id, ok := FromContext(ctx); ok {
		return slog.Default().With("trace_id", string(id))
	}
	return slog.Default()
}

// Middleware propagates or mints a trace ID for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ID(r.Header.Get(HeaderTraceID))
		if id == "" {
			id = New()
		}
		w.Header().Set(HeaderTraceID, string(id))
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
