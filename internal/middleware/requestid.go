// Package middleware provides the HTTP middleware chain for the rowlab
// API server: request correlation, structured request logging, metrics,
// rate limiting, tracing, and idempotent replay of ingest requests.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request's correlation ID on both the
// request and the response.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// RequestID tags every request with a correlation ID and echoes it on
// the response. An inbound X-Request-ID is kept so the ID survives hops
// through a reverse proxy; requests arriving without one get a fresh
// UUID. Downstream handlers and the request logger read the ID from the
// context via GetRequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request's correlation ID, or "" when the
// RequestID middleware did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
