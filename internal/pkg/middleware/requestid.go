package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// RequestIDHeader is the header echoing the correlation ID back to clients.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a correlation ID to every request. An inbound
// X-Request-ID is honored so callers can propagate their own IDs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, id)
		w.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the correlation ID stored in ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return id
	}
	return ""
}
