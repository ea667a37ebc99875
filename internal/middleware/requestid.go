package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/edgefront/bffgw/internal/observability"
)

// RequestID returns a middleware that ensures every request carries a
// request id. An inbound X-Request-ID is kept; otherwise a new UUID is
// generated. The id is echoed on the response and stored in the request
// context for log correlation.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := observability.ContextWithRequestID(r.Context(), requestID)
			w.Header().Set(HeaderXRequestID, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
