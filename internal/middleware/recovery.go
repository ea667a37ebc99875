package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/edgefront/bffgw/internal/observability"
)

// Recovery returns a middleware that recovers from handler panics, logs
// the stack and returns a structured 500.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						observability.Any("panic", rec),
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.String("stack", string(debug.Stack())),
					)

					WriteError(w, r, http.StatusInternalServerError, CodeInternalError,
						"internal error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
