package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgefront/bffgw/internal/observability"
)

// GatewayBreaker is a coarse overload guard in front of the whole handler
// chain. It is separate from the per-downstream breakers: those isolate
// one failing backend, this one sheds load when the gateway itself keeps
// producing server errors.
type GatewayBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// GatewayBreakerOption is a functional option for configuring the guard.
type GatewayBreakerOption func(*GatewayBreaker)

// WithGatewayBreakerLogger sets the logger.
func WithGatewayBreakerLogger(logger observability.Logger) GatewayBreakerOption {
	return func(gb *GatewayBreaker) {
		gb.logger = logger
	}
}

// NewGatewayBreaker creates the overload guard. The circuit trips after
// threshold requests in the interval with at least half of them failing.
func NewGatewayBreaker(threshold int, timeout time.Duration, opts ...GatewayBreakerOption) *GatewayBreaker {
	gb := &GatewayBreaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(gb)
	}

	thresholdU32 := safeIntToUint32(threshold)

	gb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gb.logger.Info("gateway breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return gb
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Middleware returns the overload guard handler wrapper. Requests are
// executed through the breaker; 5xx responses count as failures.
func (gb *GatewayBreaker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			_, err := gb.cb.Execute(func() (interface{}, error) {
				next.ServeHTTP(rw, r)

				if rw.status >= 500 {
					return nil, fmt.Errorf("server error: %d", rw.status)
				}
				return nil, nil
			})

			if err == nil {
				return
			}

			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				gb.logger.Warn("gateway breaker rejected request",
					observability.String("path", r.URL.Path),
				)

				if !rw.wroteHeader {
					WriteError(w, r, http.StatusServiceUnavailable, CodeCircuitOpen,
						"gateway overloaded")
				}
			}
		})
	}
}
