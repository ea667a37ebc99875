package middleware

import (
	"math"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
	"github.com/edgefront/bffgw/internal/ratelimit"
	"github.com/edgefront/bffgw/internal/ratelimit/store"
)

// Admission is the rate limiting middleware. Every request costs one token
// from the caller's bucket; the bucket shape comes from the caller's
// identity class, unless an endpoint override matches the request path.
type Admission struct {
	limiter ratelimit.Limiter
	logger  observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	cfg      config.RateLimitConfig
	resolver *IdentityResolver
}

// AdmissionOption is a functional option for configuring admission.
type AdmissionOption func(*Admission)

// WithAdmissionLogger sets the logger.
func WithAdmissionLogger(logger observability.Logger) AdmissionOption {
	return func(a *Admission) {
		a.logger = logger
	}
}

// WithAdmissionMetrics sets the metrics sink.
func WithAdmissionMetrics(m *observability.Metrics) AdmissionOption {
	return func(a *Admission) {
		a.metrics = m
	}
}

// NewAdmission creates the admission middleware.
func NewAdmission(limiter ratelimit.Limiter, cfg config.RateLimitConfig, opts ...AdmissionOption) *Admission {
	a := &Admission{
		limiter:  limiter,
		cfg:      cfg,
		resolver: NewIdentityResolver(cfg.TrustedProxies),
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Update swaps in a new admission configuration, used by config
// hot-reload. In-flight requests keep the configuration they started with.
func (a *Admission) Update(cfg config.RateLimitConfig) {
	resolver := NewIdentityResolver(cfg.TrustedProxies)

	a.mu.Lock()
	a.cfg = cfg
	a.resolver = resolver
	a.mu.Unlock()
}

// Middleware returns the admission handler wrapper.
func (a *Admission) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.mu.RLock()
			cfg := a.cfg
			resolver := a.resolver
			a.mu.RUnlock()

			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			identity := resolver.Resolve(r)
			bucket, key := bucketFor(cfg, identity, r.URL.Path)

			result := a.limiter.Allow(r.Context(), key, bucket, 1)

			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
			w.Header().Set(HeaderRateLimitReset, ceilSeconds(result.ResetAfter))

			class := "anonymous"
			if identity.Authenticated() {
				class = "authenticated"
			}
			if a.metrics != nil {
				a.metrics.RecordAdmission(class, result.Allowed)
			}

			if !result.Allowed {
				a.logger.Warn("request denied by rate limiter",
					observability.String("key", key),
					observability.String("path", r.URL.Path),
					observability.Duration("retryAfter", result.RetryAfter),
				)

				w.Header().Set(HeaderRetryAfter, ceilSeconds(result.RetryAfter))
				WriteError(w, r, http.StatusTooManyRequests, CodeAdmissionDenied,
					"rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bucketFor picks the bucket shape and key for one request. An endpoint
// override gets its own bucket per identity, keyed by the pattern, so
// expensive endpoints are throttled independently of the general budget.
func bucketFor(cfg config.RateLimitConfig, identity CallerIdentity, reqPath string) (store.Bucket, string) {
	for _, o := range cfg.Overrides {
		if matched, err := path.Match(o.Pattern, reqPath); err == nil && matched {
			return store.Bucket{
				Capacity:        o.Bucket.Capacity,
				RefillPerSecond: o.Bucket.RefillPerSecond,
			}, identity.Key() + "|" + o.Pattern
		}
	}

	class := cfg.Anonymous
	if identity.Authenticated() {
		class = cfg.Authenticated
	}

	return store.Bucket{
		Capacity:        class.Capacity,
		RefillPerSecond: class.RefillPerSecond,
	}, identity.Key()
}

// ceilSeconds formats a duration as whole seconds, rounded up, for
// Retry-After style headers. Sub-second waits report one second.
func ceilSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
