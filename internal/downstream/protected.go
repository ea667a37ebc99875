package downstream

import (
	"context"
	"time"

	"github.com/edgefront/bffgw/internal/circuitbreaker"
	"github.com/edgefront/bffgw/internal/observability"
	"github.com/edgefront/bffgw/internal/retry"
)

// Caller executes downstream requests. Both the raw Client and the
// Protected wrapper satisfy it, so call sites do not care which policies
// are in force.
type Caller interface {
	Name() string
	Do(ctx context.Context, req *Request, out any) error
}

// Protected wraps a Client with the service's circuit breaker and retry
// policy. Every attempt passes through breaker admission, so an attempt
// that opens the circuit short-circuits the remaining ones.
type Protected struct {
	client   *Client
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg *retry.Config
	logger   observability.Logger
}

// NewProtected wraps client with breaker protection and the given retry
// policy. A nil retry config uses the defaults.
func NewProtected(client *Client, breaker *circuitbreaker.CircuitBreaker, retryCfg *retry.Config, logger observability.Logger) *Protected {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Protected{
		client:   client,
		breaker:  breaker,
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// Name returns the service name.
func (p *Protected) Name() string {
	return p.client.Name()
}

// Breaker returns the circuit breaker guarding this service.
func (p *Protected) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}

// Do executes the request under retry and circuit breaker protection. Only
// transport errors are retried; rejections and open circuits return
// immediately.
func (p *Protected) Do(ctx context.Context, req *Request, out any) error {
	return retry.Do(ctx, p.retryCfg,
		func(ctx context.Context) error {
			return p.breaker.Execute(ctx, func(ctx context.Context) error {
				return p.client.Do(ctx, req, out)
			})
		},
		&retry.Options{
			ShouldRetry: IsTransient,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				p.logger.Debug("retrying downstream call",
					observability.String("service", p.client.Name()),
					observability.String("path", req.Path),
					observability.Int("attempt", attempt),
					observability.Duration("backoff", backoff),
					observability.Error(err),
				)
			},
		},
	)
}

// NewBreakerConfig builds a breaker configuration that classifies only
// transport errors as failures.
func NewBreakerConfig(base *circuitbreaker.Config) *circuitbreaker.Config {
	cfg := *base
	cfg.IsFailure = breakerFailure
	return &cfg
}
