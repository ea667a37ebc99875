package circuitbreaker

import (
	"sync"

	"github.com/edgefront/bffgw/internal/observability"
)

// Registry manages one circuit breaker per downstream service.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   observability.Logger
}

// NewRegistry creates a registry. The config is the default for breakers
// created without an explicit one.
func NewRegistry(config *Config, logger observability.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Registry{
		config: config,
		logger: logger,
	}
}

// Get returns the breaker for name, or nil if none exists.
func (r *Registry) Get(name string) *CircuitBreaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*CircuitBreaker)
}

// GetOrCreate returns the breaker for name, creating it with the registry
// default configuration when absent.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	return r.GetOrCreateWithConfig(name, r.config)
}

// GetOrCreateWithConfig returns the breaker for name, creating it with the
// given configuration when absent. Concurrent creators converge on one
// instance.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config) *CircuitBreaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*CircuitBreaker)
	}

	cb := New(name, config, r.logger)

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("name", name),
	)

	return cb
}

// Remove removes the breaker for name.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// ResetAll forces every breaker back to closed.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_, value interface{}) bool {
		value.(*CircuitBreaker).Reset()
		return true
	})
}

// Stats returns a snapshot per breaker keyed by name.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value interface{}) bool {
		stats[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return stats
}

// Count returns the number of registered breakers.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
