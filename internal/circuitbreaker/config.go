package circuitbreaker

import "time"

// Config configures a circuit breaker.
type Config struct {
	// WindowSize is the number of most recent call outcomes considered when
	// evaluating thresholds.
	WindowSize int

	// MinimumCalls is the number of recorded calls required before
	// thresholds are evaluated. Below this the circuit stays closed.
	MinimumCalls int

	// FailureRateThreshold opens the circuit when the fraction of failures
	// in the window reaches it.
	FailureRateThreshold float64

	// SlowCallRateThreshold opens the circuit when the fraction of slow
	// calls in the window reaches it.
	SlowCallRateThreshold float64

	// SlowCallDuration is the elapsed time above which a successful call
	// counts as slow.
	SlowCallDuration time.Duration

	// OpenTimeout is how long the circuit stays open before moving to
	// half-open.
	OpenTimeout time.Duration

	// HalfOpenMaxCalls is the number of trial calls permitted in half-open
	// state. All of them must succeed to close the circuit.
	HalfOpenMaxCalls int

	// IsFailure classifies an error as a failure for breaker accounting.
	// When nil, any non-nil error is a failure. Callers use this to let
	// deliberate remote rejections pass without tripping the circuit.
	IsFailure func(error) bool

	// OnStateChange is called after every state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a breaker configuration with conventional defaults.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:            10,
		MinimumCalls:          5,
		FailureRateThreshold:  0.5,
		SlowCallRateThreshold: 0.8,
		SlowCallDuration:      3 * time.Second,
		OpenTimeout:           10 * time.Second,
		HalfOpenMaxCalls:      3,
	}
}

// Normalize fills in defaults for unset or invalid fields.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = d.MinimumCalls
	}
	if c.MinimumCalls > c.WindowSize {
		c.MinimumCalls = c.WindowSize
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 1 {
		c.SlowCallRateThreshold = d.SlowCallRateThreshold
	}
	if c.SlowCallDuration <= 0 {
		c.SlowCallDuration = d.SlowCallDuration
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
}
