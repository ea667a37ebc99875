// Package circuitbreaker implements a per-service circuit breaker with a
// count-based sliding window over recent call outcomes. A call is recorded
// as a success, a failure, or a slow success; the circuit opens when the
// failure rate or the slow call rate over the window crosses its threshold.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edgefront/bffgw/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls pass through.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing the backend with a
	// limited number of trial calls.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit rejects a call without
// invoking the protected function.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// outcome is one recorded call result in the sliding window.
type outcome uint8

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeSlow
)

// CircuitBreaker guards calls to one downstream service.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger

	mu    sync.Mutex
	state State

	// Sliding window of the most recent call outcomes, as a ring buffer.
	window []outcome
	head   int
	count  int

	// Half-open trial tracking.
	halfOpenStarted   int
	halfOpenSuccesses int

	lastStateChange time.Time
}

// New creates a circuit breaker for the named service.
func New(name string, config *Config, logger observability.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Normalize()

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		window:          make([]outcome, config.WindowSize),
		lastStateChange: time.Now(),
	}
}

// Execute runs fn under circuit breaker protection. When the circuit is
// open, fn is not invoked and ErrCircuitOpen is returned immediately. The
// call's elapsed time classifies successful calls as slow.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	cb.record(err, elapsed)

	return err
}

// allow decides whether a call may proceed, transitioning open to half-open
// when the open timeout has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.OpenTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenStarted = 1
			allowed = true
		}

	case StateHalfOpen:
		if cb.halfOpenStarted < cb.config.HalfOpenMaxCalls {
			cb.halfOpenStarted++
			allowed = true
		}
	}

	RecordRequest(cb.name, allowed)

	return allowed
}

// record accounts one completed call and evaluates state transitions.
func (cb *CircuitBreaker) record(err error, elapsed time.Duration) {
	failed := cb.isFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		if failed {
			RecordFailure(cb.name)
			cb.transitionTo(StateOpen)
			return
		}
		RecordSuccess(cb.name)
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.config.HalfOpenMaxCalls {
			cb.transitionTo(StateClosed)
		}

	case StateClosed:
		o := outcomeSuccess
		switch {
		case failed:
			o = outcomeFailure
			RecordFailure(cb.name)
		case elapsed >= cb.config.SlowCallDuration:
			o = outcomeSlow
			RecordSuccess(cb.name)
		default:
			RecordSuccess(cb.name)
		}
		cb.push(o)

		if cb.shouldOpen() {
			cb.transitionTo(StateOpen)
		}

	case StateOpen:
		// A call admitted before the circuit opened finished late. Its
		// outcome no longer matters.
	}
}

// push appends an outcome to the ring buffer, evicting the oldest entry
// once the window is full.
func (cb *CircuitBreaker) push(o outcome) {
	cb.window[cb.head] = o
	cb.head = (cb.head + 1) % len(cb.window)
	if cb.count < len(cb.window) {
		cb.count++
	}
}

// shouldOpen evaluates the window thresholds. Below the minimum call count
// the circuit never opens.
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.count < cb.config.MinimumCalls {
		return false
	}

	failures, slow := 0, 0
	for i := 0; i < cb.count; i++ {
		switch cb.window[i] {
		case outcomeFailure:
			failures++
		case outcomeSlow:
			slow++
		}
	}

	total := float64(cb.count)
	if float64(failures)/total >= cb.config.FailureRateThreshold {
		return true
	}
	if float64(slow)/total >= cb.config.SlowCallRateThreshold {
		return true
	}

	return false
}

// transitionTo moves to a new state and resets accounting. Caller holds the
// lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	for i := range cb.window {
		cb.window[i] = outcomeSuccess
	}
	cb.head = 0
	cb.count = 0
	cb.halfOpenStarted = 0
	cb.halfOpenSuccesses = 0

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		observability.String("name", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// isFailure classifies an error for breaker accounting.
func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.config.IsFailure != nil {
		return cb.config.IsFailure(err)
	}
	return true
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the name of the guarded service.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit back to closed with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
		return
	}
	cb.head = 0
	cb.count = 0
}

// Stats holds a point-in-time snapshot of breaker accounting.
type Stats struct {
	State           State
	WindowCalls     int
	WindowFailures  int
	WindowSlow      int
	LastStateChange time.Time
}

// Stats returns the current snapshot.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Stats{
		State:           cb.state,
		WindowCalls:     cb.count,
		LastStateChange: cb.lastStateChange,
	}
	for i := 0; i < cb.count; i++ {
		switch cb.window[i] {
		case outcomeFailure:
			s.WindowFailures++
		case outcomeSlow:
			s.WindowSlow++
		}
	}
	return s
}
