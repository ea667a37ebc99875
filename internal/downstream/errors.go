package downstream

import (
	"errors"
	"fmt"

	"github.com/edgefront/bffgw/internal/circuitbreaker"
)

// TransportError indicates the downstream could not produce a usable
// response: connection failure, timeout, or a 5xx status. Transport errors
// are transient and count against the circuit breaker.
type TransportError struct {
	Service string
	Status  int
	Err     error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("downstream %s: status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("downstream %s: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteRejection indicates the downstream answered deliberately with a
// client error status. Rejections are not retried, do not trip the circuit
// breaker, and carry the remote status and body for pass-through.
type RemoteRejection struct {
	Service string
	Status  int
	Body    []byte
}

// Error implements error.
func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("downstream %s rejected request: status %d", e.Service, e.Status)
}

// IsTransient reports whether the error is worth retrying. Only transport
// errors qualify; rejections and open circuits will not improve on a
// second attempt.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRemoteRejection reports whether the error is a deliberate downstream
// rejection, extracting it when so.
func IsRemoteRejection(err error) (*RemoteRejection, bool) {
	var rr *RemoteRejection
	if errors.As(err, &rr) {
		return rr, true
	}
	return nil, false
}

// IsCircuitOpen reports whether the error is a circuit breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen)
}

// breakerFailure classifies errors for circuit breaker accounting. Only
// transport errors count as failures.
func breakerFailure(err error) bool {
	return IsTransient(err)
}
