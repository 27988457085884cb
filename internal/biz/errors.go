package biz

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a breaker rejects a call without invoking
// the underlying operation, either because the circuit is OPEN or because the
// HALF_OPEN probe budget is exhausted.
type CircuitOpenError struct {
	ServiceName string
	State       string
	RetryAfter  time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for service %q (state=%s, retry after %s)",
		e.ServiceName, e.State, e.RetryAfter)
}

// TimeoutError is raised by the timeout wrapper when the caller stops waiting
// for an operation. The underlying operation is not cancelled beyond its
// context; only the wait is abandoned.
type TimeoutError struct {
	ServiceName string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation for service %q timed out after %s", e.ServiceName, e.Timeout)
}

// ServiceDegradedError signals that a service is known-unhealthy and no
// fallback was available to serve the request.
type ServiceDegradedError struct {
	ServiceName string
	Status      string
}

// Error implements the error interface.
func (e *ServiceDegradedError) Error() string {
	return fmt.Sprintf("service %q is degraded (status=%s)", e.ServiceName, e.Status)
}

// ValidationError marks caller input that failed validation. Transports may
// attach it at throw time so the classifier does not have to fall back to
// message heuristics.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}
