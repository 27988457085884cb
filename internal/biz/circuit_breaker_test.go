package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp(ctx context.Context) (interface{}, error) {
	return nil, errBoom
}

func succeedingOp(ctx context.Context) (interface{}, error) {
	return "ok", nil
}

func newTestBreaker(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker(cfg, log.NewStdLogger(os.Stdout), nil)
}

// Test trip: N consecutive failures open the breaker, call N+1 is rejected
// without invoking the operation
func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, model.CircuitClosed, cb.State())
		_, err := cb.Execute(ctx, failingOp)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, model.CircuitOpen, cb.State())

	invoked := false
	_, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, invoked)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "svc", openErr.ServiceName)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

// Test that a success in CLOSED resets the consecutive failure count
func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	_, _ = cb.Execute(ctx, succeedingOp)
	_, _ = cb.Execute(ctx, failingOp)

	// Never two consecutive failures, so still closed.
	assert.Equal(t, model.CircuitClosed, cb.State())
}

// Test recovery: after recoveryTimeout the breaker admits probes and closes
// once all of them succeed
func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	require.Equal(t, model.CircuitOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	// First admitted call flips OPEN -> HALF_OPEN.
	_, err := cb.Execute(ctx, succeedingOp)
	require.NoError(t, err)
	assert.Equal(t, model.CircuitHalfOpen, cb.State())

	// Second consecutive probe success closes the circuit.
	_, err = cb.Execute(ctx, succeedingOp)
	require.NoError(t, err)
	assert.Equal(t, model.CircuitClosed, cb.State())
}

// Test that a failed probe reopens the circuit
func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	require.Equal(t, model.CircuitOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	_, err := cb.Execute(ctx, failingOp)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, model.CircuitOpen, cb.State())
}

// Test the HALF_OPEN probe budget: calls beyond halfOpenMaxCalls are rejected
func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	time.Sleep(20 * time.Millisecond)

	// Hold the single probe slot with an in-flight call; the concurrent
	// second call must be rejected.
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()
	<-started

	_, err := cb.Execute(ctx, succeedingOp)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)

	close(release)
	<-done
}

// Test Reset forces CLOSED and zeroes counters
func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	require.Equal(t, model.CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, model.CircuitClosed, cb.State())

	metrics := cb.Metrics()
	assert.Equal(t, int64(0), metrics.TotalCalls)
	assert.Equal(t, int64(0), metrics.FailedCalls)
	assert.Equal(t, int64(0), metrics.CircuitBreakerTrips)

	_, err := cb.Execute(ctx, succeedingOp)
	assert.NoError(t, err)
}

// Test metrics accounting including the dedicated timeout counter
func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 10,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, succeedingOp)
	_, _ = cb.Execute(ctx, failingOp)
	_, _ = cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, &TimeoutError{ServiceName: "svc", Timeout: time.Second}
	})

	m := cb.Metrics()
	assert.Equal(t, int64(3), m.TotalCalls)
	assert.Equal(t, int64(1), m.SuccessfulCalls)
	assert.Equal(t, int64(2), m.FailedCalls)
	assert.Equal(t, int64(1), m.Timeouts)
}

// Test that rejections while OPEN also count as trips
func TestCircuitBreaker_RejectionCountsAsTrip(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp)
	tripsAfterOpen := cb.Metrics().CircuitBreakerTrips
	require.Equal(t, int64(1), tripsAfterOpen)

	_, _ = cb.Execute(ctx, succeedingOp) // rejected
	assert.Equal(t, int64(2), cb.Metrics().CircuitBreakerTrips)
}

// Test Status derives a coherent health snapshot
func TestCircuitBreaker_Status(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, succeedingOp)
	health := cb.Status()
	assert.Equal(t, "svc", health.Name)
	assert.Equal(t, model.StatusHealthy, health.Status)
	assert.Equal(t, model.CircuitClosed, health.CircuitBreakerState)

	_, _ = cb.Execute(ctx, failingOp)
	health = cb.Status()
	assert.Equal(t, model.StatusUnhealthy, health.Status)
	assert.Equal(t, model.CircuitOpen, health.CircuitBreakerState)
}
