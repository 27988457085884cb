package biz

import (
	"context"
	"sync"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerConfig is the immutable configuration of one breaker. It is
// created once at service registration and never mutated afterwards.
type CircuitBreakerConfig struct {
	// Name uniquely identifies the guarded dependency.
	Name string
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from CLOSED to OPEN. Minimum 1.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays OPEN before admitting
	// HALF_OPEN probe calls.
	RecoveryTimeout time.Duration
	// MonitoringPeriod is informational; the cron health sweep uses it as
	// its snapshot cadence hint.
	MonitoringPeriod time.Duration
	// HalfOpenMaxCalls caps the probe calls admitted while HALF_OPEN.
	// The breaker closes only after this many consecutive successes.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig provides sensible defaults for services
// registered without explicit breaker settings.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		MonitoringPeriod: 30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Operation is an arbitrary asynchronous business call guarded by the
// resilience layer. Its returned error type is the only thing the layer
// inspects.
type Operation func(ctx context.Context) (interface{}, error)

// CircuitBreaker is the per-dependency CLOSED/OPEN/HALF_OPEN state machine.
// All counter mutation is serialized by the instance mutex so concurrent
// requests through the same named service cannot double-trip it.
type CircuitBreaker struct {
	cfg    CircuitBreakerConfig
	logger *log.Helper
	audit  AuditLogger

	mu              sync.Mutex
	state           model.CircuitState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
	openedAt        time.Time
	totalLatencyMs  int64
	timedCalls      int64
	metrics         model.CircuitBreakerMetrics
}

// NewCircuitBreaker creates a breaker in the CLOSED state. The audit logger
// may be nil when no persistent event trail is wanted (tests).
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger log.Logger, audit AuditLogger) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: log.NewHelper(logger),
		audit:  audit,
		state:  model.CircuitClosed,
	}
}

// Execute runs op under the breaker's admission control. Rejected calls fail
// with *CircuitOpenError without invoking op. The operation itself runs
// outside the mutex; only the gating decision and the outcome bookkeeping
// hold it.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	if err := cb.admit(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := op(ctx)
	latency := time.Since(start)

	if err != nil {
		cb.onFailure(err)
		return nil, err
	}
	cb.onSuccess(latency)
	return result, nil
}

// admit decides whether a call may proceed and updates admission counters.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.metrics.TotalCalls++

	switch cb.state {
	case model.CircuitClosed:
		return nil

	case model.CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.cfg.RecoveryTimeout {
			cb.toHalfOpenLocked()
			// Fall through to HALF_OPEN admission for this call.
			return cb.admitHalfOpenLocked()
		}
		cb.metrics.CircuitBreakerTrips++
		return cb.rejectLocked()

	case model.CircuitHalfOpen:
		return cb.admitHalfOpenLocked()
	}
	return nil
}

// admitHalfOpenLocked admits up to HalfOpenMaxCalls probes. Callers must hold
// the mutex.
func (cb *CircuitBreaker) admitHalfOpenLocked() error {
	if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
		cb.metrics.CircuitBreakerTrips++
		return cb.rejectLocked()
	}
	cb.halfOpenCalls++
	return nil
}

// rejectLocked builds the circuit-open rejection carrying the remaining
// cooldown so callers can surface a retry hint.
func (cb *CircuitBreaker) rejectLocked() *CircuitOpenError {
	retryAfter := cb.cfg.RecoveryTimeout - time.Since(cb.lastFailureTime)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &CircuitOpenError{
		ServiceName: cb.cfg.Name,
		State:       string(cb.state),
		RetryAfter:  retryAfter,
	}
}

// onSuccess records a successful call and drives HALF_OPEN → CLOSED recovery.
func (cb *CircuitBreaker) onSuccess(latency time.Duration) {
	cb.mu.Lock()

	cb.metrics.SuccessfulCalls++
	cb.totalLatencyMs += latency.Milliseconds()
	cb.timedCalls++

	var closedEvent *model.CircuitClosedEvent
	switch cb.state {
	case model.CircuitClosed:
		cb.failureCount = 0
	case model.CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.HalfOpenMaxCalls {
			closedEvent = &model.CircuitClosedEvent{
				ServiceName: cb.cfg.Name,
				ProbeCount:  cb.successCount,
				OpenFor:     time.Since(cb.openedAt),
			}
			cb.state = model.CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.halfOpenCalls = 0
		}
	}
	cb.mu.Unlock()

	if closedEvent != nil {
		cb.logger.Infow("msg", "circuit breaker closed after successful probes",
			"service", cb.cfg.Name,
			"probes", closedEvent.ProbeCount,
			"open_for", closedEvent.OpenFor.String(),
			"type", "circuit")
		if cb.audit != nil {
			cb.audit.LogCircuitClosed(context.Background(), *closedEvent)
		}
	}
}

// onFailure records a failed call and drives CLOSED → OPEN tripping and
// HALF_OPEN → OPEN reopening.
func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()

	cb.metrics.FailedCalls++
	if IsTimeout(err) {
		cb.metrics.Timeouts++
	}
	cb.lastFailureTime = time.Now()

	var openedEvent *model.CircuitOpenedEvent
	switch cb.state {
	case model.CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = model.CircuitOpen
			cb.openedAt = cb.lastFailureTime
			cb.metrics.CircuitBreakerTrips++
			openedEvent = &model.CircuitOpenedEvent{
				ServiceName:  cb.cfg.Name,
				FailureCount: cb.failureCount,
				OpenedAt:     cb.openedAt,
			}
		}
	case model.CircuitHalfOpen:
		// A single probe failure reopens the circuit.
		cb.state = model.CircuitOpen
		cb.openedAt = cb.lastFailureTime
		cb.successCount = 0
		cb.halfOpenCalls = 0
		cb.metrics.CircuitBreakerTrips++
		openedEvent = &model.CircuitOpenedEvent{
			ServiceName:  cb.cfg.Name,
			FailureCount: cb.failureCount,
			OpenedAt:     cb.openedAt,
		}
	}
	cb.mu.Unlock()

	if openedEvent != nil {
		cb.logger.Warnw("msg", "circuit breaker opened",
			"service", cb.cfg.Name,
			"failure_count", openedEvent.FailureCount,
			"error", err,
			"type", "circuit")
		if cb.audit != nil {
			cb.audit.LogCircuitOpened(context.Background(), *openedEvent)
		}
	}
}

// toHalfOpenLocked transitions OPEN → HALF_OPEN. Callers must hold the mutex.
func (cb *CircuitBreaker) toHalfOpenLocked() {
	cb.state = model.CircuitHalfOpen
	cb.halfOpenCalls = 0
	cb.successCount = 0
	cb.logger.Infow("msg", "circuit breaker half-open, admitting probes",
		"service", cb.cfg.Name,
		"max_probes", cb.cfg.HalfOpenMaxCalls,
		"type", "circuit")
}

// Reset forces the breaker back to CLOSED with all counters zeroed,
// regardless of current state. Operator escape hatch.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.state = model.CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
	cb.lastFailureTime = time.Time{}
	cb.metrics = model.CircuitBreakerMetrics{}
	cb.totalLatencyMs = 0
	cb.timedCalls = 0
	cb.mu.Unlock()

	cb.logger.Infow("msg", "circuit breaker reset", "service", cb.cfg.Name, "type", "circuit")
	if cb.audit != nil {
		cb.audit.LogCircuitReset(context.Background(), cb.cfg.Name)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() model.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a copy of the cumulative counters.
func (cb *CircuitBreaker) Metrics() model.CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metrics
}

// Status derives a ServiceHealth snapshot from the breaker's counters:
// CLOSED is healthy, HALF_OPEN degraded, OPEN unhealthy.
func (cb *CircuitBreaker) Status() model.ServiceHealth {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := model.StatusUnhealthy
	switch cb.state {
	case model.CircuitClosed:
		status = model.StatusHealthy
	case model.CircuitHalfOpen:
		status = model.StatusDegraded
	}

	errorRate := 0.0
	if cb.metrics.TotalCalls > 0 {
		errorRate = float64(cb.metrics.FailedCalls) / float64(cb.metrics.TotalCalls)
	}
	var avgLatency int64
	if cb.timedCalls > 0 {
		avgLatency = cb.totalLatencyMs / cb.timedCalls
	}

	return model.ServiceHealth{
		Name:                cb.cfg.Name,
		Status:              status,
		LastCheck:           time.Now(),
		ErrorRate:           errorRate,
		ResponseTime:        avgLatency,
		CircuitBreakerState: cb.state,
	}
}
