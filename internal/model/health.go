package model

import "time"

// HealthStatus is the coarse health rating of a named service.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// CircuitState is the circuit breaker state machine position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// ServiceHealth is a point-in-time snapshot of a named service. Snapshots are
// replaced wholesale on update, never merged.
type ServiceHealth struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	LastCheck           time.Time    `json:"last_check"`
	ErrorRate           float64      `json:"error_rate"`
	ResponseTime        int64        `json:"response_time_ms"`
	CircuitBreakerState CircuitState `json:"circuit_breaker_state"`
}

// CircuitBreakerMetrics are the cumulative counters a breaker accumulates
// over its lifetime. Reset zeroes them.
type CircuitBreakerMetrics struct {
	TotalCalls          int64 `json:"total_calls"`
	SuccessfulCalls     int64 `json:"successful_calls"`
	FailedCalls         int64 `json:"failed_calls"`
	Timeouts            int64 `json:"timeouts"`
	CircuitBreakerTrips int64 `json:"circuit_breaker_trips"`
}

// CircuitOpenedEvent records a breaker tripping open.
type CircuitOpenedEvent struct {
	ServiceName  string
	FailureCount int
	OpenedAt     time.Time
}

// CircuitClosedEvent records a breaker recovering to closed.
type CircuitClosedEvent struct {
	ServiceName string
	ProbeCount  int
	OpenFor     time.Duration
}
