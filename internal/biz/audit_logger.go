package biz

import (
	"context"

	"GuardLane/internal/model"
)

// AuditEventType defines the type of resilience audit event.
type AuditEventType string

const (
	AuditEventCircuitOpened  AuditEventType = "CIRCUIT_OPENED"
	AuditEventCircuitClosed  AuditEventType = "CIRCUIT_CLOSED"
	AuditEventCircuitReset   AuditEventType = "CIRCUIT_RESET"
	AuditEventFallbackServed AuditEventType = "FALLBACK_SERVED"
)

// AuditLogger records resilience state transitions for the compliance trail.
// Implementations must be non-blocking; dropping events under pressure is
// acceptable, failing a request is not.
type AuditLogger interface {
	LogCircuitOpened(ctx context.Context, event model.CircuitOpenedEvent)
	LogCircuitClosed(ctx context.Context, event model.CircuitClosedEvent)
	LogCircuitReset(ctx context.Context, serviceName string)
	LogFallbackServed(ctx context.Context, serviceName, reason string)
}

// HealthRepo persists ServiceHealth snapshots so operational dashboards
// survive process restarts. Persistence is best-effort.
type HealthRepo interface {
	SaveHealth(ctx context.Context, health model.ServiceHealth) error
	GetHealth(ctx context.Context, name string) (*model.ServiceHealth, error)
}

// FallbackCache stores the last successful result per service so registered
// cached fallbacks can serve it while the primary is down.
type FallbackCache interface {
	StoreResult(ctx context.Context, serviceName string, value interface{}) error
	LoadResult(ctx context.Context, serviceName string, dest interface{}) error
}
