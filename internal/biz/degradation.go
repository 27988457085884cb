package biz

import (
	"context"
	"sync"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Fallback produces a degraded-mode result for a service, typically a cached
// or default payload.
type Fallback func(ctx context.Context) (interface{}, error)

// DegradationHandler keeps the per-service health registry and fallback
// registry, and routes execution through a fallback when a service is known
// unhealthy or its primary call fails.
//
// Both registries are read-mostly after startup registration; updates are
// last-write-wins with no merge semantics.
type DegradationHandler struct {
	logger *log.Helper
	audit  AuditLogger
	repo   HealthRepo

	mu        sync.RWMutex
	health    map[string]model.ServiceHealth
	fallbacks map[string]Fallback
}

// NewDegradationHandler creates a degradation handler. The audit logger and
// health repo may be nil (tests, minimal deployments).
func NewDegradationHandler(logger log.Logger, audit AuditLogger, repo HealthRepo) *DegradationHandler {
	return &DegradationHandler{
		logger:    log.NewHelper(logger),
		audit:     audit,
		repo:      repo,
		health:    make(map[string]model.ServiceHealth),
		fallbacks: make(map[string]Fallback),
	}
}

// RegisterFallback registers (or replaces) the fallback producer for a
// service name.
func (d *DegradationHandler) RegisterFallback(name string, fb Fallback) {
	d.mu.Lock()
	d.fallbacks[name] = fb
	d.mu.Unlock()
	d.logger.Infow("msg", "fallback registered", "service", name, "type", "fallback")
}

// UpdateServiceHealth replaces the stored snapshot for the service. No merge:
// the previous snapshot is discarded wholesale. Unhealthy transitions are
// logged at warning level and the snapshot is persisted best-effort.
func (d *DegradationHandler) UpdateServiceHealth(ctx context.Context, health model.ServiceHealth) {
	d.mu.Lock()
	d.health[health.Name] = health
	d.mu.Unlock()

	if health.Status == model.StatusUnhealthy {
		d.logger.Warnw("msg", "service marked unhealthy",
			"service", health.Name,
			"error_rate", health.ErrorRate,
			"circuit_state", health.CircuitBreakerState,
			"type", "health")
	}

	if d.repo != nil {
		if err := d.repo.SaveHealth(ctx, health); err != nil {
			d.logger.Warnw("msg", "failed to persist health snapshot",
				"service", health.Name,
				"error", err,
				"type", "health")
		}
	}
}

// GetServiceHealth returns the latest snapshot for the service, if any.
func (d *DegradationHandler) GetServiceHealth(name string) (model.ServiceHealth, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.health[name]
	return h, ok
}

// PersistedHealth loads the snapshot another process persisted for the
// service. Returns nil without error when no store is configured or the store
// has no snapshot.
func (d *DegradationHandler) PersistedHealth(ctx context.Context, name string) (*model.ServiceHealth, error) {
	if d.repo == nil {
		return nil, nil
	}
	return d.repo.GetHealth(ctx, name)
}

// AllServiceHealth returns a copy of every stored snapshot.
func (d *DegradationHandler) AllServiceHealth() map[string]model.ServiceHealth {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]model.ServiceHealth, len(d.health))
	for k, v := range d.health {
		out[k] = v
	}
	return out
}

// ExecuteWithDegradation routes execution for a named service:
//   - known-unhealthy service with a registered fallback: serve the fallback
//     without attempting the primary at all
//   - primary failure with a registered fallback: serve the fallback and
//     swallow the original error
//   - no fallback: propagate the original error unchanged
func (d *DegradationHandler) ExecuteWithDegradation(ctx context.Context, name string, op Operation) (interface{}, error) {
	d.mu.RLock()
	health, hasHealth := d.health[name]
	fb, hasFallback := d.fallbacks[name]
	d.mu.RUnlock()

	if hasHealth && health.Status == model.StatusUnhealthy && hasFallback {
		d.logger.Warnw("msg", "service unhealthy, serving fallback without attempting primary",
			"service", name,
			"type", "fallback")
		return d.serveFallback(ctx, name, fb, "service unhealthy")
	}

	result, err := op(ctx)
	if err == nil {
		return result, nil
	}

	if !hasFallback {
		return nil, err
	}

	d.logger.Warnw("msg", "primary operation failed, serving fallback",
		"service", name,
		"error", err,
		"type", "fallback")
	return d.serveFallback(ctx, name, fb, err.Error())
}

func (d *DegradationHandler) serveFallback(ctx context.Context, name string, fb Fallback, reason string) (interface{}, error) {
	if d.audit != nil {
		d.audit.LogFallbackServed(ctx, name, reason)
	}
	return fb(ctx)
}
