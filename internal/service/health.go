package service

import (
	"context"
	"sort"

	"GuardLane/internal/biz"
	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// HealthService backs the operational introspection endpoints: per-service
// health, breaker metrics and operator-forced breaker resets.
type HealthService struct {
	resilience *biz.ResilienceService
	logger     *log.Helper
}

// NewHealthService creates the introspection service.
func NewHealthService(resilience *biz.ResilienceService, logger log.Logger) *HealthService {
	return &HealthService{
		resilience: resilience,
		logger:     log.NewHelper(logger),
	}
}

// ServiceHealthList is the response shape for the service listing endpoint.
type ServiceHealthList struct {
	Services []model.ServiceHealth `json:"services"`
}

// BreakerMetricsList is the response shape for the breaker listing endpoint.
type BreakerMetricsList struct {
	Breakers map[string]model.CircuitBreakerMetrics `json:"breakers"`
}

// ResetResult is the response shape for a forced breaker reset.
type ResetResult struct {
	Service string `json:"service"`
	State   string `json:"state"`
}

// ListServices returns the health of every registered service, sorted by
// name for stable output.
func (s *HealthService) ListServices(_ context.Context) *ServiceHealthList {
	byName := s.resilience.GetAllServiceHealth()

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make([]model.ServiceHealth, 0, len(names))
	for _, name := range names {
		services = append(services, byName[name])
	}
	return &ServiceHealthList{Services: services}
}

// GetService returns one service's health snapshot. Services registered in
// another process are resolved through the persistent snapshot store.
func (s *HealthService) GetService(ctx context.Context, name string) (model.ServiceHealth, error) {
	return s.resilience.GetServiceHealth(ctx, name)
}

// ListBreakers returns the metrics of every circuit breaker.
func (s *HealthService) ListBreakers(_ context.Context) *BreakerMetricsList {
	return &BreakerMetricsList{Breakers: s.resilience.GetCircuitBreakerMetrics()}
}

// ResetBreaker forces a breaker back to CLOSED with zeroed counters.
func (s *HealthService) ResetBreaker(ctx context.Context, name string) (*ResetResult, error) {
	if err := s.resilience.ResetCircuitBreaker(name); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Warnw("msg", "circuit breaker reset by operator",
		"service", name,
		"type", "circuit")

	return &ResetResult{Service: name, State: string(model.CircuitClosed)}, nil
}

// Liveness is the healthz probe result. The process is alive as long as it
// can answer; degraded dependencies are reported, not fatal.
type Liveness struct {
	Status   string `json:"status"`
	Services int    `json:"services"`
}

// Healthz reports process liveness plus how many services are tracked.
func (s *HealthService) Healthz(_ context.Context) *Liveness {
	return &Liveness{
		Status:   "ok",
		Services: len(s.resilience.GetAllServiceHealth()),
	}
}
