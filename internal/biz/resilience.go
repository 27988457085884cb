package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// ServiceOptions configures the resilience composition for one registered
// service. Nil sub-configs fall back to defaults.
type ServiceOptions struct {
	CircuitBreaker *CircuitBreakerConfig
	Retry          *RetryConfig
	// Timeout bounds each raw attempt. Zero disables the timeout wrapper.
	Timeout time.Duration
	// EnableFallback auto-registers a cached fallback serving the service's
	// last successful result.
	EnableFallback bool
}

// ResilienceService is the single call-site façade business logic uses. It
// owns the named circuit breakers and composes, per call:
//
//	degradation( circuit breaker( retry( timeout( operation ) ) ) )
//
// so retries happen inside one breaker-admitted attempt window and the
// fallback sees the fully-retried outcome, including breaker rejections.
type ResilienceService struct {
	logger      *log.Helper
	classifier  *ErrorClassifier
	retry       *RetryHandler
	degradation *DegradationHandler
	cache       FallbackCache

	mu        sync.RWMutex
	breakers  map[string]*CircuitBreaker
	retryCfgs map[string]RetryConfig
	timeouts  map[string]time.Duration

	audit     AuditLogger
	rawLogger log.Logger
}

// NewResilienceService creates the façade. The fallback cache may be nil.
func NewResilienceService(
	classifier *ErrorClassifier,
	retry *RetryHandler,
	degradation *DegradationHandler,
	cache FallbackCache,
	audit AuditLogger,
	logger log.Logger,
) *ResilienceService {
	return &ResilienceService{
		logger:      log.NewHelper(logger),
		classifier:  classifier,
		retry:       retry,
		degradation: degradation,
		cache:       cache,
		audit:       audit,
		rawLogger:   logger,
		breakers:    make(map[string]*CircuitBreaker),
		retryCfgs:   make(map[string]RetryConfig),
		timeouts:    make(map[string]time.Duration),
	}
}

// RegisterService registers a named service with its resilience policy.
// Re-registering a name replaces its policy; breaker state is not preserved,
// a fresh breaker is created.
func (s *ResilienceService) RegisterService(name string, opts ServiceOptions) {
	cbCfg := DefaultCircuitBreakerConfig(name)
	if opts.CircuitBreaker != nil {
		cbCfg = *opts.CircuitBreaker
		cbCfg.Name = name
	}
	retryCfg := DefaultRetryConfig
	if opts.Retry != nil {
		retryCfg = *opts.Retry
	}

	s.mu.Lock()
	s.breakers[name] = NewCircuitBreaker(cbCfg, s.rawLogger, s.audit)
	s.retryCfgs[name] = retryCfg
	s.timeouts[name] = opts.Timeout
	s.mu.Unlock()

	if opts.EnableFallback && s.cache != nil {
		s.degradation.RegisterFallback(name, s.CachedFallback(name))
	}

	s.logger.Infow("msg", "service registered",
		"service", name,
		"failure_threshold", cbCfg.FailureThreshold,
		"recovery_timeout", cbCfg.RecoveryTimeout.String(),
		"max_retries", retryCfg.MaxRetries,
		"timeout", opts.Timeout.String(),
		"type", "startup")
}

// RegisterFallback registers a zero-argument fallback producer for a service.
func (s *ResilienceService) RegisterFallback(name string, fb Fallback) {
	s.degradation.RegisterFallback(name, fb)
}

// CachedFallback builds a fallback that serves the service's last successful
// result from the fallback cache.
func (s *ResilienceService) CachedFallback(name string) Fallback {
	return func(ctx context.Context) (interface{}, error) {
		var cached json.RawMessage
		if err := s.cache.LoadResult(ctx, name, &cached); err != nil {
			return nil, &ServiceDegradedError{
				ServiceName: name,
				Status:      string(model.StatusUnhealthy),
			}
		}
		return cached, nil
	}
}

// Execute runs op for the named service through the full resilience
// composition. Unregistered names are registered on the fly with defaults.
func (s *ResilienceService) Execute(ctx context.Context, name string, op Operation) (interface{}, error) {
	s.mu.RLock()
	breaker, ok := s.breakers[name]
	retryCfg := s.retryCfgs[name]
	timeout := s.timeouts[name]
	s.mu.RUnlock()

	if !ok {
		s.RegisterService(name, ServiceOptions{})
		s.mu.RLock()
		breaker = s.breakers[name]
		retryCfg = s.retryCfgs[name]
		s.mu.RUnlock()
	}

	attempt := op
	if timeout > 0 {
		attempt = s.withTimeout(name, timeout, op)
	}

	primary := func(ctx context.Context) (interface{}, error) {
		return breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return s.retry.Execute(ctx, name, attempt, retryCfg)
		})
	}

	result, err := s.degradation.ExecuteWithDegradation(ctx, name, primary)
	if err == nil && s.cache != nil {
		if cacheErr := s.cache.StoreResult(ctx, name, result); cacheErr != nil {
			s.logger.Debugw("msg", "failed to cache fallback value",
				"service", name,
				"error", cacheErr)
		}
	}
	return result, err
}

// withTimeout races op against a timer. When the timer fires first the
// caller stops waiting and receives a TimeoutError; the operation goroutine
// is abandoned, not cancelled, beyond the derived context.
func (s *ResilienceService) withTimeout(name string, timeout time.Duration, op Operation) Operation {
	return func(ctx context.Context) (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, timeout)

		type outcome struct {
			result interface{}
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			defer cancel()
			result, err := op(opCtx)
			done <- outcome{result: result, err: err}
		}()

		select {
		case out := <-done:
			return out.result, out.err
		case <-time.After(timeout):
			return nil, &TimeoutError{ServiceName: name, Timeout: timeout}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetServiceHealth returns the latest health snapshot for a service: the
// pushed registry snapshot when present, otherwise one derived live from the
// breaker, otherwise the snapshot another process persisted to the store.
func (s *ResilienceService) GetServiceHealth(ctx context.Context, name string) (model.ServiceHealth, error) {
	if h, ok := s.degradation.GetServiceHealth(name); ok {
		return h, nil
	}
	s.mu.RLock()
	breaker, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return breaker.Status(), nil
	}
	if h, err := s.degradation.PersistedHealth(ctx, name); err == nil && h != nil {
		return *h, nil
	}
	return model.ServiceHealth{}, fmt.Errorf("service not registered: %s", name)
}

// GetAllServiceHealth derives a snapshot for every registered breaker,
// overlaid with any externally pushed snapshots.
func (s *ResilienceService) GetAllServiceHealth() map[string]model.ServiceHealth {
	out := make(map[string]model.ServiceHealth)
	s.mu.RLock()
	for name, breaker := range s.breakers {
		out[name] = breaker.Status()
	}
	s.mu.RUnlock()
	for name, h := range s.degradation.AllServiceHealth() {
		out[name] = h
	}
	return out
}

// GetCircuitBreakerMetrics returns the cumulative counters per breaker.
func (s *ResilienceService) GetCircuitBreakerMetrics() map[string]model.CircuitBreakerMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.CircuitBreakerMetrics, len(s.breakers))
	for name, breaker := range s.breakers {
		out[name] = breaker.Metrics()
	}
	return out
}

// ResetCircuitBreaker forces the named breaker back to CLOSED.
func (s *ResilienceService) ResetCircuitBreaker(name string) error {
	s.mu.RLock()
	breaker, ok := s.breakers[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("service not registered: %s", name)
	}
	breaker.Reset()
	return nil
}

// SweepHealth derives each breaker's current health and pushes it into the
// degradation registry (and through it, the persistent snapshot store).
// Called periodically by the cron health sweep.
func (s *ResilienceService) SweepHealth(ctx context.Context) {
	s.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		breakers = append(breakers, b)
	}
	s.mu.RUnlock()

	for _, b := range breakers {
		s.degradation.UpdateServiceHealth(ctx, b.Status())
	}
}
