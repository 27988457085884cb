package biz

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory FallbackCache for tests.
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{m: make(map[string][]byte)}
}

func (c *memCache) StoreResult(_ context.Context, serviceName string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[serviceName] = payload
	return nil
}

func (c *memCache) LoadResult(_ context.Context, serviceName string, dest interface{}) error {
	c.mu.Lock()
	payload, ok := c.m[serviceName]
	c.mu.Unlock()
	if !ok {
		return errors.New("no value stored")
	}
	return json.Unmarshal(payload, dest)
}

func newTestResilience(t *testing.T, cache FallbackCache) *ResilienceService {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)
	classifier := NewErrorClassifier()
	retry := NewRetryHandler(classifier, logger)
	degradation := NewDegradationHandler(logger, nil, nil)
	return NewResilienceService(classifier, retry, degradation, cache, nil, logger)
}

func fastOptions(threshold, maxRetries int, enableFallback bool) ServiceOptions {
	return ServiceOptions{
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: threshold,
			RecoveryTimeout:  time.Minute,
			HalfOpenMaxCalls: 1,
		},
		Retry: &RetryConfig{
			MaxRetries:        maxRetries,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		EnableFallback: enableFallback,
	}
}

// Test the happy path: result returned and cached for future fallbacks
func TestResilience_SuccessCachesResult(t *testing.T) {
	cache := newMemCache()
	rs := newTestResilience(t, cache)
	rs.RegisterService("svc", fastOptions(3, 0, true))

	result, err := rs.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
		return map[string]string{"report": "ready"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"report": "ready"}, result)

	var cached map[string]string
	require.NoError(t, cache.LoadResult(context.Background(), "svc", &cached))
	assert.Equal(t, "ready", cached["report"])
}

// Test that unregistered services are registered on the fly with defaults
func TestResilience_LazyRegistration(t *testing.T) {
	rs := newTestResilience(t, nil)

	result, err := rs.Execute(context.Background(), "unseen", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	health, err := rs.GetServiceHealth(context.Background(), "unseen")
	require.NoError(t, err)
	assert.Equal(t, model.StatusHealthy, health.Status)
}

// Test the full degradation path: once the last good value is cached,
// failures and breaker rejections both serve it
func TestResilience_FallbackServesCachedValue(t *testing.T) {
	cache := newMemCache()
	rs := newTestResilience(t, cache)
	rs.RegisterService("svc", fastOptions(1, 0, true))
	ctx := context.Background()

	_, err := rs.Execute(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return "fresh", nil
	})
	require.NoError(t, err)

	// Primary fails: the cached value is served and the error swallowed.
	result, err := rs.Execute(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("downstream exploded")
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"fresh"`, string(result.(json.RawMessage)))

	// Breaker is now open: the primary is rejected outright, fallback still
	// serves.
	invoked := false
	result, err = rs.Execute(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		invoked = true
		return "never", nil
	})
	require.NoError(t, err)
	assert.False(t, invoked)
	assert.JSONEq(t, `"fresh"`, string(result.(json.RawMessage)))
}

// Test that without a fallback, retry exhaustion propagates the last error
func TestResilience_NoFallbackPropagates(t *testing.T) {
	rs := newTestResilience(t, nil)
	rs.RegisterService("svc", fastOptions(10, 2, false))

	calls := 0
	boom := errors.New("ECONNREFUSED talking to downstream")
	_, err := rs.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 3, calls)
}

// Test that retries happen inside one breaker admission: a fully retried
// failure counts as a single breaker failure
func TestResilience_RetriesInsideOneAdmission(t *testing.T) {
	rs := newTestResilience(t, nil)
	rs.RegisterService("svc", fastOptions(2, 3, false))

	_, err := rs.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("ETIMEDOUT")
	})
	require.Error(t, err)

	metrics := rs.GetCircuitBreakerMetrics()["svc"]
	assert.Equal(t, int64(1), metrics.TotalCalls)
	assert.Equal(t, int64(1), metrics.FailedCalls)

	health, err := rs.GetServiceHealth(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, model.CircuitClosed, health.CircuitBreakerState)
}

// Test the timeout wrapper raises a TimeoutError carrying the configured
// duration
func TestResilience_TimeoutWrapper(t *testing.T) {
	rs := newTestResilience(t, nil)
	opts := fastOptions(5, 0, false)
	opts.Timeout = 20 * time.Millisecond
	rs.RegisterService("svc", opts)

	_, err := rs.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
		time.Sleep(300 * time.Millisecond)
		return "late", nil
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "svc", timeoutErr.ServiceName)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)

	metrics := rs.GetCircuitBreakerMetrics()["svc"]
	assert.Equal(t, int64(1), metrics.Timeouts)
}

// Test ResetCircuitBreaker closes an open breaker; unknown names error
func TestResilience_ResetCircuitBreaker(t *testing.T) {
	rs := newTestResilience(t, nil)
	rs.RegisterService("svc", fastOptions(1, 0, false))
	ctx := context.Background()

	_, _ = rs.Execute(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	health, err := rs.GetServiceHealth(ctx, "svc")
	require.NoError(t, err)
	require.Equal(t, model.CircuitOpen, health.CircuitBreakerState)

	require.NoError(t, rs.ResetCircuitBreaker("svc"))
	health, err = rs.GetServiceHealth(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, model.CircuitClosed, health.CircuitBreakerState)

	assert.Error(t, rs.ResetCircuitBreaker("nope"))
}

// memHealthRepo is an in-memory HealthRepo for tests.
type memHealthRepo struct {
	mu    sync.Mutex
	snaps map[string]model.ServiceHealth
}

func (r *memHealthRepo) SaveHealth(_ context.Context, health model.ServiceHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[health.Name] = health
	return nil
}

func (r *memHealthRepo) GetHealth(_ context.Context, name string) (*model.ServiceHealth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.snaps[name]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// Test health lookups for services registered elsewhere fall back to the
// persisted snapshot store
func TestResilience_GetServiceHealthFromPersistedSnapshot(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	classifier := NewErrorClassifier()
	repo := &memHealthRepo{snaps: map[string]model.ServiceHealth{
		"remote-svc": {
			Name:                "remote-svc",
			Status:              model.StatusDegraded,
			CircuitBreakerState: model.CircuitHalfOpen,
		},
	}}
	degradation := NewDegradationHandler(logger, nil, repo)
	rs := NewResilienceService(classifier, NewRetryHandler(classifier, logger), degradation, nil, nil, logger)
	ctx := context.Background()

	health, err := rs.GetServiceHealth(ctx, "remote-svc")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDegraded, health.Status)
	assert.Equal(t, model.CircuitHalfOpen, health.CircuitBreakerState)

	// Local registrations still take precedence over the store.
	rs.RegisterService("remote-svc", fastOptions(3, 0, false))
	health, err = rs.GetServiceHealth(ctx, "remote-svc")
	require.NoError(t, err)
	assert.Equal(t, model.StatusHealthy, health.Status)

	_, err = rs.GetServiceHealth(ctx, "never-seen")
	assert.Error(t, err)
}

// Test SweepHealth pushes breaker-derived snapshots into the registry
func TestResilience_SweepHealth(t *testing.T) {
	rs := newTestResilience(t, nil)
	rs.RegisterService("svc", fastOptions(1, 0, false))
	ctx := context.Background()

	_, _ = rs.Execute(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	rs.SweepHealth(ctx)

	all := rs.GetAllServiceHealth()
	require.Contains(t, all, "svc")
	assert.Equal(t, model.StatusUnhealthy, all["svc"].Status)
}
