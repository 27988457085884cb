package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAudit captures audit calls for assertions.
type recordingAudit struct {
	mu        sync.Mutex
	fallbacks []string
	opened    []string
	closed    []string
	resets    []string
}

func (a *recordingAudit) LogCircuitOpened(_ context.Context, e model.CircuitOpenedEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = append(a.opened, e.ServiceName)
}

func (a *recordingAudit) LogCircuitClosed(_ context.Context, e model.CircuitClosedEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = append(a.closed, e.ServiceName)
}

func (a *recordingAudit) LogCircuitReset(_ context.Context, serviceName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets = append(a.resets, serviceName)
}

func (a *recordingAudit) LogFallbackServed(_ context.Context, serviceName, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallbacks = append(a.fallbacks, serviceName+": "+reason)
}

func newTestDegradation(t *testing.T, audit AuditLogger) *DegradationHandler {
	t.Helper()
	return NewDegradationHandler(log.NewStdLogger(os.Stdout), audit, nil)
}

// Test that an unhealthy service with a fallback never attempts the primary
func TestDegradation_UnhealthySkipsPrimary(t *testing.T) {
	d := newTestDegradation(t, nil)
	ctx := context.Background()

	d.UpdateServiceHealth(ctx, model.ServiceHealth{
		Name:   "svc",
		Status: model.StatusUnhealthy,
	})
	d.RegisterFallback("svc", func(ctx context.Context) (interface{}, error) {
		return "cached", nil
	})

	primaryCalled := false
	result, err := d.ExecuteWithDegradation(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		primaryCalled = true
		return "fresh", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", result)
	assert.False(t, primaryCalled)
}

// Test that a primary failure with a fallback swallows the original error
func TestDegradation_PrimaryFailureServesFallback(t *testing.T) {
	audit := &recordingAudit{}
	d := newTestDegradation(t, audit)
	ctx := context.Background()

	d.RegisterFallback("svc", func(ctx context.Context) (interface{}, error) {
		return "cached", nil
	})

	result, err := d.ExecuteWithDegradation(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("primary exploded")
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", result)
	assert.Len(t, audit.fallbacks, 1)
	assert.Contains(t, audit.fallbacks[0], "primary exploded")
}

// Test that without a fallback the original error propagates unchanged
func TestDegradation_NoFallbackPropagates(t *testing.T) {
	d := newTestDegradation(t, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := d.ExecuteWithDegradation(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})

	assert.Same(t, boom, err)
}

// Test that an unhealthy service without a fallback still runs the primary
func TestDegradation_UnhealthyWithoutFallbackRunsPrimary(t *testing.T) {
	d := newTestDegradation(t, nil)
	ctx := context.Background()

	d.UpdateServiceHealth(ctx, model.ServiceHealth{Name: "svc", Status: model.StatusUnhealthy})

	result, err := d.ExecuteWithDegradation(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return "fresh", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fresh", result)
}

// Test that UpdateServiceHealth replaces the snapshot wholesale
func TestDegradation_UpdateReplacesSnapshot(t *testing.T) {
	d := newTestDegradation(t, nil)
	ctx := context.Background()

	d.UpdateServiceHealth(ctx, model.ServiceHealth{
		Name:      "svc",
		Status:    model.StatusUnhealthy,
		ErrorRate: 0.9,
	})
	d.UpdateServiceHealth(ctx, model.ServiceHealth{
		Name:   "svc",
		Status: model.StatusHealthy,
	})

	h, ok := d.GetServiceHealth("svc")
	require.True(t, ok)
	assert.Equal(t, model.StatusHealthy, h.Status)
	// No merge: the old error rate is gone.
	assert.Equal(t, 0.0, h.ErrorRate)
}

// Test that failing fallbacks surface their own error
func TestDegradation_FallbackErrorSurfaces(t *testing.T) {
	d := newTestDegradation(t, nil)
	ctx := context.Background()

	fbErr := &ServiceDegradedError{ServiceName: "svc", Status: "unhealthy"}
	d.RegisterFallback("svc", func(ctx context.Context) (interface{}, error) {
		return nil, fbErr
	})

	_, err := d.ExecuteWithDegradation(ctx, "svc", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("primary down")
	})

	assert.Same(t, error(fbErr), err)
}
