package data

import (
	"context"
	"os"
	"testing"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

// Test that an unconfigured MySQL deployment drops events without blocking
// or panicking
func TestAuditLogger_NilDB(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	al := NewAuditLogger(&Data{}, logger)

	ctx := context.Background()
	al.LogCircuitOpened(ctx, model.CircuitOpenedEvent{
		ServiceName:  "billing",
		FailureCount: 5,
		OpenedAt:     time.Now(),
	})
	al.LogCircuitClosed(ctx, model.CircuitClosedEvent{
		ServiceName: "billing",
		ProbeCount:  3,
		OpenFor:     time.Minute,
	})
	al.LogCircuitReset(ctx, "billing")
	al.LogFallbackServed(ctx, "billing", "service unhealthy")

	assert.Empty(t, al.logChan)
}

// Test the GORM model maps to the audit table
func TestResilienceEvent_TableName(t *testing.T) {
	assert.Equal(t, "resilience_audit_logs", ResilienceEvent{}.TableName())
}
