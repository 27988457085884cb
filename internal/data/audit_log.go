package data

import (
	"context"
	"encoding/json"
	"time"

	"GuardLane/internal/biz"
	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// ResilienceEvent is the GORM model for the resilience_audit_logs table.
// Only state transitions are persisted here, never the handled errors
// themselves.
type ResilienceEvent struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	ServiceName string    `gorm:"column:service_name;type:varchar(100);not null;index"`
	EventType   string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details     string    `gorm:"column:details;type:json"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ResilienceEvent) TableName() string {
	return "resilience_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger with an async channel writer so
// audit persistence never blocks a request path. When MySQL is unconfigured
// events are logged and dropped.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *ResilienceEvent
	logger  *log.Helper
}

// NewAuditLogger creates the audit logger and starts its writer goroutine.
func NewAuditLogger(d *Data, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      d.db,
		logChan: make(chan *ResilienceEvent, 1000), // Buffered to absorb bursts without blocking.
		logger:  log.NewHelper(logger),
	}

	if al.db != nil {
		go al.start()
	}

	return al
}

// start drains the event channel into MySQL.
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write resilience audit event",
				"service", event.ServiceName,
				"event_type", event.EventType,
				"error", err,
				"type", "audit")
		} else {
			a.logger.Debugw("msg", "resilience audit event written",
				"service", event.ServiceName,
				"event_type", event.EventType,
				"type", "audit")
		}
	}
}

// enqueue queues an event without blocking; events are dropped when the
// channel is full or MySQL is unconfigured.
func (a *AuditLoggerImpl) enqueue(serviceName string, eventType biz.AuditEventType, details map[string]interface{}) {
	if a.db == nil {
		return
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit event details", "error", err, "type", "audit")
		return
	}

	event := &ResilienceEvent{
		ServiceName: serviceName,
		EventType:   string(eventType),
		Details:     string(detailsJSON),
	}

	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("msg", "audit channel full, dropping event",
			"service", serviceName,
			"event_type", eventType,
			"type", "audit")
	}
}

// LogCircuitOpened records a breaker tripping open.
func (a *AuditLoggerImpl) LogCircuitOpened(_ context.Context, event model.CircuitOpenedEvent) {
	a.enqueue(event.ServiceName, biz.AuditEventCircuitOpened, map[string]interface{}{
		"failure_count": event.FailureCount,
		"opened_at":     event.OpenedAt.Format(time.RFC3339),
	})
}

// LogCircuitClosed records a breaker recovering after successful probes.
func (a *AuditLoggerImpl) LogCircuitClosed(_ context.Context, event model.CircuitClosedEvent) {
	a.enqueue(event.ServiceName, biz.AuditEventCircuitClosed, map[string]interface{}{
		"probe_count":      event.ProbeCount,
		"open_for_seconds": event.OpenFor.Seconds(),
	})
}

// LogCircuitReset records an operator-forced reset.
func (a *AuditLoggerImpl) LogCircuitReset(_ context.Context, serviceName string) {
	a.enqueue(serviceName, biz.AuditEventCircuitReset, map[string]interface{}{
		"forced": true,
	})
}

// LogFallbackServed records a fallback response substituting the primary.
func (a *AuditLoggerImpl) LogFallbackServed(_ context.Context, serviceName, reason string) {
	a.enqueue(serviceName, biz.AuditEventFallbackServed, map[string]interface{}{
		"reason": reason,
	})
}
