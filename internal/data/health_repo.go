package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// healthKeyPrefix prefixes snapshot keys: health:{service}
	healthKeyPrefix = "health"
	// healthTTL expires stale snapshots of services that stopped reporting.
	healthTTL = 10 * time.Minute
)

// HealthRepoImpl persists ServiceHealth snapshots to Redis so dashboards can
// read them across processes and restarts. Each update fully replaces the
// stored snapshot.
type HealthRepoImpl struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewHealthRepo creates the Redis-backed health snapshot store.
func NewHealthRepo(d *Data, logger log.Logger) *HealthRepoImpl {
	return &HealthRepoImpl{
		rdb:    d.redisClient,
		logger: log.NewHelper(logger),
	}
}

func healthKey(name string) string {
	return fmt.Sprintf("%s:%s", healthKeyPrefix, name)
}

// SaveHealth replaces the stored snapshot for the service.
func (r *HealthRepoImpl) SaveHealth(ctx context.Context, health model.ServiceHealth) error {
	if r.rdb == nil {
		return nil // In-memory only deployment.
	}

	payload, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to encode health snapshot for %s: %w", health.Name, err)
	}
	if err := r.rdb.Set(ctx, healthKey(health.Name), payload, healthTTL).Err(); err != nil {
		return fmt.Errorf("failed to save health snapshot for %s: %w", health.Name, err)
	}
	return nil
}

// GetHealth returns the stored snapshot, or nil when none exists.
func (r *HealthRepoImpl) GetHealth(ctx context.Context, name string) (*model.ServiceHealth, error) {
	if r.rdb == nil {
		return nil, nil
	}

	payload, err := r.rdb.Get(ctx, healthKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health snapshot for %s: %w", name, err)
	}

	var health model.ServiceHealth
	if err := json.Unmarshal(payload, &health); err != nil {
		return nil, fmt.Errorf("failed to decode health snapshot for %s: %w", name, err)
	}
	return &health, nil
}
