// Package data provides data access layer implementations: the Redis-backed
// health snapshot store and fallback cache, and the MySQL resilience audit
// trail.
package data

import (
	"fmt"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewFallbackCache,
	NewHealthRepo,
	NewAuditLogger,
	wire.Bind(new(biz.FallbackCache), new(*FallbackCacheImpl)),
	wire.Bind(new(biz.HealthRepo), new(*HealthRepoImpl)),
	wire.Bind(new(biz.AuditLogger), new(*AuditLoggerImpl)),
)

// Data bundles the shared data layer handles.
type Data struct {
	redisClient *redis.Client
	db          *gorm.DB
}

// NewData creates a new Data instance. Redis or MySQL being unavailable does
// not prevent startup; the dependent repos degrade gracefully.
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, health snapshots and fallback cache run in-memory only")
	}

	if db != nil {
		if err := db.AutoMigrate(&ResilienceEvent{}); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate audit schema: %w", err)
		}
	}

	d := &Data{
		redisClient: rdb,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
	}

	return d, cleanup, nil
}

// RedisClient returns the shared Redis client, possibly nil.
func (d *Data) RedisClient() *redis.Client {
	return d.redisClient
}

// DB returns the shared GORM handle, possibly nil.
func (d *Data) DB() *gorm.DB {
	return d.db
}
