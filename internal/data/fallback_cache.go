package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// fallbackKeyPrefix prefixes last-good-value keys: fallback:{service}
	fallbackKeyPrefix = "fallback"
	// fallbackTTL bounds how stale a served fallback value may be.
	fallbackTTL = time.Hour
	// fallbackLRUSize caps the in-process front cache.
	fallbackLRUSize = 256
)

// ErrNoFallbackValue is returned when no last-good value exists for a service.
var ErrNoFallbackValue = errors.New("fallback cache: no value stored")

// FallbackCacheImpl stores each service's last successful result, JSON
// encoded, in a two-tier cache: an in-process LRU in front of Redis. The LRU
// keeps the fallback path alive even when Redis itself is the failing
// dependency.
type FallbackCacheImpl struct {
	rdb    *redis.Client
	local  *lru.Cache[string, []byte]
	logger *log.Helper
}

// NewFallbackCache creates the two-tier fallback cache. Redis may be nil.
func NewFallbackCache(d *Data, logger log.Logger) (*FallbackCacheImpl, error) {
	local, err := lru.New[string, []byte](fallbackLRUSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback LRU: %w", err)
	}
	return &FallbackCacheImpl{
		rdb:    d.redisClient,
		local:  local,
		logger: log.NewHelper(logger),
	}, nil
}

func fallbackKey(serviceName string) string {
	return fmt.Sprintf("%s:%s", fallbackKeyPrefix, serviceName)
}

// StoreResult records value as the service's last-good result in both tiers.
// Redis write failures are logged, not returned: caching is best-effort.
func (c *FallbackCacheImpl) StoreResult(ctx context.Context, serviceName string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode fallback value for %s: %w", serviceName, err)
	}

	key := fallbackKey(serviceName)
	c.local.Add(key, payload)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, payload, fallbackTTL).Err(); err != nil {
			c.logger.Warnw("msg", "failed to store fallback value in Redis",
				"service", serviceName,
				"error", err,
				"type", "redis")
		}
	}
	return nil
}

// LoadResult retrieves the service's last-good result into dest, checking the
// LRU first and repopulating it on a Redis hit. Returns ErrNoFallbackValue
// when neither tier has one.
func (c *FallbackCacheImpl) LoadResult(ctx context.Context, serviceName string, dest interface{}) error {
	key := fallbackKey(serviceName)

	if payload, ok := c.local.Get(key); ok {
		return json.Unmarshal(payload, dest)
	}

	if c.rdb == nil {
		return ErrNoFallbackValue
	}

	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNoFallbackValue
	}
	if err != nil {
		c.logger.Warnw("msg", "failed to load fallback value from Redis",
			"service", serviceName,
			"error", err,
			"type", "redis")
		return ErrNoFallbackValue
	}

	c.local.Add(key, payload)
	return json.Unmarshal(payload, dest)
}
