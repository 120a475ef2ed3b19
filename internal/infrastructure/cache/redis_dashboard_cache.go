package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopfront/backend/internal/domain/report"
	"go.uber.org/zap"
)

const (
	defaultDashboardPrefix = "shop:dashboard:"
	defaultScanBatchSize   = 100
)

// RedisDashboardCache implements DashboardCache on Redis so every instance
// serves the same cached dashboard
type RedisDashboardCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisDashboardCache creates a cache on a shared client
func NewRedisDashboardCache(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisDashboardCache {
	if keyPrefix == "" {
		keyPrefix = defaultDashboardPrefix
	}
	return &RedisDashboardCache{client: client, keyPrefix: keyPrefix, logger: logger}
}

// Get returns the cached dashboard, or nil on a miss
func (c *RedisDashboardCache) Get(ctx context.Context, key string) (*report.Dashboard, error) {
	cacheKey := c.keyPrefix + key

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard from cache: %w", err)
	}

	var dashboard report.Dashboard
	if err := json.Unmarshal(data, &dashboard); err != nil {
		c.logger.Warn("Dropping corrupted dashboard cache entry",
			zap.String("key", cacheKey),
			zap.Error(err))
		_ = c.client.Del(ctx, cacheKey)
		return nil, nil
	}
	return &dashboard, nil
}

// Set stores a dashboard for ttl
func (c *RedisDashboardCache) Set(ctx context.Context, key string, dashboard *report.Dashboard, ttl time.Duration) error {
	if dashboard == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultDashboardTTL
	}
	data, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache dashboard: %w", err)
	}
	return nil
}

// InvalidateAll deletes every key under the prefix
func (c *RedisDashboardCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", defaultScanBatchSize).Iterator()
	keys := make([]string, 0, defaultScanBatchSize)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == defaultScanBatchSize {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate dashboards: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan dashboard keys: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate dashboards: %w", err)
		}
	}
	return nil
}

var _ DashboardCache = (*RedisDashboardCache)(nil)
