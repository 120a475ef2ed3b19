package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Backend owns the optional Redis connection and hands out the stores
// built on it. Without Redis every store falls back to process memory,
// which is only correct for a single instance.
type Backend struct {
	client                *redis.Client
	logger                *zap.Logger
	allowInMemoryFallback bool
	closers               []func() error
}

// BackendOption is a functional option for configuring the backend
type BackendOption func(*Backend)

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// in-memory stores instead of failing startup. Default is true.
func WithInMemoryFallback(allow bool) BackendOption {
	return func(b *Backend) {
		b.allowInMemoryFallback = allow
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewBackend connects to Redis when cfg.Enabled is set
func NewBackend(cfg config.RedisConfig, logger *zap.Logger, opts ...BackendOption) (*Backend, error) {
	b := &Backend{
		logger:                logger,
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(b)
	}

	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory stores")
		return b, nil
	}

	client, err := NewRedisClient(cfg)
	if err != nil {
		if !b.allowInMemoryFallback {
			return nil, err
		}
		logger.Warn("Redis unavailable, falling back to in-memory stores. "+
			"Token revocation and idempotency keys will not be shared between instances.",
			zap.Error(err))
		return b, nil
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	b.client = client
	return b, nil
}

// NewBackendWithClient wraps an existing client; nil means in-memory
func NewBackendWithClient(client *redis.Client, logger *zap.Logger) *Backend {
	return &Backend{client: client, logger: logger}
}

// Client returns the Redis client, or nil when running in memory
func (b *Backend) Client() *redis.Client {
	return b.client
}

// IsRedis reports whether stores are backed by Redis
func (b *Backend) IsRedis() bool {
	return b.client != nil
}

// IdempotencyStore returns the event handler idempotency store
func (b *Backend) IdempotencyStore() shared.IdempotencyStore {
	if b.client != nil {
		return NewRedisIdempotencyStore(b.client, "")
	}
	store := NewInMemoryIdempotencyStore()
	b.closers = append(b.closers, store.Close)
	return store
}

// DashboardCache returns the dashboard result cache
func (b *Backend) DashboardCache() DashboardCache {
	if b.client != nil {
		return NewRedisDashboardCache(b.client, "", b.logger)
	}
	c := NewInMemoryDashboardCache(WithInMemoryLogger(b.logger))
	b.closers = append(b.closers, c.Close)
	return c
}

// Close stops in-memory janitors and closes the Redis client
func (b *Backend) Close() error {
	for _, closeFn := range b.closers {
		_ = closeFn()
	}
	b.closers = nil
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
