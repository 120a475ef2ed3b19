package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopfront/backend/internal/domain/report"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultDashboardTTL    = 60 * time.Second
)

// DashboardCache stores computed dashboards by key. Get returns nil, nil
// on a miss.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*report.Dashboard, error)
	Set(ctx context.Context, key string, dashboard *report.Dashboard, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}

// cacheEntry wraps a cached value with expiration time
type cacheEntry[T any] struct {
	value     *T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryDashboardCache implements DashboardCache in process memory
type InMemoryDashboardCache struct {
	entries    sync.Map // map[string]*cacheEntry[report.Dashboard]
	defaultTTL time.Duration
	logger     *zap.Logger
	stopCh     chan struct{}
	stopped    int32
	wg         sync.WaitGroup

	hits   int64
	misses int64
}

// InMemoryDashboardCacheOption is a functional option for configuring the cache
type InMemoryDashboardCacheOption func(*InMemoryDashboardCache)

// WithInMemoryTTL sets the TTL used when Set is given zero
func WithInMemoryTTL(ttl time.Duration) InMemoryDashboardCacheOption {
	return func(c *InMemoryDashboardCache) {
		c.defaultTTL = ttl
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryDashboardCacheOption {
	return func(c *InMemoryDashboardCache) {
		c.logger = logger
	}
}

// NewInMemoryDashboardCache creates the cache and starts its janitor
func NewInMemoryDashboardCache(opts ...InMemoryDashboardCacheOption) *InMemoryDashboardCache {
	c := &InMemoryDashboardCache{
		defaultTTL: defaultDashboardTTL,
		logger:     zap.NewNop(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.cleanupExpired()
	return c
}

// Get returns the cached dashboard for key
func (c *InMemoryDashboardCache) Get(_ context.Context, key string) (*report.Dashboard, error) {
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*cacheEntry[report.Dashboard])
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, nil
		}
		c.entries.Delete(key)
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, nil
}

// Set stores a dashboard under key
func (c *InMemoryDashboardCache) Set(_ context.Context, key string, dashboard *report.Dashboard, ttl time.Duration) error {
	if dashboard == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Store(key, &cacheEntry[report.Dashboard]{
		value:     dashboard,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// InvalidateAll drops every entry
func (c *InMemoryDashboardCache) InvalidateAll(_ context.Context) error {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	return nil
}

// GetStats returns hit and miss counts
func (c *InMemoryDashboardCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of live and expired-but-unswept entries
func (c *InMemoryDashboardCache) Count() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the janitor. Safe to call more than once.
func (c *InMemoryDashboardCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
		c.wg.Wait()
	}
	return nil
}

func (c *InMemoryDashboardCache) cleanupExpired() {
	defer c.wg.Done()
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

func (c *InMemoryDashboardCache) doCleanup() {
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry[report.Dashboard]).isExpired() {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired dashboard entries", zap.Int("removed", removed))
	}
}

var _ DashboardCache = (*InMemoryDashboardCache)(nil)
