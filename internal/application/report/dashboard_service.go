package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopfront/backend/internal/domain/report"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DashboardCache stores computed dashboards. Get returns nil, nil on a miss.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*report.Dashboard, error)
	Set(ctx context.Context, key string, dashboard *report.Dashboard, ttl time.Duration) error
}

// DashboardConfig holds dashboard settings
type DashboardConfig struct {
	CacheTTL          time.Duration
	LowStockThreshold int
}

// DefaultDashboardConfig returns the default dashboard settings
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		CacheTTL:          60 * time.Second,
		LowStockThreshold: 5,
	}
}

// DashboardService builds the admin revenue dashboard
type DashboardService struct {
	repo   report.Repository
	cache  DashboardCache
	config DashboardConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardService creates a new DashboardService. cache may be nil.
func NewDashboardService(repo report.Repository, cache DashboardCache, config DashboardConfig, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		repo:   repo,
		cache:  cache,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard returns the dashboard for the requested range, from cache
// when a fresh copy exists and req.Refresh is not set
func (s *DashboardService) Dashboard(ctx context.Context, req DashboardRequest) (*report.Dashboard, error) {
	q := req.toQuery(s.now())
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(q, s.config.LowStockThreshold)
	if s.cache != nil && !req.Refresh {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Dashboard cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	dashboard, err := s.compute(ctx, q)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, dashboard, s.config.CacheTTL); err != nil {
			s.logger.Warn("Dashboard cache write failed", zap.Error(err))
		}
	}
	return dashboard, nil
}

// Warm recomputes the default dashboard and stores it in the cache
func (s *DashboardService) Warm(ctx context.Context) error {
	_, err := s.Dashboard(ctx, DashboardRequest{Refresh: true})
	return err
}

// compute runs the dashboard queries concurrently. The first failure
// cancels the rest.
func (s *DashboardService) compute(ctx context.Context, q report.DashboardQuery) (*report.Dashboard, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "dashboard")
	defer span.End()
	telemetry.SetAttributes(span,
		"from", q.From.Format(time.RFC3339),
		"to", q.To.Format(time.RFC3339),
		"granularity", string(q.Granularity),
	)

	d := &report.Dashboard{Query: q}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := s.repo.RevenueSummary(gctx, q.From, q.To)
		if err != nil {
			return fmt.Errorf("revenue summary: %w", err)
		}
		d.Summary = summary
		return nil
	})
	g.Go(func() error {
		points, err := s.repo.RevenueSeries(gctx, q.From, q.To, q.Granularity)
		if err != nil {
			return fmt.Errorf("revenue series: %w", err)
		}
		d.Series = report.FillSeries(points, q.From, q.To, q.Granularity)
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.OrdersByStatus(gctx, q.From, q.To)
		if err != nil {
			return fmt.Errorf("orders by status: %w", err)
		}
		d.OrdersByStatus = counts
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopProducts(gctx, q.From, q.To, report.TopProductsLimit)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		d.TopProducts = top
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.NewCustomers(gctx, q.From, q.To)
		if err != nil {
			return fmt.Errorf("new customers: %w", err)
		}
		d.NewCustomers = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.LowStockCount(gctx, s.config.LowStockThreshold)
		if err != nil {
			return fmt.Errorf("low stock count: %w", err)
		}
		d.LowStockCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to compute dashboard", zap.Error(err))
		return nil, err
	}

	if d.OrdersByStatus == nil {
		d.OrdersByStatus = []report.StatusCount{}
	}
	if d.TopProducts == nil {
		d.TopProducts = []report.TopProduct{}
	}
	d.GeneratedAt = s.now().UTC()
	telemetry.SetOK(span)
	return d, nil
}
