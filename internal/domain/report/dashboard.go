package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Granularity selects the revenue time-series bucket
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// IsValid reports whether g is a known granularity
func (g Granularity) IsValid() bool {
	return g == GranularityDay || g == GranularityMonth
}

// Truncate returns the start of the bucket containing t
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	if g == GranularityMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Next returns the start of the bucket after the one starting at t
func (g Granularity) Next(t time.Time) time.Time {
	if g == GranularityMonth {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// MaxDashboardRange bounds how wide a dashboard query may be
const MaxDashboardRange = 366 * 24 * time.Hour

// DashboardQuery is the validated input to the dashboard
type DashboardQuery struct {
	From        time.Time   `json:"from"`
	To          time.Time   `json:"to"`
	Granularity Granularity `json:"granularity"`
}

// Validate checks range and granularity
func (q DashboardQuery) Validate() error {
	if !q.Granularity.IsValid() {
		return shared.NewDomainError("INVALID_GRANULARITY", "Granularity must be day or month")
	}
	if !q.To.After(q.From) {
		return shared.NewDomainError("INVALID_RANGE", "'to' must be after 'from'")
	}
	if q.To.Sub(q.From) > MaxDashboardRange {
		return shared.NewDomainError("INVALID_RANGE", "Date range cannot exceed one year")
	}
	return nil
}

// RevenueSummary is the headline numbers. Cancelled orders are excluded.
type RevenueSummary struct {
	Revenue           decimal.Decimal `json:"revenue"`
	OrderCount        int64           `json:"order_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// ComputeAverage fills AverageOrderValue from Revenue and OrderCount
func (s *RevenueSummary) ComputeAverage() {
	if s.OrderCount == 0 {
		s.AverageOrderValue = decimal.Zero
		return
	}
	s.AverageOrderValue = s.Revenue.Div(decimal.NewFromInt(s.OrderCount)).Round(2)
}

// RevenuePoint is one bucket of the revenue time series
type RevenuePoint struct {
	Period     time.Time       `json:"period"`
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int64           `json:"order_count"`
}

// FillSeries returns one point per bucket in [from, to), using zero for
// buckets with no orders
func FillSeries(points []RevenuePoint, from, to time.Time, g Granularity) []RevenuePoint {
	byPeriod := make(map[time.Time]RevenuePoint, len(points))
	for _, p := range points {
		key := g.Truncate(p.Period)
		existing, ok := byPeriod[key]
		if ok {
			existing.Revenue = existing.Revenue.Add(p.Revenue)
			existing.OrderCount += p.OrderCount
			byPeriod[key] = existing
			continue
		}
		p.Period = key
		byPeriod[key] = p
	}

	series := make([]RevenuePoint, 0)
	for cur := g.Truncate(from); cur.Before(to); cur = g.Next(cur) {
		if p, ok := byPeriod[cur]; ok {
			series = append(series, p)
			continue
		}
		series = append(series, RevenuePoint{Period: cur, Revenue: decimal.Zero})
	}
	return series
}

// StatusCount is the number of orders in one status
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TopProduct is one row of the best sellers table
type TopProduct struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// TopProductsLimit is how many products the dashboard ranks
const TopProductsLimit = 5

// Dashboard is the admin revenue dashboard
type Dashboard struct {
	Query          DashboardQuery `json:"query"`
	Summary        RevenueSummary `json:"summary"`
	Series         []RevenuePoint `json:"series"`
	OrdersByStatus []StatusCount  `json:"orders_by_status"`
	TopProducts    []TopProduct   `json:"top_products"`
	NewCustomers   int64          `json:"new_customers"`
	LowStockCount  int64          `json:"low_stock_count"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Repository runs the dashboard's read queries
type Repository interface {
	RevenueSummary(ctx context.Context, from, to time.Time) (RevenueSummary, error)
	RevenueSeries(ctx context.Context, from, to time.Time, g Granularity) ([]RevenuePoint, error)
	OrdersByStatus(ctx context.Context, from, to time.Time) ([]StatusCount, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error)
	NewCustomers(ctx context.Context, from, to time.Time) (int64, error)
	LowStockCount(ctx context.Context, threshold int) (int64, error)
}
