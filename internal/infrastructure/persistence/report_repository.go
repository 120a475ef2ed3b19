package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/report"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const periodLayout = "2006-01-02"

// GormReportRepository implements report.Repository using GORM.
// Cancelled orders never count towards revenue.
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

func (r *GormReportRepository) revenueOrders(ctx context.Context, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("orders o").
		Where("o.created_at >= ? AND o.created_at < ?", from, to).
		Where("o.status <> ?", order.StatusCancelled)
}

// RevenueSummary returns revenue, order count and average order value
func (r *GormReportRepository) RevenueSummary(ctx context.Context, from, to time.Time) (report.RevenueSummary, error) {
	var row struct {
		Revenue    decimal.Decimal
		OrderCount int64
	}
	if err := r.revenueOrders(ctx, from, to).
		Select("COALESCE(SUM(o.total), 0) AS revenue, COUNT(o.id) AS order_count").
		Scan(&row).Error; err != nil {
		return report.RevenueSummary{}, err
	}

	summary := report.RevenueSummary{Revenue: row.Revenue, OrderCount: row.OrderCount}
	summary.ComputeAverage()
	return summary, nil
}

// RevenueSeries returns revenue per day or month, with empty buckets filled
func (r *GormReportRepository) RevenueSeries(ctx context.Context, from, to time.Time, g report.Granularity) ([]report.RevenuePoint, error) {
	var rows []struct {
		Period     string
		Revenue    decimal.Decimal
		OrderCount int64
	}
	bucket := r.periodExpr("o.created_at", g)
	if err := r.revenueOrders(ctx, from, to).
		Select(fmt.Sprintf("%s AS period, COALESCE(SUM(o.total), 0) AS revenue, COUNT(o.id) AS order_count", bucket)).
		Group("period").
		Order("period").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	points := make([]report.RevenuePoint, 0, len(rows))
	for _, row := range rows {
		period, err := time.ParseInLocation(periodLayout, row.Period, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("unexpected period %q: %w", row.Period, err)
		}
		points = append(points, report.RevenuePoint{Period: period, Revenue: row.Revenue, OrderCount: row.OrderCount})
	}
	return report.FillSeries(points, from, to, g), nil
}

// periodExpr renders the bucket start of column as YYYY-MM-DD text. The
// production database is PostgreSQL; sqlite backs tests and local runs.
func (r *GormReportRepository) periodExpr(column string, g report.Granularity) string {
	if r.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("to_char(date_trunc('%s', %s AT TIME ZONE 'UTC'), 'YYYY-MM-DD')", g, column)
	}
	if g == report.GranularityMonth {
		return fmt.Sprintf("strftime('%%Y-%%m-01', %s)", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
}

// OrdersByStatus counts every order in range per status, cancelled included
func (r *GormReportRepository) OrdersByStatus(ctx context.Context, from, to time.Time) ([]report.StatusCount, error) {
	var counts []report.StatusCount
	if err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("status").
		Order("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// TopProducts ranks products by revenue in range, then by units sold
func (r *GormReportRepository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]report.TopProduct, error) {
	if limit <= 0 {
		limit = report.TopProductsLimit
	}
	var top []report.TopProduct
	if err := r.revenueOrders(ctx, from, to).
		Select("oi.product_id, MAX(oi.product_name) AS product_name, SUM(oi.quantity) AS quantity, COALESCE(SUM(oi.line_total), 0) AS revenue").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Group("oi.product_id").
		Order("revenue DESC").Order("quantity DESC").
		Limit(limit).
		Scan(&top).Error; err != nil {
		return nil, err
	}
	return top, nil
}

// NewCustomers counts sign-ups in range
func (r *GormReportRepository) NewCustomers(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Table("users").
		Where("role = ? AND created_at >= ? AND created_at < ?", identity.RoleCustomer, from, to).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LowStockCount counts variants of active products at or under threshold
func (r *GormReportRepository) LowStockCount(ctx context.Context, threshold int) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Table("product_variants v").
		Joins("JOIN products p ON p.id = v.product_id").
		Where("p.status = ? AND v.stock <= ?", catalog.ProductStatusActive, threshold).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

var _ report.Repository = (*GormReportRepository)(nil)
