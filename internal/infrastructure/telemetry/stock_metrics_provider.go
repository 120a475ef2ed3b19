package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormStockMetricsProvider implements StockMetricsProvider over the
// product_variants and products tables.
type GormStockMetricsProvider struct {
	db *gorm.DB
}

// NewGormStockMetricsProvider creates a GormStockMetricsProvider
func NewGormStockMetricsProvider(db *gorm.DB) *GormStockMetricsProvider {
	return &GormStockMetricsProvider{db: db}
}

func (p *GormStockMetricsProvider) activeVariants(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx).
		Table("product_variants AS v").
		Joins("JOIN products p ON p.id = v.product_id").
		Where("p.status = ?", "ACTIVE")
}

// LowStockVariantCount counts variants of active products with stock <= threshold
func (p *GormStockMetricsProvider) LowStockVariantCount(ctx context.Context, threshold int) (int64, error) {
	var count int64
	err := p.activeVariants(ctx).Where("v.stock <= ?", threshold).Count(&count).Error
	return count, err
}

// UnitsOnHand sums the stock of active products
func (p *GormStockMetricsProvider) UnitsOnHand(ctx context.Context) (int64, error) {
	var total int64
	err := p.activeVariants(ctx).Select("COALESCE(SUM(v.stock), 0)").Scan(&total).Error
	return total, err
}
