package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormMovementRepository implements inventory.MovementRepository using GORM
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// FindByKey returns every movement written under key, ordered by variant
func (r *GormMovementRepository) FindByKey(ctx context.Context, key string) ([]inventory.StockMovement, error) {
	var movements []inventory.StockMovement
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("variant_id").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// FindRequest returns the request recorded under key
func (r *GormMovementRepository) FindRequest(ctx context.Context, key string) (*inventory.StockRequest, error) {
	var req inventory.StockRequest
	if err := r.db.WithContext(ctx).First(&req, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// RecordRequest inserts the request row. The primary key on the idempotency
// key lets exactly one of two concurrent writers claim it.
func (r *GormMovementRepository) RecordRequest(ctx context.Context, req inventory.StockRequest) error {
	if err := r.db.WithContext(ctx).Create(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// Append inserts ledger rows. The (idempotency_key, variant_id) unique index
// turns a concurrent writer of the same key into ErrConcurrencyConflict.
func (r *GormMovementRepository) Append(ctx context.Context, movements []inventory.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&movements).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// List returns a page of movements, newest first
func (r *GormMovementRepository) List(ctx context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.StockMovement{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.VariantID != nil {
		query = query.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.Reference != "" {
		query = query.Where("reference = ?", filter.Reference)
	}
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movements []inventory.StockMovement
	if err := paginate(query, filter.Filter).
		Order("created_at DESC").Order("id").
		Find(&movements).Error; err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// FindUnreleasedReservations returns order references that reserved stock
// in process before olderThan, were never released and have no order row.
// Reservations made for another service's orders are skipped since their
// order rows live elsewhere, and persisted orders are skipped so they cannot
// fill every batch.
func (r *GormMovementRepository) FindUnreleasedReservations(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var refs []string
	err := r.db.WithContext(ctx).
		Model(&inventory.StockMovement{}).
		Distinct("reference").
		Where("reason = ? AND created_at < ?", inventory.ReasonOrderReserved, olderThan).
		Where("EXISTS (SELECT 1 FROM stock_requests req WHERE req.idempotency_key = stock_movements.idempotency_key AND req.origin = ?)",
			inventory.OriginLocal).
		Where("NOT EXISTS (SELECT 1 FROM stock_movements rel WHERE rel.reference = stock_movements.reference AND rel.reason = ?)",
			inventory.ReasonOrderReleased).
		Where("NOT EXISTS (SELECT 1 FROM orders o WHERE CAST(o.id AS TEXT) = stock_movements.reference)").
		Order("reference").
		Limit(limit).
		Pluck("reference", &refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// GormStockRepository implements inventory.StockRepository on the variant table
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// FindVariants loads the stock projection of the given variants
func (r *GormStockRepository) FindVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]inventory.VariantStock, error) {
	result := make(map[uuid.UUID]inventory.VariantStock, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}

	var rows []catalog.Variant
	if err := r.db.WithContext(ctx).
		Select("id", "product_id", "sku", "stock", "version").
		Where("id IN ?", variantIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, v := range rows {
		result[v.ID] = inventory.VariantStock{
			ProductID: v.ProductID,
			VariantID: v.ID,
			SKU:       v.SKU,
			Stock:     v.Stock,
			Version:   v.Version,
		}
	}
	return result, nil
}

// CompareAndSwap writes the new stock only if nobody bumped the version since it was read
func (r *GormStockRepository) CompareAndSwap(ctx context.Context, update inventory.StockUpdate) error {
	result := r.db.WithContext(ctx).
		Model(&catalog.Variant{}).
		Where("id = ? AND version = ?", update.VariantID, update.ExpectedVersion).
		Updates(map[string]any{
			"stock":      update.NewStock,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// LowStock lists variants of active products at or under threshold, lowest first
func (r *GormStockRepository) LowStock(ctx context.Context, threshold int, limit int) ([]inventory.LowStockItem, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []inventory.LowStockItem
	err := r.db.WithContext(ctx).
		Table("product_variants AS v").
		Select("v.product_id, p.name AS product_name, v.id AS variant_id, v.sku, v.stock").
		Joins("JOIN products p ON p.id = v.product_id").
		Where("p.status = ? AND v.stock <= ?", catalog.ProductStatusActive, threshold).
		Order("v.stock ASC").Order("v.sku ASC").
		Limit(limit).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

var (
	_ inventory.MovementRepository = (*GormMovementRepository)(nil)
	_ inventory.StockRepository    = (*GormStockRepository)(nil)
)
