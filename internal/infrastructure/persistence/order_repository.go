package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormOrderRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("order_items.sku")
}

// FindByID loads an order with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	o.MarkPersisted()
	return &o, nil
}

// FindByIdempotencyKey finds the order a user placed under a request key
func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	o.MarkPersisted()
	return &o, nil
}

// List returns a page of orders, newest first by default
func (r *GormOrderRepository) List(ctx context.Context, filter order.Filter) ([]order.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&order.Order{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("order_number LIKE ?", "%"+strings.ToUpper(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []order.Order
	query = applySort(query, filter.Filter, OrderSortFields, "created_at")
	if err := paginate(query, filter.Filter).
		Preload("Items", orderItems).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Create inserts the order, its items and pending events in one transaction.
// A duplicate order number or idempotency key returns ErrAlreadyExists.
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	events := o.GetDomainEvents()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	o.ClearDomainEvents()
	o.MarkPersisted()
	return nil
}

// SaveWithLock updates the order's mutable columns if the stored version is
// still the one it was loaded with. Items are immutable after creation.
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, o *order.Order) error {
	if o.Version == o.LoadedVersion() {
		o.IncrementVersion()
	}
	events := o.GetDomainEvents()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&order.Order{}).
			Where("id = ? AND version = ?", o.ID, o.LoadedVersion()).
			Updates(map[string]any{
				"status":         o.Status,
				"payment_status": o.PaymentStatus,
				"notes":          o.Notes,
				"stock_reserved": o.StockReserved,
				"stock_released": o.StockReleased,
				"cancel_reason":  o.CancelReason,
				"cancelled_by":   o.CancelledBy,
				"paid_at":        o.PaidAt,
				"shipped_at":     o.ShippedAt,
				"delivered_at":   o.DeliveredAt,
				"cancelled_at":   o.CancelledAt,
				"updated_at":     time.Now(),
				"version":        o.Version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&order.Order{}).Where("id = ?", o.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return shared.ErrConcurrencyConflict
		}
		return r.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	o.ClearDomainEvents()
	o.MarkPersisted()
	return nil
}

// Exists checks whether an order was persisted
func (r *GormOrderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&order.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsByProduct checks whether any order line references the product
func (r *GormOrderRepository) ExistsByProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&order.Item{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GenerateOrderNumber generates the next order number of the current year.
// Format: ORD-YYYY-NNNNN (e.g., ORD-2026-00001)
func (r *GormOrderRepository) GenerateOrderNumber(ctx context.Context) (string, error) {
	year := time.Now().UTC().Year()
	prefix := order.OrderNumberPrefix(year)

	var last order.Order
	err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Select("order_number").
		Where("order_number LIKE ?", prefix+"%").
		Order("order_number DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var next int64 = 1
	if err == nil {
		var num int64
		if _, scanErr := fmt.Sscanf(strings.TrimPrefix(last.OrderNumber, prefix), "%d", &num); scanErr == nil {
			next = num + 1
		}
	}

	for i := 0; i < 100; i++ {
		candidate := order.FormatOrderNumber(year, next)
		var count int64
		if err := r.db.WithContext(ctx).Model(&order.Order{}).
			Where("order_number = ?", candidate).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		next++
	}
	return "", fmt.Errorf("unable to generate unique order number after 100 attempts")
}

func (r *GormOrderRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if r.outboxSaver == nil || len(events) == 0 {
		return nil
	}
	if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

var _ order.Repository = (*GormOrderRepository)(nil)
