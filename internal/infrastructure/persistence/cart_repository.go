package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/cart"
	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormCartRepository implements cart.Repository using GORM
type GormCartRepository struct {
	db *gorm.DB
}

// NewGormCartRepository creates a new GormCartRepository
func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// FindByUser loads the user's cart with its lines in the order they were added
func (r *GormCartRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_items.added_at").Order("cart_items.id")
		}).
		Where("user_id = ?", userID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.MarkPersisted()
	return &c, nil
}

// Save inserts a new cart or replaces a stored one's lines under an optimistic
// version check. Two first writes for the same user race on the user_id
// unique index; the loser gets ErrConcurrencyConflict.
func (r *GormCartRepository) Save(ctx context.Context, c *cart.Cart) error {
	if c.LoadedVersion() == 0 {
		return r.create(ctx, c)
	}

	if c.Version == c.LoadedVersion() {
		c.IncrementVersion()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&cart.Cart{}).
			Where("id = ? AND version = ?", c.ID, c.LoadedVersion()).
			Updates(map[string]any{
				"version":    c.Version,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if err := tx.Where("cart_id = ?", c.ID).Delete(&cart.Item{}).Error; err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return nil
		}
		for i := range c.Items {
			c.Items[i].CartID = c.ID
		}
		return tx.Create(&c.Items).Error
	})
	if err != nil {
		return err
	}
	c.MarkPersisted()
	return nil
}

func (r *GormCartRepository) create(ctx context.Context, c *cart.Cart) error {
	for i := range c.Items {
		c.Items[i].CartID = c.ID
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	c.MarkPersisted()
	return nil
}

var _ cart.Repository = (*GormCartRepository)(nil)
