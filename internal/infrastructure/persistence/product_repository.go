package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver // optional, for transactional outbox pattern
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormProductRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

func preloadVariants(db *gorm.DB) *gorm.DB {
	return db.Order("product_variants.created_at").Order("product_variants.sku")
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var product catalog.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", preloadVariants).
		First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	product.MarkPersisted()
	return &product, nil
}

// FindBySlug finds a product by its slug
func (r *GormProductRepository) FindBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	var product catalog.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", preloadVariants).
		Where("slug = ?", strings.ToLower(slug)).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	product.MarkPersisted()
	return &product, nil
}

// FindByIDs finds several products. Missing IDs are skipped.
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return []catalog.Product{}, nil
	}
	var products []catalog.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", preloadVariants).
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// List returns a page of products with their variants
func (r *GormProductRepository) List(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&catalog.Product{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []catalog.Product
	query = applySort(query, filter.Filter, ProductSortFields, "created_at")
	if err := paginate(query, filter.Filter).
		Preload("Variants", preloadVariants).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Save upserts the product row and its variant attributes, deletes variants no
// longer on the product and writes pending events to the outbox. Variant stock
// and version belong to the stock ledger and are only written on insert.
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	events := product.GetDomainEvents()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(product).Error; err != nil {
			return translateUnique(err, "SLUG_EXISTS", "A product with this slug already exists")
		}

		keep := make([]uuid.UUID, 0, len(product.Variants))
		for _, v := range product.Variants {
			keep = append(keep, v.ID)
		}
		removed := tx.Where("product_id = ?", product.ID)
		if len(keep) > 0 {
			removed = removed.Where("id NOT IN ?", keep)
		}
		if err := removed.Delete(&catalog.Variant{}).Error; err != nil {
			return err
		}

		for i := range product.Variants {
			product.Variants[i].ProductID = product.ID
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"sku", "size", "color", "price", "updated_at"}),
			}).Create(&product.Variants[i]).Error
			if err != nil {
				return translateUnique(err, "SKU_EXISTS", fmt.Sprintf("SKU %s already exists", product.Variants[i].SKU))
			}
		}

		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	product.ClearDomainEvents()
	product.MarkPersisted()
	return nil
}

// Delete removes a product and its variants and records ProductDeleted
func (r *GormProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product catalog.Product
		if err := tx.Select("id", "slug").First(&product, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&catalog.Variant{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&catalog.Product{}, "id = ?", id).Error; err != nil {
			return err
		}
		if r.outboxSaver != nil {
			if err := r.outboxSaver.SaveEvents(ctx, tx, catalog.NewProductDeletedEvent(&product)); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
}

// ExistsBySlug checks slug uniqueness
func (r *GormProductRepository) ExistsBySlug(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&catalog.Product{}).Where("slug = ?", strings.ToLower(slug))
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsBySKU checks SKU uniqueness across all products
func (r *GormProductRepository) ExistsBySKU(ctx context.Context, sku string, excludeVariantID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&catalog.Variant{}).Where("sku = ?", strings.ToUpper(strings.TrimSpace(sku)))
	if excludeVariantID != nil {
		query = query.Where("id <> ?", *excludeVariantID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormProductRepository) applyFilter(query *gorm.DB, filter catalog.ProductFilter) *gorm.DB {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(products.name) LIKE ? OR LOWER(products.brand) LIKE ? OR EXISTS (SELECT 1 FROM product_variants sv WHERE sv.product_id = products.id AND LOWER(sv.sku) LIKE ?)",
			pattern, pattern, pattern,
		)
	}
	if filter.Category != "" {
		query = query.Where("products.category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("products.status = ?", filter.Status)
	}
	if filter.MinPrice != nil {
		query = query.Where("products.base_price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("products.base_price <= ?", *filter.MaxPrice)
	}
	if filter.InStockOnly {
		query = query.Where("EXISTS (SELECT 1 FROM product_variants iv WHERE iv.product_id = products.id AND iv.stock > 0)")
	}
	return query
}

// translateUnique maps a unique violation to a domain error with the given code
func translateUnique(err error, code, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(code, message)
	}
	return err
}

var _ catalog.ProductRepository = (*GormProductRepository)(nil)
