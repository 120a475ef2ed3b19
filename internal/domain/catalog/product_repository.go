package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductFilter narrows product listings
type ProductFilter struct {
	shared.Filter
	Category    string
	Status      ProductStatus
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
}

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByID loads a product with its variants
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindBySlug loads a product with its variants by slug
	FindBySlug(ctx context.Context, slug string) (*Product, error)

	// FindByIDs loads several products with their variants
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// List returns a page of products and the total match count
	List(ctx context.Context, filter ProductFilter) ([]Product, int64, error)

	// Save creates or updates a product and its variant attributes.
	// Variant stock and stock version are never written by Save.
	Save(ctx context.Context, product *Product) error

	// Delete removes a product and its variants
	Delete(ctx context.Context, id uuid.UUID) error

	// ExistsBySlug checks slug uniqueness, ignoring excludeID when non-nil
	ExistsBySlug(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)

	// ExistsBySKU checks SKU uniqueness across all products, ignoring excludeVariantID when non-nil
	ExistsBySKU(ctx context.Context, sku string, excludeVariantID *uuid.UUID) (bool, error)
}
