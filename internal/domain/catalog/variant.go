package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Variant is a purchasable size/color combination of a product.
// Version is the compare-and-swap counter for Stock.
type Variant struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID        `gorm:"type:uuid;not null;index"`
	SKU       string           `gorm:"type:varchar(64);not null;uniqueIndex"`
	Size      string           `gorm:"type:varchar(50)"`
	Color     string           `gorm:"type:varchar(50)"`
	Price     *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Stock     int              `gorm:"not null;default:0"`
	Version   int              `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (Variant) TableName() string {
	return "product_variants"
}

// Label renders the variant for order lines, e.g. "M / Red"
func (v *Variant) Label() string {
	parts := make([]string, 0, 2)
	if v.Size != "" {
		parts = append(parts, v.Size)
	}
	if v.Color != "" {
		parts = append(parts, v.Color)
	}
	if len(parts) == 0 {
		return v.SKU
	}
	return strings.Join(parts, " / ")
}

// InStock reports whether at least qty units are available
func (v *Variant) InStock(qty int) bool {
	return v.Stock >= qty
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func validateSKU(sku string) error {
	if sku == "" {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if len(sku) > 64 {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 64 characters")
	}
	for _, r := range sku {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewDomainError("INVALID_SKU", "SKU can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}
