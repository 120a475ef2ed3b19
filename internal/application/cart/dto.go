package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddItemRequest adds a variant to the cart
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1,max=99"`
}

// UpdateItemRequest replaces a line's quantity; 0 removes it
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0,max=99"`
}

// CartItemResponse is a cart line priced at the current catalog price
type CartItemResponse struct {
	ProductID    uuid.UUID       `json:"product_id"`
	VariantID    uuid.UUID       `json:"variant_id"`
	ProductName  string          `json:"product_name"`
	ProductSlug  string          `json:"product_slug"`
	SKU          string          `json:"sku"`
	VariantLabel string          `json:"variant_label"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Stock        int             `json:"stock"`
	// Available is false when the product was deactivated, the variant
	// removed, or stock dropped below the requested quantity
	Available bool      `json:"available"`
	AddedAt   time.Time `json:"added_at"`
}

// CartResponse is the priced cart
type CartResponse struct {
	Items         []CartItemResponse `json:"items"`
	ItemCount     int                `json:"item_count"`
	TotalQuantity int                `json:"total_quantity"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Currency      string             `json:"currency"`
	// Orderable is true when every line is available
	Orderable bool      `json:"orderable"`
	UpdatedAt time.Time `json:"updated_at"`
}
