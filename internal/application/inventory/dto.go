package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/inventory"
)

// UpdateVariantStockRequest sets, increments or decrements one variant's stock
type UpdateVariantStockRequest struct {
	Mode           string `json:"mode" binding:"required,oneof=set increment decrement"`
	Quantity       int    `json:"quantity" binding:"min=0,max=1000000"`
	Reason         string `json:"reason" binding:"required,oneof=INITIAL RESTOCK ADJUSTMENT"`
	Reference      string `json:"reference" binding:"max=100"`
	IdempotencyKey string `json:"-"`
}

// StockLineRequest is one line of a batch update
type StockLineRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Delta     int       `json:"delta" binding:"required,ne=0"`
}

// BatchStockRequest applies several deltas atomically
type BatchStockRequest struct {
	Items          []StockLineRequest `json:"items" binding:"required,min=1,max=200,dive"`
	Reason         string             `json:"reason" binding:"required,oneof=INITIAL RESTOCK ADJUSTMENT"`
	Reference      string             `json:"reference" binding:"max=100"`
	IdempotencyKey string             `json:"-"`
}

// ReservationLine is one variant quantity an order needs
type ReservationLine struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// ReservationRequest reserves stock for an order
type ReservationRequest struct {
	OrderID uuid.UUID         `json:"order_id" binding:"required"`
	Lines   []ReservationLine `json:"lines" binding:"required,min=1,dive"`
}

// MovementResponse is a ledger row in API responses
type MovementResponse struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	ProductID      uuid.UUID `json:"product_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	SKU            string    `json:"sku"`
	Delta          int       `json:"delta"`
	Reason         string    `json:"reason"`
	Reference      string    `json:"reference,omitempty"`
	BalanceAfter   int       `json:"balance_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// StockResult is the outcome of a ledger request. Replayed is true when the
// idempotency key had already been applied and nothing changed.
type StockResult struct {
	IdempotencyKey string             `json:"idempotency_key"`
	Replayed       bool               `json:"replayed"`
	Movements      []MovementResponse `json:"movements"`
}

// MovementListFilter narrows ledger listings
type MovementListFilter struct {
	ProductID *uuid.UUID `form:"product_id"`
	VariantID *uuid.UUID `form:"variant_id"`
	Reference string     `form:"reference"`
	Reason    string     `form:"reason" binding:"omitempty,oneof=INITIAL RESTOCK ADJUSTMENT ORDER_RESERVED ORDER_RELEASED"`
	Page      int        `form:"page" binding:"omitempty,min=1"`
	PageSize  int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ToMovementResponse converts a ledger row
func ToMovementResponse(m inventory.StockMovement) MovementResponse {
	return MovementResponse{
		ID:             m.ID,
		IdempotencyKey: m.IdempotencyKey,
		ProductID:      m.ProductID,
		VariantID:      m.VariantID,
		SKU:            m.SKU,
		Delta:          m.Delta,
		Reason:         string(m.Reason),
		Reference:      m.Reference,
		BalanceAfter:   m.BalanceAfter,
		CreatedAt:      m.CreatedAt,
	}
}

// ToMovementResponses converts ledger rows
func ToMovementResponses(movements []inventory.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = ToMovementResponse(m)
	}
	return out
}
