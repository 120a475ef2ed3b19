package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// StockMode selects how updateVariantStock interprets its quantity
type StockMode string

const (
	ModeSet       StockMode = "set"
	ModeIncrement StockMode = "increment"
	ModeDecrement StockMode = "decrement"
)

// IsValid reports whether m is a known mode
func (m StockMode) IsValid() bool {
	return m == ModeSet || m == ModeIncrement || m == ModeDecrement
}

// ComputeDelta turns a mode and quantity into a signed delta against current.
// A set to the current value yields a zero delta.
func ComputeDelta(mode StockMode, current, quantity int) (int, error) {
	if quantity < 0 {
		return 0, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	switch mode {
	case ModeSet:
		return quantity - current, nil
	case ModeIncrement:
		return quantity, nil
	case ModeDecrement:
		return -quantity, nil
	default:
		return 0, shared.NewDomainError("INVALID_MODE", "Stock mode must be set, increment or decrement")
	}
}

// VariantStock is the stock-bearing projection of a catalog variant
type VariantStock struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	SKU       string
	Stock     int
	Version   int
}

// LowStockItem is a variant at or under the low stock threshold
type LowStockItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	VariantID   uuid.UUID `json:"variant_id"`
	SKU         string    `json:"sku"`
	Stock       int       `json:"stock"`
}

// Plan is the outcome of planning a ledger request against current stock:
// the rows to append and the new versions to compare-and-swap.
type Plan struct {
	Movements []StockMovement
	Updates   []StockUpdate
}

// StockUpdate is a compare-and-swap on one variant row
type StockUpdate struct {
	VariantID       uuid.UUID
	ExpectedVersion int
	NewStock        int
}

// PlanMovements applies merged lines to current stock. Every line must refer
// to a loaded variant and no balance may go negative; otherwise nothing is planned.
func PlanMovements(key, hash string, reason MovementReason, reference string, lines []StockLine, current map[uuid.UUID]VariantStock, now time.Time) (*Plan, error) {
	plan := &Plan{
		Movements: make([]StockMovement, 0, len(lines)),
		Updates:   make([]StockUpdate, 0, len(lines)),
	}
	for _, l := range lines {
		vs, ok := current[l.VariantID]
		if !ok || (l.ProductID != uuid.Nil && vs.ProductID != l.ProductID) {
			return nil, shared.NewDomainError("VARIANT_NOT_FOUND", "Variant "+l.VariantID.String()+" not found")
		}
		next, err := ApplyDelta(vs.Stock, l.Delta)
		if err != nil {
			return nil, shared.NewDomainError(shared.ErrInsufficientStock.Code, "Insufficient stock for SKU "+vs.SKU)
		}
		plan.Updates = append(plan.Updates, StockUpdate{
			VariantID:       vs.VariantID,
			ExpectedVersion: vs.Version,
			NewStock:        next,
		})
		plan.Movements = append(plan.Movements, StockMovement{
			ID:             uuid.New(),
			IdempotencyKey: key,
			RequestHash:    hash,
			ProductID:      vs.ProductID,
			VariantID:      vs.VariantID,
			SKU:            vs.SKU,
			Delta:          l.Delta,
			Reason:         reason,
			Reference:      reference,
			BalanceAfter:   next,
			CreatedAt:      now,
		})
	}
	return plan, nil
}
