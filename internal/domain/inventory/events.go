package inventory

import (
	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeStock = "Stock"

// Event type constants
const (
	EventTypeStockAdjusted   = "StockAdjusted"
	EventTypeVariantStockLow = "VariantStockLow"
)

// AdjustedLine is one variant's change inside a StockAdjusted event
type AdjustedLine struct {
	ProductID    uuid.UUID `json:"product_id"`
	VariantID    uuid.UUID `json:"variant_id"`
	SKU          string    `json:"sku"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balance_after"`
}

// StockAdjustedEvent is published once per applied ledger request
type StockAdjustedEvent struct {
	shared.BaseDomainEvent
	IdempotencyKey string         `json:"idempotency_key"`
	Reason         MovementReason `json:"reason"`
	Reference      string         `json:"reference,omitempty"`
	Lines          []AdjustedLine `json:"lines"`
}

// NewStockAdjustedEvent builds the event from the appended movements.
// The aggregate id is the first movement's product.
func NewStockAdjustedEvent(movements []StockMovement) *StockAdjustedEvent {
	var aggID uuid.UUID
	evt := &StockAdjustedEvent{Lines: make([]AdjustedLine, 0, len(movements))}
	for i, m := range movements {
		if i == 0 {
			aggID = m.ProductID
			evt.IdempotencyKey = m.IdempotencyKey
			evt.Reason = m.Reason
			evt.Reference = m.Reference
		}
		evt.Lines = append(evt.Lines, AdjustedLine{
			ProductID:    m.ProductID,
			VariantID:    m.VariantID,
			SKU:          m.SKU,
			Delta:        m.Delta,
			BalanceAfter: m.BalanceAfter,
		})
	}
	evt.BaseDomainEvent = shared.NewBaseDomainEvent(EventTypeStockAdjusted, AggregateTypeStock, aggID)
	return evt
}

// VariantStockLowEvent is published when a variant drops to or below the threshold
type VariantStockLowEvent struct {
	shared.BaseDomainEvent
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
}

// NewVariantStockLowEvent creates a new VariantStockLowEvent
func NewVariantStockLowEvent(m StockMovement, threshold int) *VariantStockLowEvent {
	return &VariantStockLowEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVariantStockLow, AggregateTypeStock, m.ProductID),
		ProductID:       m.ProductID,
		VariantID:       m.VariantID,
		SKU:             m.SKU,
		Stock:           m.BalanceAfter,
		Threshold:       threshold,
	}
}

// CrossedLowThreshold reports whether a movement took the balance from above
// the threshold to at or below it
func CrossedLowThreshold(m StockMovement, threshold int) bool {
	if threshold <= 0 || m.Delta >= 0 {
		return false
	}
	before := m.BalanceAfter - m.Delta
	return before > threshold && m.BalanceAfter <= threshold
}
