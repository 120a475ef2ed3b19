package order

import (
	"context"

	"github.com/google/uuid"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
)

// StockGateway reserves and releases stock for orders. Both calls are
// idempotent per order: repeating them has no further effect.
type StockGateway interface {
	Reserve(ctx context.Context, orderID uuid.UUID, lines []inventoryapp.ReservationLine) error
	Release(ctx context.Context, orderID uuid.UUID) error
}

// StockLedger is the part of the inventory service the local gateway needs
type StockLedger interface {
	ReserveForOrder(ctx context.Context, orderID uuid.UUID, lines []inventoryapp.ReservationLine) (*inventoryapp.StockResult, error)
	ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (*inventoryapp.StockResult, error)
}

// LocalStockGateway calls the inventory service in process
type LocalStockGateway struct {
	ledger StockLedger
}

// NewLocalStockGateway creates a new LocalStockGateway
func NewLocalStockGateway(ledger StockLedger) *LocalStockGateway {
	return &LocalStockGateway{ledger: ledger}
}

// Reserve reserves stock for an order
func (g *LocalStockGateway) Reserve(ctx context.Context, orderID uuid.UUID, lines []inventoryapp.ReservationLine) error {
	_, err := g.ledger.ReserveForOrder(ctx, orderID, lines)
	return err
}

// Release returns an order's reserved stock
func (g *LocalStockGateway) Release(ctx context.Context, orderID uuid.UUID) error {
	_, err := g.ledger.ReleaseForOrder(ctx, orderID)
	return err
}
