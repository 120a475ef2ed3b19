package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// Filter narrows order listings
type Filter struct {
	shared.Filter
	UserID *uuid.UUID
	Status Status
	From   *time.Time
	To     *time.Time
}

// Repository defines the interface for order persistence
type Repository interface {
	// FindByID loads an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIdempotencyKey finds the order a user placed with the given request key
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*Order, error)

	// List returns a page of orders and the total match count
	List(ctx context.Context, filter Filter) ([]Order, int64, error)

	// Create inserts a new order with its items and pending domain events in one transaction
	Create(ctx context.Context, order *Order) error

	// SaveWithLock updates an order if its stored version is still order.LoadedVersion(),
	// writing pending domain events in the same transaction
	SaveWithLock(ctx context.Context, order *Order) error

	// Exists checks whether an order was persisted
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// ExistsByProduct checks whether any order references the product
	ExistsByProduct(ctx context.Context, productID uuid.UUID) (bool, error)

	// GenerateOrderNumber returns the next number for the current year
	GenerateOrderNumber(ctx context.Context) (string, error)
}

// FormatOrderNumber renders ORD-YYYY-NNNNN
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%05d", year, seq)
}

// OrderNumberPrefix returns the prefix shared by every order number of a year
func OrderNumberPrefix(year int) string {
	return fmt.Sprintf("ORD-%d-", year)
}
