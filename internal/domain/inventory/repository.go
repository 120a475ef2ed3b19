package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// MovementFilter narrows ledger listings
type MovementFilter struct {
	shared.Filter
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	Reference string
	Reason    MovementReason
}

// MovementRepository is the append-only stock ledger
type MovementRepository interface {
	// FindByKey returns every movement written under an idempotency key
	FindByKey(ctx context.Context, key string) ([]StockMovement, error)

	// FindRequest returns the request recorded under key, or ErrNotFound
	FindRequest(ctx context.Context, key string) (*StockRequest, error)

	// RecordRequest claims an idempotency key. A key that is already
	// recorded returns ErrConcurrencyConflict.
	RecordRequest(ctx context.Context, req StockRequest) error

	// Append inserts movements. A duplicate (key, variant) pair returns ErrConcurrencyConflict.
	Append(ctx context.Context, movements []StockMovement) error

	// List returns a page of movements, newest first
	List(ctx context.Context, filter MovementFilter) ([]StockMovement, int64, error)

	// FindUnreleasedReservations returns references of locally requested
	// ORDER_RESERVED movements created before olderThan that have no matching
	// ORDER_RELEASED movement
	FindUnreleasedReservations(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// StockRepository reads and compare-and-swaps variant stock
type StockRepository interface {
	// FindVariants loads stock for the given variants
	FindVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]VariantStock, error)

	// CompareAndSwap writes NewStock and bumps the version when the stored
	// version still equals ExpectedVersion; otherwise ErrConcurrencyConflict
	CompareAndSwap(ctx context.Context, update StockUpdate) error

	// LowStock lists variants of active products at or under threshold
	LowStock(ctx context.Context, threshold int, limit int) ([]LowStockItem, error)
}
