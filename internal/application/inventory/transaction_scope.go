package inventory

import (
	"context"
	"sync"

	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to the stock ledger.
// Everything done through the repositories handed to fn commits or rolls
// back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction. An error from fn rolls back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are the repositories bound to one transaction.
//
// Movements is append-only. Stock only reads and compare-and-swaps the
// variant rows; it never inserts or deletes them, that belongs to the catalog.
type TransactionalRepositories interface {
	Movements() inventory.MovementRepository
	Stock() inventory.StockRepository
	// SaveEvents writes events to the outbox in the same transaction
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// NoOpTransactionScope runs fn without a transaction and keeps saved events
// in memory. Tests use it with mocked repositories.
type NoOpTransactionScope struct {
	movements inventory.MovementRepository
	stock     inventory.StockRepository

	mu     sync.Mutex
	events []shared.DomainEvent
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(movements inventory.MovementRepository, stock inventory.StockRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{movements: movements, stock: stock}
}

// Execute runs fn directly
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) Movements() inventory.MovementRepository { return s.movements }
func (s *NoOpTransactionScope) Stock() inventory.StockRepository        { return s.stock }

// SaveEvents records events
func (s *NoOpTransactionScope) SaveEvents(_ context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns the events saved so far
func (s *NoOpTransactionScope) Events() []shared.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]shared.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
