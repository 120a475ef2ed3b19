package event

import (
	"context"
	"fmt"

	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher stages domain events in the outbox inside the transaction
// that changed their aggregate. Repositories call it through
// shared.OutboxEventSaver.
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a publisher giving each entry maxRetries
// delivery attempts. A non-positive value uses shared.DefaultMaxRetries.
func NewOutboxPublisher(serializer *EventSerializer, maxRetries int) *OutboxPublisher {
	if maxRetries <= 0 {
		maxRetries = shared.DefaultMaxRetries
	}
	return &OutboxPublisher{
		serializer: serializer,
		maxRetries: maxRetries,
	}
}

// SaveEvents writes events to the outbox through tx, the caller's *gorm.DB
// transaction. An event that cannot be encoded fails the whole call so the
// aggregate change rolls back with it.
func (p *OutboxPublisher) SaveEvents(ctx context.Context, tx any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	db, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox needs a *gorm.DB transaction, got %T", tx)
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("stage %s %s: %w", event.AggregateType(), event.AggregateID(), err)
		}
		entry := shared.NewOutboxEntry(event, payload)
		entry.MaxRetries = p.maxRetries
		entries = append(entries, entry)
	}
	return NewGormOutboxRepository(db).Save(ctx, entries...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
