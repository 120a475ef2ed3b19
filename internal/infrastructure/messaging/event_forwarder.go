package messaging

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/shopfront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Header keys set on forwarded events
const (
	HeaderEventID       = "Shop-Event-Id"
	HeaderEventType     = "Shop-Event-Type"
	HeaderAggregateType = "Shop-Aggregate-Type"
	HeaderAggregateID   = "Shop-Aggregate-Id"
)

// Publisher is the subset of *nats.Conn the forwarder needs
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// EventSerializer turns an event into its wire payload
type EventSerializer interface {
	Serialize(event shared.DomainEvent) ([]byte, error)
}

// EventForwarder is a catch-all event handler that republishes every
// domain event on <prefix>.events.<EventType>. It is subscribed behind the
// outbox, so a failed publish surfaces as an outbox retry.
type EventForwarder struct {
	pub        Publisher
	serializer EventSerializer
	prefix     string
	logger     *zap.Logger
}

// NewEventForwarder creates an EventForwarder
func NewEventForwarder(pub Publisher, serializer EventSerializer, prefix string, logger *zap.Logger) *EventForwarder {
	return &EventForwarder{
		pub:        pub,
		serializer: serializer,
		prefix:     prefix,
		logger:     logger,
	}
}

// EventTypes returns nil so the forwarder receives every event
func (f *EventForwarder) EventTypes() []string {
	return nil
}

// Handle publishes the event
func (f *EventForwarder) Handle(_ context.Context, event shared.DomainEvent) error {
	data, err := f.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", event.EventType(), err)
	}

	msg := nats.NewMsg(f.SubjectFor(event.EventType()))
	msg.Data = data
	msg.Header.Set(HeaderEventID, event.EventID().String())
	msg.Header.Set(HeaderEventType, event.EventType())
	msg.Header.Set(HeaderAggregateType, event.AggregateType())
	msg.Header.Set(HeaderAggregateID, event.AggregateID().String())
	// lets JetStream drop redelivered duplicates when a stream covers the subject
	msg.Header.Set(nats.MsgIdHdr, event.EventID().String())

	if err := f.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	f.logger.Debug("Event forwarded",
		zap.String("subject", msg.Subject),
		zap.String("event_id", event.EventID().String()))
	return nil
}

// SubjectFor returns the subject events of eventType are published on
func (f *EventForwarder) SubjectFor(eventType string) string {
	return Subject(f.prefix, "events", eventType)
}

var _ shared.EventHandler = (*EventForwarder)(nil)
