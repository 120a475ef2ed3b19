package support

import (
	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

const AggregateTypeConversation = "Conversation"

const (
	EventTypeConversationStarted = "ConversationStarted"
	EventTypeMessagePosted       = "MessagePosted"
	EventTypeConversationClosed  = "ConversationClosed"
)

// ConversationStartedEvent is published when a customer opens a new thread
type ConversationStartedEvent struct {
	shared.BaseDomainEvent
	ConversationID uuid.UUID `json:"conversation_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	Subject        string    `json:"subject"`
}

func NewConversationStartedEvent(c *Conversation) *ConversationStartedEvent {
	return &ConversationStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConversationStarted, AggregateTypeConversation, c.ID),
		ConversationID:  c.ID,
		CustomerID:      c.CustomerID,
		Subject:         c.Subject,
	}
}

// MessagePostedEvent carries a new message for real-time fan-out
type MessagePostedEvent struct {
	shared.BaseDomainEvent
	Message Message `json:"message"`
}

func NewMessagePostedEvent(c *Conversation, m *Message) *MessagePostedEvent {
	return &MessagePostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMessagePosted, AggregateTypeConversation, c.ID),
		Message:         *m,
	}
}

// ConversationClosedEvent is published when a conversation is closed
type ConversationClosedEvent struct {
	shared.BaseDomainEvent
	ConversationID uuid.UUID `json:"conversation_id"`
}

func NewConversationClosedEvent(c *Conversation) *ConversationClosedEvent {
	return &ConversationClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConversationClosed, AggregateTypeConversation, c.ID),
		ConversationID:  c.ID,
	}
}
