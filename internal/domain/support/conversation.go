package support

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// ConversationStatus is OPEN or CLOSED
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "OPEN"
	ConversationClosed ConversationStatus = "CLOSED"
)

// SenderRole distinguishes customer messages from staff replies
type SenderRole string

const (
	SenderCustomer SenderRole = "CUSTOMER"
	SenderStaff    SenderRole = "STAFF"
)

// MaxMessageLength is the maximum message body length in characters
const MaxMessageLength = 2000

// Conversation is a support thread between one customer and staff
type Conversation struct {
	shared.BaseAggregateRoot
	CustomerID          uuid.UUID          `gorm:"type:uuid;not null;index"`
	Subject             string             `gorm:"type:varchar(200);not null"`
	Status              ConversationStatus `gorm:"type:varchar(10);not null;index"`
	LastMessageAt       *time.Time         `gorm:"index"`
	UnreadCountCustomer int                `gorm:"not null;default:0"`
	UnreadCountStaff    int                `gorm:"not null;default:0"`
	ClosedAt            *time.Time
}

// TableName returns the table name for GORM
func (Conversation) TableName() string {
	return "support_conversations"
}

// Message is one chat message
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_message_conv_created,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null" json:"sender_id"`
	SenderRole     SenderRole `gorm:"type:varchar(10);not null" json:"sender_role"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_message_conv_created,priority:2" json:"created_at"`
}

// TableName returns the table name for GORM
func (Message) TableName() string {
	return "support_messages"
}

// NewConversation opens a conversation for a customer
func NewConversation(customerID uuid.UUID, subject string) (*Conversation, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "Support request"
	}
	if utf8.RuneCountInString(subject) > 200 {
		return nil, shared.NewDomainError("INVALID_SUBJECT", "Subject cannot exceed 200 characters")
	}
	c := &Conversation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		Subject:           subject,
		Status:            ConversationOpen,
	}
	c.AddDomainEvent(NewConversationStartedEvent(c))
	return c, nil
}

// Post appends a message from sender. A customer message reopens a closed
// conversation; staff cannot post to a closed one.
func (c *Conversation) Post(senderID uuid.UUID, role SenderRole, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, shared.NewDomainError("INVALID_MESSAGE", "Message cannot be empty")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, shared.NewDomainError("INVALID_MESSAGE", "Message cannot exceed 2000 characters")
	}

	switch role {
	case SenderCustomer:
		if senderID != c.CustomerID {
			return nil, shared.ErrForbidden
		}
		if c.Status == ConversationClosed {
			c.Status = ConversationOpen
			c.ClosedAt = nil
		}
		c.UnreadCountStaff++
	case SenderStaff:
		if c.Status == ConversationClosed {
			return nil, shared.NewDomainError("CONVERSATION_CLOSED", "Conversation is closed")
		}
		c.UnreadCountCustomer++
	default:
		return nil, shared.NewDomainError("INVALID_SENDER", "Unknown sender role")
	}

	now := time.Now()
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: c.ID,
		SenderID:       senderID,
		SenderRole:     role,
		Body:           body,
		CreatedAt:      now,
	}
	c.LastMessageAt = &now
	c.touch()

	c.AddDomainEvent(NewMessagePostedEvent(c, msg))
	return msg, nil
}

// MarkRead zeroes the unread counter for the reader's side
func (c *Conversation) MarkRead(role SenderRole) {
	switch role {
	case SenderCustomer:
		if c.UnreadCountCustomer == 0 {
			return
		}
		c.UnreadCountCustomer = 0
	case SenderStaff:
		if c.UnreadCountStaff == 0 {
			return
		}
		c.UnreadCountStaff = 0
	default:
		return
	}
	c.touch()
}

// Close closes the conversation
func (c *Conversation) Close() error {
	if c.Status == ConversationClosed {
		return shared.NewDomainError("CONVERSATION_CLOSED", "Conversation is already closed")
	}
	now := time.Now()
	c.Status = ConversationClosed
	c.ClosedAt = &now
	c.touch()
	c.AddDomainEvent(NewConversationClosedEvent(c))
	return nil
}

// IsOpen reports whether the conversation is open
func (c *Conversation) IsOpen() bool {
	return c.Status == ConversationOpen
}

// CanAccess reports whether a user may read the conversation
func (c *Conversation) CanAccess(userID uuid.UUID, isStaff bool) bool {
	return isStaff || c.CustomerID == userID
}

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
}

// ConversationFilter narrows conversation listings
type ConversationFilter struct {
	shared.Filter
	CustomerID *uuid.UUID
	Status     ConversationStatus
}

// MessageFilter pages through a conversation's messages
type MessageFilter struct {
	shared.Filter
	After *time.Time
}

// Repository persists conversations and their messages
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// FindOpenByCustomer returns the customer's open conversation, or ErrNotFound
	FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) (*Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]Conversation, int64, error)
	Save(ctx context.Context, c *Conversation) error
	// SaveWithMessage saves the conversation and appends msg in one transaction
	SaveWithMessage(ctx context.Context, c *Conversation, msg *Message) error
	// ListMessages returns messages oldest first
	ListMessages(ctx context.Context, conversationID uuid.UUID, filter MessageFilter) ([]Message, int64, error)
}
