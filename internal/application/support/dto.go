package support

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/support"
)

// Actor is the caller of a support operation. Staff are admins.
type Actor struct {
	UserID  uuid.UUID
	IsStaff bool
}

func (a Actor) role() support.SenderRole {
	if a.IsStaff {
		return support.SenderStaff
	}
	return support.SenderCustomer
}

// StartConversationRequest opens a conversation
type StartConversationRequest struct {
	Subject string `json:"subject" binding:"max=200"`
	Message string `json:"message" binding:"max=2000"`
}

// SendMessageRequest posts a message
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=2000"`
}

// ConversationListFilter narrows conversation listings
type ConversationListFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=OPEN CLOSED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// MessageListFilter pages through messages
type MessageListFilter struct {
	After    *time.Time `form:"after" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// ConversationResponse is the API view of a conversation
type ConversationResponse struct {
	ID                  uuid.UUID  `json:"id"`
	CustomerID          uuid.UUID  `json:"customer_id"`
	Subject             string     `json:"subject"`
	Status              string     `json:"status"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	UnreadCountCustomer int        `json:"unread_count_customer"`
	UnreadCountStaff    int        `json:"unread_count_staff"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MessageResponse is the API view of a message
type MessageResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderRole     string    `json:"sender_role"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToConversationResponse converts a domain Conversation
func ToConversationResponse(c *support.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                  c.ID,
		CustomerID:          c.CustomerID,
		Subject:             c.Subject,
		Status:              string(c.Status),
		LastMessageAt:       c.LastMessageAt,
		UnreadCountCustomer: c.UnreadCountCustomer,
		UnreadCountStaff:    c.UnreadCountStaff,
		ClosedAt:            c.ClosedAt,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// ToMessageResponse converts a domain Message
func ToMessageResponse(m *support.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     string(m.SenderRole),
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}
