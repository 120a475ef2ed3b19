package support

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/support"
	"go.uber.org/zap"
)

// subscriberBufferSize lets a burst of messages queue without blocking delivery
const subscriberBufferSize = 64

// Subscriber receives the messages of one conversation
type Subscriber struct {
	ID             string
	ConversationID uuid.UUID
	UserID         uuid.UUID
	C              chan support.Message
	done           chan struct{}
}

// Done is closed when the hub shuts down
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub fans new chat messages out to the SSE subscribers of a conversation
// on this instance. Slow subscribers drop messages instead of blocking.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]map[string]*Subscriber
	count      int
	maxClients int
	closed     bool
	done       chan struct{}
	logger     *zap.Logger
}

// NewHub creates a hub. maxClients <= 0 means unlimited.
func NewHub(maxClients int, logger *zap.Logger) *Hub {
	return &Hub{
		subs:       make(map[uuid.UUID]map[string]*Subscriber),
		maxClients: maxClients,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Subscribe registers a subscriber for a conversation
func (h *Hub) Subscribe(conversationID, userID uuid.UUID) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, shared.NewDomainError("HUB_CLOSED", "Chat streaming is shutting down")
	}
	if h.maxClients > 0 && h.count >= h.maxClients {
		return nil, shared.NewDomainError("MAX_CONNECTIONS_REACHED", "Maximum number of chat connections reached")
	}

	sub := &Subscriber{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		C:              make(chan support.Message, subscriberBufferSize),
		done:           h.done,
	}
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[string]*Subscriber)
	}
	h.subs[conversationID][sub.ID] = sub
	h.count++

	h.logger.Debug("Chat subscriber connected",
		zap.String("subscriber_id", sub.ID),
		zap.String("conversation_id", conversationID.String()))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel. Calling it twice
// is safe.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conv, ok := h.subs[sub.ConversationID]
	if !ok {
		return
	}
	if _, ok := conv[sub.ID]; !ok {
		return
	}
	delete(conv, sub.ID)
	if len(conv) == 0 {
		delete(h.subs, sub.ConversationID)
	}
	h.count--
	close(sub.C)
}

// Deliver hands msg to every local subscriber of its conversation
func (h *Hub) Deliver(msg support.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[msg.ConversationID] {
		select {
		case sub.C <- msg:
		default:
			h.logger.Warn("Chat subscriber channel full, dropping message",
				zap.String("subscriber_id", sub.ID),
				zap.String("message_id", msg.ID.String()))
		}
	}
}

// Broadcast implements Broadcaster for a single instance
func (h *Hub) Broadcast(_ context.Context, msg support.Message) error {
	h.Deliver(msg)
	return nil
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close signals every subscriber to disconnect and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	h.logger.Info("Chat hub stopped", zap.Int("subscribers", h.count))
}
