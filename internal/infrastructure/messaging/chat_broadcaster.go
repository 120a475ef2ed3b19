package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopfront/backend/internal/domain/support"
	"go.uber.org/zap"
)

// LocalDeliverer hands a message to this instance's subscribers
type LocalDeliverer interface {
	Deliver(msg support.Message)
}

type chatEnvelope struct {
	Origin  string          `json:"origin"`
	Message support.Message `json:"message"`
}

// ChatBroadcaster delivers chat messages locally and relays them through
// NATS to the other instances. Messages that come back from this instance
// are ignored.
type ChatBroadcaster struct {
	conn    *nats.Conn
	local   LocalDeliverer
	subject string
	origin  string
	logger  *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewChatBroadcaster creates a ChatBroadcaster publishing on <prefix>.support.messages
func NewChatBroadcaster(conn *nats.Conn, local LocalDeliverer, prefix string, logger *zap.Logger) *ChatBroadcaster {
	return &ChatBroadcaster{
		conn:    conn,
		local:   local,
		subject: Subject(prefix, "support", "messages"),
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Broadcast delivers msg locally, then publishes it for other instances.
// A publish failure is returned after local delivery has happened.
func (b *ChatBroadcaster) Broadcast(_ context.Context, msg support.Message) error {
	b.local.Deliver(msg)

	data, err := json.Marshal(chatEnvelope{Origin: b.origin, Message: msg})
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish chat message: %w", err)
	}
	return nil
}

// Start subscribes to messages from other instances
func (b *ChatBroadcaster) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}

	sub, err := b.conn.Subscribe(b.subject, b.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	// make sure the server registered the interest before anyone publishes
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}
	b.sub = sub
	b.logger.Info("Chat relay subscribed", zap.String("subject", b.subject), zap.String("origin", b.origin))
	return nil
}

// Stop drains the subscription
func (b *ChatBroadcaster) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Drain()
	b.sub = nil
	return err
}

func (b *ChatBroadcaster) onMessage(m *nats.Msg) {
	var env chatEnvelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		b.logger.Warn("Dropping malformed chat relay message", zap.Error(err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.local.Deliver(env.Message)
}
