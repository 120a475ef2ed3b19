package event

import (
	"context"
	"testing"

	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

// mockHandler implements EventHandler for testing
type mockHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
}

func newMockHandler(eventTypes ...string) *mockHandler {
	return &mockHandler{
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *mockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.handled = append(h.handled, event)
	return nil
}

func (h *mockHandler) EventTypes() []string {
	return h.eventTypes
}

func TestHandlerRegistry_Register(t *testing.T) {
	t.Run("specific types", func(t *testing.T) {
		registry := NewHandlerRegistry()
		handler := newMockHandler("OrderPlaced", "OrderPaid")

		assert.Empty(t, registry.Register(handler, "OrderPlaced", "OrderPaid"))
		assert.Len(t, registry.HandlersFor("OrderPlaced"), 1)
		assert.Len(t, registry.HandlersFor("OrderPaid"), 1)
		assert.Empty(t, registry.HandlersFor("OrderCancelled"))
	})

	t.Run("wildcard", func(t *testing.T) {
		registry := NewHandlerRegistry()
		handler := newMockHandler()

		assert.Empty(t, registry.Register(handler))
		assert.Len(t, registry.HandlersFor("OrderPlaced"), 1)
		assert.Len(t, registry.HandlersFor("MessagePosted"), 1)
	})

	t.Run("reports types the shop never publishes", func(t *testing.T) {
		registry := NewHandlerRegistry()
		handler := newMockHandler()

		unknown := registry.Register(handler, "OrderPlaced", "InvoiceIssued")
		assert.Equal(t, []string{"InvoiceIssued"}, unknown)
		assert.Len(t, registry.HandlersFor("InvoiceIssued"), 1)
	})
}

func TestHandlerRegistry_HandlersFor(t *testing.T) {
	registry := NewHandlerRegistry()
	specific := newMockHandler("OrderPlaced")
	wildcard := newMockHandler()
	both := newMockHandler("OrderPlaced", "ProductCreated")

	registry.Register(specific, "OrderPlaced")
	registry.Register(specific, "OrderPlaced")
	registry.Register(wildcard)
	registry.Register(both, "OrderPlaced")
	registry.Register(both)

	handlers := registry.HandlersFor("OrderPlaced")
	assert.Equal(t, []shared.EventHandler{specific, both, wildcard}, handlers)

	handlers = registry.HandlersFor("ProductCreated")
	assert.Equal(t, []shared.EventHandler{wildcard, both}, handlers)
}

func TestHandlerRegistry_Len(t *testing.T) {
	registry := NewHandlerRegistry()
	assert.Zero(t, registry.Len())

	h := newMockHandler()
	registry.Register(h, "OrderPlaced", "OrderPaid")
	registry.Register(h)
	registry.Register(newMockHandler(), "UserRegistered")

	assert.Equal(t, 2, registry.Len())
}
