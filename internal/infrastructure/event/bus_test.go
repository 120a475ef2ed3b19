package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

// testHandler implements EventHandler for testing
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by type", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		orders := newTestHandler("OrderPlaced")
		other := newTestHandler("ProductCreated")
		bus.Subscribe(orders)
		bus.Subscribe(other)

		e1, e2 := newTestEvent("OrderPlaced"), newTestEvent("OrderPlaced")
		require.NoError(t, bus.Publish(ctx, e1, e2))
		assert.Equal(t, []shared.DomainEvent{e1, e2}, orders.getHandled())
		assert.Empty(t, other.getHandled())
	})

	t.Run("explicit types override the handler's", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		h := newTestHandler("OrderPlaced")
		bus.Subscribe(h, "OrderPaid")

		require.NoError(t, bus.Publish(ctx, newTestEvent("OrderPlaced"), newTestEvent("OrderPaid")))
		require.Len(t, h.getHandled(), 1)
		assert.Equal(t, "OrderPaid", h.getHandled()[0].EventType())
	})

	t.Run("wildcard receives everything", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		all := newTestHandler()
		bus.Subscribe(all)

		require.NoError(t, bus.Publish(ctx, newTestEvent("OrderPlaced"), newTestEvent("MessagePosted")))
		assert.Len(t, all.getHandled(), 2)
	})

	t.Run("failures are joined and the rest still run", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		failing := newTestHandler("OrderCancelled")
		failing.setError(errors.New("inventory unavailable"))
		panicking := newTestHandler("OrderCancelled")
		panicking.panicWith = "boom"
		healthy := newTestHandler("OrderCancelled")
		bus.Subscribe(failing)
		bus.Subscribe(panicking)
		bus.Subscribe(healthy)

		err := bus.Publish(ctx, newTestEvent("OrderCancelled"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inventory unavailable")
		assert.Contains(t, err.Error(), "panicked: boom")
		assert.Len(t, healthy.getHandled(), 1)
	})
}

func TestInMemoryEventBus_Subscribe(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	require.NoError(t, bus.Start(ctx))
	defer func() { require.NoError(t, bus.Stop(ctx)) }()

	h := newTestHandler("OrderPlaced", "OrderShipped")
	bus.Subscribe(h)
	bus.Subscribe(h)

	require.Equal(t, 2, logs.Len(), "each subscription warns about the unpublished type")
	entry := logs.All()[0]
	assert.Equal(t, []any{"OrderShipped"}, entry.ContextMap()["event_types"])

	require.NoError(t, bus.Publish(ctx, newTestEvent("OrderPlaced")))
	assert.Len(t, h.getHandled(), 1, "a repeated subscription does not deliver twice")
}
