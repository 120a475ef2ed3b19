package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEventHandler(t *testing.T) {
	handler := NewMockEventHandler("OrderPlaced", "OrderCancelled")
	assert.Equal(t, []string{"OrderPlaced", "OrderCancelled"}, handler.EventTypes())

	placed := NewTestEvent("OrderPlaced")
	require.NoError(t, handler.Handle(context.Background(), placed))
	require.NoError(t, handler.Handle(context.Background(), NewTestEvent("OrderCancelled")))

	assert.Equal(t, 2, handler.HandledCount())
	assert.Same(t, placed, handler.Handled()[0])
	assert.Len(t, handler.HandledOfType("OrderCancelled"), 1)
	assert.Empty(t, handler.HandledOfType("OrderPaid"))
}

func TestMockEventHandler_SetErrorAndReset(t *testing.T) {
	handler := NewMockEventHandler("OrderPlaced")
	handler.SetError(assert.AnError)

	err := handler.Handle(context.Background(), NewTestEvent("OrderPlaced"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, handler.HandledCount())

	handler.Reset()
	assert.Zero(t, handler.HandledCount())
	assert.NoError(t, handler.Handle(context.Background(), NewTestEvent("OrderPlaced")))
}

func TestNewTestEventForAggregate(t *testing.T) {
	orderID := uuid.New()
	event := NewTestEventForAggregate("OrderPaid", orderID)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, "OrderPaid", event.EventType())
	assert.Equal(t, orderID, event.AggregateID())
	assert.Equal(t, "Order", event.AggregateType())
	assert.False(t, event.OccurredAt().IsZero())
}

func TestWaitForCondition(t *testing.T) {
	t.Run("condition met", func(t *testing.T) {
		var flag atomic.Bool
		go func() {
			time.Sleep(20 * time.Millisecond)
			flag.Store(true)
		}()
		assert.True(t, WaitForCondition(t, flag.Load, 500*time.Millisecond, 5*time.Millisecond))
	})

	t.Run("timeout", func(t *testing.T) {
		assert.False(t, WaitForCondition(t, func() bool { return false }, 30*time.Millisecond, 5*time.Millisecond))
	})
}

func TestWaitForEventCount(t *testing.T) {
	handler := NewMockEventHandler("OrderPlaced")
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = handler.Handle(context.Background(), NewTestEvent("OrderPlaced"))
		_ = handler.Handle(context.Background(), NewTestEvent("OrderPlaced"))
	}()

	assert.True(t, WaitForEventCount(t, handler, 2, 500*time.Millisecond))
}
