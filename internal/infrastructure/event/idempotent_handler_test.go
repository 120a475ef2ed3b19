package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventHandler is a mock implementation of shared.EventHandler
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventHandler) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newIdempotencyStore(t *testing.T) *cache.InMemoryIdempotencyStore {
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIdempotentHandler_Handle_NewEvent(t *testing.T) {
	store := newIdempotencyStore(t)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	mockHandler.On("Handle", mock.Anything, event).Return(nil)

	handler := NewIdempotentHandler("restock", mockHandler, store, zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), event))
	mockHandler.AssertExpectations(t)
	assert.Equal(t, IdempotencyStats{EventsProcessed: 1}, handler.GetMetrics().Stats())

	processed, err := store.IsProcessed(context.Background(), "restock:"+event.EventID().String())
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestIdempotentHandler_Handle_DuplicateEvent(t *testing.T) {
	store := newIdempotencyStore(t)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

	handler := NewIdempotentHandler("restock", mockHandler, store, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), event))
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.EventsProcessed.Load())
	assert.Equal(t, int64(2), handler.metrics.EventsDuplicate.Load())
}

func TestIdempotentHandler_Handle_HandlerNamesDoNotCollide(t *testing.T) {
	store := newIdempotencyStore(t)
	event := newTestEvent("OrderPaid")

	first := new(MockEventHandler)
	first.On("Handle", mock.Anything, event).Return(nil).Once()
	second := new(MockEventHandler)
	second.On("Handle", mock.Anything, event).Return(nil).Once()

	require.NoError(t, NewIdempotentHandler("notify", first, store, zap.NewNop()).Handle(context.Background(), event))
	require.NoError(t, NewIdempotentHandler("dashboard", second, store, zap.NewNop()).Handle(context.Background(), event))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestIdempotentHandler_Handle_FailureAllowsRedelivery(t *testing.T) {
	store := newIdempotencyStore(t)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	expectedErr := errors.New("inventory unavailable")

	mockHandler.On("Handle", mock.Anything, event).Return(expectedErr).Once()
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

	handler := NewIdempotentHandler("restock", mockHandler, store, zap.NewNop())

	err := handler.Handle(context.Background(), event)
	assert.Equal(t, expectedErr, err)
	require.NoError(t, handler.Handle(context.Background(), event))

	mockHandler.AssertExpectations(t)
	assert.Equal(t, IdempotencyStats{EventsProcessed: 1, EventsFailed: 1}, handler.GetMetrics().Stats())
}

func TestIdempotentHandler_Handle_StoreError(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	key := "restock:" + event.EventID().String()

	mockStore.On("MarkProcessed", mock.Anything, key, mock.Anything).Return(false, errors.New("redis down"))
	mockHandler.On("Handle", mock.Anything, event).Return(errors.New("boom"))

	handler := NewIdempotentHandler("restock", mockHandler, mockStore, zap.NewNop())

	require.Error(t, handler.Handle(context.Background(), event))
	mockStore.AssertExpectations(t)
	// nothing was claimed, so nothing is released
	mockStore.AssertNotCalled(t, "Release", mock.Anything, key)
}

func TestIdempotentHandler_Handle_Disabled(t *testing.T) {
	store := newIdempotencyStore(t)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Times(3)

	config := shared.DefaultIdempotencyConfig()
	config.Enabled = false
	handler := NewIdempotentHandler("restock", mockHandler, store, zap.NewNop(), WithIdempotencyConfig(config))

	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), event))
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, IdempotencyStats{}, handler.GetMetrics().Stats())
}

func TestIdempotentHandler_EventTypes(t *testing.T) {
	mockHandler := new(MockEventHandler)
	mockHandler.On("EventTypes").Return([]string{"OrderCancelled"})

	handler := NewIdempotentHandler("restock", mockHandler, newIdempotencyStore(t), zap.NewNop())

	assert.Equal(t, []string{"OrderCancelled"}, handler.EventTypes())
	assert.Equal(t, "restock", handler.Name())
}

func TestIdempotentHandler_SharedMetrics(t *testing.T) {
	store := newIdempotencyStore(t)
	sharedMetrics := &IdempotencyMetrics{}

	h1, h2 := new(MockEventHandler), new(MockEventHandler)
	e1, e2 := newTestEvent("OrderPlaced"), newTestEvent("OrderPaid")
	h1.On("Handle", mock.Anything, e1).Return(nil)
	h2.On("Handle", mock.Anything, e2).Return(nil)

	require.NoError(t, NewIdempotentHandler("a", h1, store, zap.NewNop(), WithIdempotencyMetrics(sharedMetrics)).Handle(context.Background(), e1))
	require.NoError(t, NewIdempotentHandler("b", h2, store, zap.NewNop(), WithIdempotencyMetrics(sharedMetrics)).Handle(context.Background(), e2))

	assert.Equal(t, int64(2), sharedMetrics.EventsProcessed.Load())
}

func TestIdempotentHandler_ConcurrentDuplicates(t *testing.T) {
	store := newIdempotencyStore(t)
	mockHandler := new(MockEventHandler)
	event := newTestEvent("OrderCancelled")
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

	handler := NewIdempotentHandler("restock", mockHandler, store, zap.NewNop())

	const workers = 50
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			errs <- handler.Handle(context.Background(), event)
		}()
	}
	for i := 0; i < workers; i++ {
		assert.NoError(t, <-errs)
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.EventsProcessed.Load())
	assert.Equal(t, int64(workers-1), handler.metrics.EventsDuplicate.Load())
}
