package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// maxReleaseSaveAttempts bounds retries of the StockReleased flag update
const maxReleaseSaveAttempts = 3

// OrderCancelledHandler releases the stock of cancelled orders. It runs from
// the outbox so a release that failed during cancellation is retried until it
// succeeds. Releasing is idempotent per order, so redelivery is harmless.
type OrderCancelledHandler struct {
	orderRepo order.Repository
	stock     StockGateway
	logger    *zap.Logger
}

// NewOrderCancelledHandler creates a new OrderCancelledHandler
func NewOrderCancelledHandler(orderRepo order.Repository, stock StockGateway, logger *zap.Logger) *OrderCancelledHandler {
	return &OrderCancelledHandler{
		orderRepo: orderRepo,
		stock:     stock,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OrderCancelledHandler) EventTypes() []string {
	return []string{order.EventTypeOrderCancelled}
}

// Handle processes an OrderCancelledEvent
func (h *OrderCancelledHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	cancelled, ok := event.(*order.OrderCancelledEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", order.EventTypeOrderCancelled),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			order.EventTypeOrderCancelled, event.EventType())
	}
	if !cancelled.StockReserved {
		return nil
	}

	log := h.logger.With(
		zap.String("order_id", cancelled.OrderID.String()),
		zap.String("order_number", cancelled.OrderNumber),
	)

	o, err := h.orderRepo.FindByID(ctx, cancelled.OrderID)
	if err != nil {
		return fmt.Errorf("load cancelled order: %w", err)
	}
	if !o.NeedsStockRelease() {
		log.Debug("stock already released")
		return nil
	}

	if err := h.stock.Release(ctx, o.ID); err != nil {
		log.Error("failed to release stock for cancelled order", zap.Error(err))
		return fmt.Errorf("release stock: %w", err)
	}

	for attempt := 1; ; attempt++ {
		o.MarkStockReleased()
		err = h.orderRepo.SaveWithLock(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxReleaseSaveAttempts {
			return fmt.Errorf("record stock release: %w", err)
		}
		if o, err = h.orderRepo.FindByID(ctx, cancelled.OrderID); err != nil {
			return fmt.Errorf("reload cancelled order: %w", err)
		}
		if !o.NeedsStockRelease() {
			return nil
		}
	}

	log.Info("released stock for cancelled order", zap.Int("lines", len(cancelled.Lines)))
	return nil
}
