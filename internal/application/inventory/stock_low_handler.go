package inventory

import (
	"context"
	"fmt"

	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockAlert is a low or out of stock notification for one variant
type StockAlert struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	SKU       string `json:"sku"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	AlertType string `json:"alert_type"` // "low_stock", "out_of_stock"
}

// StockAlertNotifier sends stock alerts
type StockAlertNotifier interface {
	SendAlert(ctx context.Context, alert StockAlert) error
}

// VariantStockLowHandler turns VariantStockLow events into alerts
type VariantStockLowHandler struct {
	logger   *zap.Logger
	notifier StockAlertNotifier
}

// NewVariantStockLowHandler creates a new VariantStockLowHandler
func NewVariantStockLowHandler(logger *zap.Logger) *VariantStockLowHandler {
	return &VariantStockLowHandler{logger: logger}
}

// WithNotifier sets the notifier for sending alerts
func (h *VariantStockLowHandler) WithNotifier(notifier StockAlertNotifier) *VariantStockLowHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *VariantStockLowHandler) EventTypes() []string {
	return []string{inventory.EventTypeVariantStockLow}
}

// Handle processes a VariantStockLowEvent
func (h *VariantStockLowHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	low, ok := event.(*inventory.VariantStockLowEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeVariantStockLow),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeVariantStockLow, event.EventType())
	}

	alertType := "low_stock"
	if low.Stock == 0 {
		alertType = "out_of_stock"
	}
	alert := StockAlert{
		ProductID: low.ProductID.String(),
		VariantID: low.VariantID.String(),
		SKU:       low.SKU,
		Stock:     low.Stock,
		Threshold: low.Threshold,
		AlertType: alertType,
	}

	h.logger.Warn("variant stock low",
		zap.String("sku", alert.SKU),
		zap.String("variant_id", alert.VariantID),
		zap.Int("stock", alert.Stock),
		zap.Int("threshold", alert.Threshold),
	)

	if h.notifier != nil {
		// a failed notification must not fail event handling
		if err := h.notifier.SendAlert(ctx, alert); err != nil {
			h.logger.Error("failed to send stock alert notification",
				zap.String("variant_id", alert.VariantID),
				zap.Error(err),
			)
		}
	}
	return nil
}

var _ shared.EventHandler = (*VariantStockLowHandler)(nil)

// LoggingStockAlertNotifier logs alerts
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{logger: logger}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(_ context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("sku", alert.SKU),
		zap.String("product_id", alert.ProductID),
		zap.Int("stock", alert.Stock),
		zap.Int("threshold", alert.Threshold),
	)
	return nil
}
