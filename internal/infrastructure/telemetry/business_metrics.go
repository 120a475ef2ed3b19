package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const defaultCollectInterval = 5 * time.Minute

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// StockMetricsProvider reads stock levels for the periodic gauges
type StockMetricsProvider interface {
	LowStockVariantCount(ctx context.Context, threshold int) (int64, error)
	UnitsOnHand(ctx context.Context) (int64, error)
}

// BusinessMetrics records order, stock and outbox activity. It satisfies the
// metrics ports of the order, inventory and outbox packages.
type BusinessMetrics struct {
	logger *zap.Logger

	ordersPlaced      *Counter
	orderRevenue      metric.Float64Counter
	ordersCancelled   *Counter
	compensations     *Counter
	stockMovements    *Counter
	stockConflicts    *Counter
	outboxDeliveries  *Counter
	outboxDeadLetters *Counter

	lowStockVariants *Gauge
	unitsOnHand      *Gauge

	provider          StockMetricsProvider
	lowStockThreshold int

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
	wg          sync.WaitGroup
}

// BusinessMetricsConfig configures BusinessMetrics
type BusinessMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	StockProvider     StockMetricsProvider
	LowStockThreshold int
}

// NewBusinessMetrics creates the instruments
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		logger:            logger,
		provider:          cfg.StockProvider,
		lowStockThreshold: cfg.LowStockThreshold,
		stopChan:          make(chan struct{}),
	}

	counters := []struct {
		dst              **Counter
		name, desc, unit string
	}{
		{&bm.ordersPlaced, "shop.orders.placed", "Orders placed", "{order}"},
		{&bm.ordersCancelled, "shop.orders.cancelled", "Orders cancelled", "{order}"},
		{&bm.compensations, "shop.orders.compensations", "Stock compensations run after a failed order placement", "{compensation}"},
		{&bm.stockMovements, "shop.stock.movements", "Stock ledger rows written", "{movement}"},
		{&bm.stockConflicts, "shop.stock.conflicts", "Optimistic stock update conflicts", "{conflict}"},
		{&bm.outboxDeliveries, "shop.outbox.deliveries", "Outbox delivery attempts", "{attempt}"},
		{&bm.outboxDeadLetters, "shop.outbox.dead_letters", "Outbox entries moved to the dead letter state", "{entry}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	bm.orderRevenue, err = cfg.Meter.Float64Counter("shop.orders.revenue",
		metric.WithDescription("Order totals at placement"),
		metric.WithUnit("{currency}"),
	)
	if err != nil {
		return nil, err
	}
	if bm.lowStockVariants, err = NewGauge(cfg.Meter, "shop.stock.low_variants",
		"Variants of active products at or under the low stock threshold", "{variant}"); err != nil {
		return nil, err
	}
	if bm.unitsOnHand, err = NewGauge(cfg.Meter, "shop.stock.units_on_hand",
		"Units in stock across active products", "{unit}"); err != nil {
		return nil, err
	}
	return bm, nil
}

// RecordOrderPlaced counts a placed order and its total
func (bm *BusinessMetrics) RecordOrderPlaced(ctx context.Context, paymentMethod string, total decimal.Decimal) {
	bm.ordersPlaced.Inc(ctx, AttrPaymentMethod.String(paymentMethod))
	bm.orderRevenue.Add(ctx, total.InexactFloat64(), metric.WithAttributes(AttrPaymentMethod.String(paymentMethod)))
}

// RecordOrderCancelled counts a cancellation by actor role
func (bm *BusinessMetrics) RecordOrderCancelled(ctx context.Context, cancelledBy string) {
	bm.ordersCancelled.Inc(ctx, AttrCancelledBy.String(cancelledBy))
}

// RecordCompensation counts a compensation run
func (bm *BusinessMetrics) RecordCompensation(ctx context.Context, succeeded bool) {
	bm.compensations.Inc(ctx, AttrOutcome.String(outcome(succeeded)))
}

// RecordStockMovements counts ledger rows by reason
func (bm *BusinessMetrics) RecordStockMovements(ctx context.Context, reason string, count int) {
	if count <= 0 {
		return
	}
	bm.stockMovements.Add(ctx, int64(count), AttrReason.String(reason))
}

// RecordStockConflict counts a lost compare-and-set race
func (bm *BusinessMetrics) RecordStockConflict(ctx context.Context) {
	bm.stockConflicts.Inc(ctx)
}

// RecordOutboxDelivery counts a delivery attempt
func (bm *BusinessMetrics) RecordOutboxDelivery(ctx context.Context, eventType string, ok bool) {
	bm.outboxDeliveries.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome(ok)))
}

// RecordOutboxDeadLetter counts an entry giving up
func (bm *BusinessMetrics) RecordOutboxDeadLetter(ctx context.Context, eventType string) {
	bm.outboxDeadLetters.Inc(ctx, AttrEventType.String(eventType))
}

// StartPeriodicCollection refreshes the stock gauges every interval until
// Stop is called or ctx ends. Calling it again has no effect.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = defaultCollectInterval
		}
		bm.wg.Add(1)
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	defer bm.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.CollectStockMetrics(ctx)
	for {
		select {
		case <-bm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			bm.CollectStockMetrics(ctx)
		}
	}
}

// CollectStockMetrics reads stock levels once and records the gauges
func (bm *BusinessMetrics) CollectStockMetrics(ctx context.Context) {
	if bm.provider == nil {
		return
	}
	if n, err := bm.provider.LowStockVariantCount(ctx, bm.lowStockThreshold); err != nil {
		bm.logger.Warn("Failed to count low stock variants", zap.Error(err))
	} else {
		bm.lowStockVariants.Record(ctx, n)
	}
	if n, err := bm.provider.UnitsOnHand(ctx); err != nil {
		bm.logger.Warn("Failed to sum units on hand", zap.Error(err))
	} else {
		bm.unitsOnHand.Record(ctx, n)
	}
}

// Stop ends periodic collection and waits for the collector to exit
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
	bm.wg.Wait()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
