package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/inventory"
	"go.uber.org/zap"
)

const (
	// DefaultReservationGracePeriod is how long a reservation may exist without its order
	DefaultReservationGracePeriod = 10 * time.Minute
	// DefaultReconcileBatchSize caps the reservations inspected per run
	DefaultReconcileBatchSize = 100
)

// OrderExistenceChecker reports whether an order was persisted
type OrderExistenceChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReservationReleaser releases the stock an order reserved
type ReservationReleaser interface {
	ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (*StockResult, error)
}

// ReservationReconciler releases reservations whose order never made it to
// the database. Placing an order reserves first and persists second, so a
// crash between the two leaves stock held by nobody.
type ReservationReconciler struct {
	movements   inventory.MovementRepository
	orders      OrderExistenceChecker
	releaser    ReservationReleaser
	gracePeriod time.Duration
	batchSize   int
	logger      *zap.Logger
	now         func() time.Time
}

// NewReservationReconciler creates a new ReservationReconciler
func NewReservationReconciler(
	movements inventory.MovementRepository,
	orders OrderExistenceChecker,
	releaser ReservationReleaser,
	gracePeriod time.Duration,
	logger *zap.Logger,
) *ReservationReconciler {
	if gracePeriod <= 0 {
		gracePeriod = DefaultReservationGracePeriod
	}
	return &ReservationReconciler{
		movements:   movements,
		orders:      orders,
		releaser:    releaser,
		gracePeriod: gracePeriod,
		batchSize:   DefaultReconcileBatchSize,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBatchSize caps the reservations inspected per run. Non-positive
// values keep the default.
func (r *ReservationReconciler) SetBatchSize(n int) {
	if n > 0 {
		r.batchSize = n
	}
}

// ReconcileStats contains statistics about one reconciliation run
type ReconcileStats struct {
	Inspected       int       `json:"inspected"`
	Released        int       `json:"released"`
	OrderExists     int       `json:"order_exists"`
	FailedReleases  int       `json:"failed_releases"`
	ProcessedAt     time.Time `json:"processed_at"`
	GracePeriodSecs int64     `json:"grace_period_seconds"`
}

// ReconcileOrphanReservations releases unreleased reservations older than
// the grace period that have no order. A non-positive gracePeriod uses the
// configured one.
func (r *ReservationReconciler) ReconcileOrphanReservations(ctx context.Context, gracePeriod time.Duration) (*ReconcileStats, error) {
	if gracePeriod <= 0 {
		gracePeriod = r.gracePeriod
	}
	stats := &ReconcileStats{
		ProcessedAt:     r.now(),
		GracePeriodSecs: int64(gracePeriod / time.Second),
	}

	refs, err := r.movements.FindUnreleasedReservations(ctx, stats.ProcessedAt.Add(-gracePeriod), r.batchSize)
	if err != nil {
		r.logger.Error("Failed to find unreleased reservations", zap.Error(err))
		return nil, err
	}
	stats.Inspected = len(refs)
	if stats.Inspected == 0 {
		r.logger.Debug("No unreleased reservations past the grace period")
		return stats, nil
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		orderID, err := uuid.Parse(ref)
		if err != nil {
			r.logger.Warn("Reservation has a malformed order reference", zap.String("reference", ref))
			stats.FailedReleases++
			continue
		}

		exists, err := r.orders.Exists(ctx, orderID)
		if err != nil {
			r.logger.Error("Failed to check order existence",
				zap.String("order_id", ref),
				zap.Error(err),
			)
			stats.FailedReleases++
			continue
		}
		if exists {
			// the order owns its reservation; cancellation releases it
			stats.OrderExists++
			continue
		}

		if _, err := r.releaser.ReleaseForOrder(ctx, orderID); err != nil {
			r.logger.Error("Failed to release orphan reservation",
				zap.String("order_id", ref),
				zap.Error(err),
			)
			stats.FailedReleases++
			continue
		}
		stats.Released++
		r.logger.Info("Released orphan reservation", zap.String("order_id", ref))
	}

	r.logger.Info("Completed reservation reconciliation",
		zap.Int("inspected", stats.Inspected),
		zap.Int("released", stats.Released),
		zap.Int("order_exists", stats.OrderExists),
		zap.Int("failed", stats.FailedReleases),
	)
	return stats, nil
}
