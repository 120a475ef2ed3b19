package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultCASRetryAttempts is how many times a ledger request is retried on a version conflict
	DefaultCASRetryAttempts = 5
	// DefaultLowStockThreshold is the balance at or under which VariantStockLow is published
	DefaultLowStockThreshold = 5
)

// Options tunes the InventoryService
type Options struct {
	CASRetryAttempts  int
	LowStockThreshold int
}

// StockMetrics records ledger outcomes
type StockMetrics interface {
	RecordStockMovements(ctx context.Context, reason string, count int)
	RecordStockConflict(ctx context.Context)
}

// InventoryService applies stock changes through the append-only ledger.
// Each request is keyed: the first application records the key and writes
// one movement per changed variant, later requests with the same key replay
// the stored movements, even when there were none.
type InventoryService struct {
	scope     TransactionScope
	movements inventory.MovementRepository
	stock     inventory.StockRepository
	opts      Options
	metrics   StockMetrics
	now       func() time.Time
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	scope TransactionScope,
	movements inventory.MovementRepository,
	stock inventory.StockRepository,
	opts Options,
) *InventoryService {
	if opts.CASRetryAttempts <= 0 {
		opts.CASRetryAttempts = DefaultCASRetryAttempts
	}
	if opts.LowStockThreshold < 0 {
		opts.LowStockThreshold = 0
	}
	return &InventoryService{
		scope:     scope,
		movements: movements,
		stock:     stock,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics sets the recorder for ledger metrics
func (s *InventoryService) SetMetrics(m StockMetrics) {
	s.metrics = m
}

// LowStockThreshold returns the configured threshold
func (s *InventoryService) LowStockThreshold() int {
	return s.opts.LowStockThreshold
}

// ledgerRequest describes one keyed change. lines is evaluated inside the
// transaction against the freshly loaded stock so relative modes see the
// committed balance.
type ledgerRequest struct {
	key        string
	hash       string
	reason     inventory.MovementReason
	reference  string
	origin     inventory.RequestOrigin
	variantIDs []uuid.UUID
	lines      func(current map[uuid.UUID]inventory.VariantStock) ([]inventory.StockLine, error)
}

// UpdateVariantStock sets, increments or decrements the stock of one variant
func (s *InventoryService) UpdateVariantStock(ctx context.Context, productID, variantID uuid.UUID, req UpdateVariantStockRequest) (*StockResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "update_variant_stock")
	defer span.End()
	telemetry.SetAttributes(span, "variant_id", variantID.String(), "mode", req.Mode)

	mode := inventory.StockMode(req.Mode)
	reason := inventory.MovementReason(req.Reason)
	if err := validateManual(req.IdempotencyKey, reason); err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, shared.NewDomainError("INVALID_MODE", "Stock mode must be set, increment or decrement")
	}
	if req.Quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}

	payload := fmt.Sprintf("%s|%s|%d|%s", req.Reference, mode, req.Quantity, variantID)
	result, err := s.apply(ctx, ledgerRequest{
		key:        req.IdempotencyKey,
		hash:       inventory.Fingerprint(reason, payload, nil),
		reason:     reason,
		reference:  req.Reference,
		origin:     inventory.OriginLocal,
		variantIDs: []uuid.UUID{variantID},
		lines: func(current map[uuid.UUID]inventory.VariantStock) ([]inventory.StockLine, error) {
			vs, ok := current[variantID]
			if !ok || vs.ProductID != productID {
				return nil, shared.NewDomainError("VARIANT_NOT_FOUND", "Variant "+variantID.String()+" not found")
			}
			delta, err := inventory.ComputeDelta(mode, vs.Stock, req.Quantity)
			if err != nil {
				return nil, err
			}
			return []inventory.StockLine{{ProductID: productID, VariantID: variantID, Delta: delta}}, nil
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return result, nil
}

// UpdateMultipleProductsStock applies every line or none of them
func (s *InventoryService) UpdateMultipleProductsStock(ctx context.Context, req BatchStockRequest) (*StockResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "update_multiple_products_stock")
	defer span.End()
	telemetry.SetAttributes(span, "lines", len(req.Items))

	reason := inventory.MovementReason(req.Reason)
	if err := validateManual(req.IdempotencyKey, reason); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one stock line is required")
	}

	lines := make([]inventory.StockLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = inventory.StockLine{ProductID: item.ProductID, VariantID: item.VariantID, Delta: item.Delta}
	}
	result, err := s.applyLines(ctx, req.IdempotencyKey, reason, req.Reference, inventory.OriginLocal, lines)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return result, nil
}

// ReserveForOrder takes the order's quantities out of stock under the
// order's reservation key. It is used for orders stored next to the ledger,
// which the reservation reconciler may release when the order never shows up.
func (s *InventoryService) ReserveForOrder(ctx context.Context, orderID uuid.UUID, reserve []ReservationLine) (*StockResult, error) {
	return s.reserve(ctx, orderID, reserve, inventory.OriginLocal)
}

// ReserveForRemoteOrder reserves for an order stored by another service.
// The reconciler cannot see those orders and leaves the reservation alone.
func (s *InventoryService) ReserveForRemoteOrder(ctx context.Context, orderID uuid.UUID, reserve []ReservationLine) (*StockResult, error) {
	return s.reserve(ctx, orderID, reserve, inventory.OriginRemote)
}

func (s *InventoryService) reserve(ctx context.Context, orderID uuid.UUID, reserve []ReservationLine, origin inventory.RequestOrigin) (*StockResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "reserve_for_order")
	defer span.End()
	telemetry.SetAttributes(span, "order_id", orderID.String(), "origin", string(origin))

	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order id is required")
	}
	if len(reserve) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one reservation line is required")
	}

	lines := make([]inventory.StockLine, len(reserve))
	for i, l := range reserve {
		if l.Quantity <= 0 {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Reserved quantity must be positive")
		}
		lines[i] = inventory.StockLine{ProductID: l.ProductID, VariantID: l.VariantID, Delta: -l.Quantity}
	}
	result, err := s.applyLines(ctx, inventory.ReservationKey(orderID), inventory.ReasonOrderReserved, orderID.String(), origin, lines)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return result, nil
}

// ReleaseForOrder returns exactly what the order reserved. Releasing an
// order that reserved nothing records the release and blocks the order's
// reservation key, so a reservation that arrives late is refused with
// ErrReservationReleased instead of holding stock nobody will return.
func (s *InventoryService) ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (*StockResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "release_for_order")
	defer span.End()
	telemetry.SetAttributes(span, "order_id", orderID.String())

	var lastErr error
	for attempt := 0; attempt < s.opts.CASRetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.releaseOnce(ctx, orderID)
		if err == nil {
			telemetry.SetOK(span)
			return result, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		// a reservation committed while we were blocking its key
		lastErr = err
	}
	telemetry.RecordError(span, lastErr)
	return nil, fmt.Errorf("release of order %s gave up after %d attempts: %w", orderID, s.opts.CASRetryAttempts, lastErr)
}

func (s *InventoryService) releaseOnce(ctx context.Context, orderID uuid.UUID) (*StockResult, error) {
	reserved, err := s.movements.FindByKey(ctx, inventory.ReservationKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if lines := inventory.ReleaseLines(reserved); len(lines) > 0 {
		return s.applyLines(ctx, inventory.ReleaseKey(orderID), inventory.ReasonOrderReleased, orderID.String(), inventory.OriginLocal, lines)
	}
	return s.blockReservation(ctx, orderID)
}

// blockReservation records the release of an order with nothing reserved
// and claims its reservation key in the same transaction. A reservation
// committing concurrently makes the claim fail with ErrConcurrencyConflict.
func (s *InventoryService) blockReservation(ctx context.Context, orderID uuid.UUID) (*StockResult, error) {
	key := inventory.ReleaseKey(orderID)
	result := &StockResult{IdempotencyKey: key, Movements: []MovementResponse{}}
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		recorded, err := findRequest(ctx, repos.Movements(), key)
		if err != nil {
			return err
		}
		if recorded != nil {
			result.Replayed = true
			return nil
		}

		now := s.now()
		if err := repos.Movements().RecordRequest(ctx, inventory.NewReleasedMarker(orderID, now)); err != nil {
			return err
		}
		return repos.Movements().RecordRequest(ctx, inventory.StockRequest{
			IdempotencyKey: key,
			RequestHash:    inventory.Fingerprint(inventory.ReasonOrderReleased, orderID.String(), nil),
			Reason:         inventory.ReasonOrderReleased,
			Reference:      orderID.String(),
			Origin:         inventory.OriginLocal,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListMovements returns a page of ledger rows, newest first
func (s *InventoryService) ListMovements(ctx context.Context, filter MovementListFilter) (*shared.Paginated[MovementResponse], error) {
	f := inventory.MovementFilter{
		Filter:    shared.Filter{Page: filter.Page, PageSize: filter.PageSize},
		ProductID: filter.ProductID,
		VariantID: filter.VariantID,
		Reference: filter.Reference,
		Reason:    inventory.MovementReason(filter.Reason),
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	rows, total, err := s.movements.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	page := shared.NewPaginated(ToMovementResponses(rows), total, f.Page, f.PageSize)
	return &page, nil
}

// LowStock lists variants at or under threshold. A non-positive threshold
// falls back to the configured one.
func (s *InventoryService) LowStock(ctx context.Context, threshold, limit int) ([]inventory.LowStockItem, error) {
	if threshold <= 0 {
		threshold = s.opts.LowStockThreshold
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items, err := s.stock.LowStock(ctx, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}
	return items, nil
}

func (s *InventoryService) applyLines(ctx context.Context, key string, reason inventory.MovementReason, reference string, origin inventory.RequestOrigin, lines []inventory.StockLine) (*StockResult, error) {
	merged := inventory.MergeLines(lines)
	ids := make([]uuid.UUID, len(merged))
	for i, l := range merged {
		ids[i] = l.VariantID
	}
	return s.apply(ctx, ledgerRequest{
		key:        key,
		hash:       inventory.Fingerprint(reason, reference, lines),
		reason:     reason,
		reference:  reference,
		origin:     origin,
		variantIDs: ids,
		lines: func(map[uuid.UUID]inventory.VariantStock) ([]inventory.StockLine, error) {
			return merged, nil
		},
	})
}

// apply runs the request in a transaction and retries the whole attempt when
// a compare-and-swap loses to a concurrent writer
func (s *InventoryService) apply(ctx context.Context, req ledgerRequest) (*StockResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.opts.CASRetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.applyOnce(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.RecordStockConflict(ctx)
		}
	}
	return nil, fmt.Errorf("stock update for key %s gave up after %d attempts: %w", req.key, s.opts.CASRetryAttempts, lastErr)
}

func (s *InventoryService) applyOnce(ctx context.Context, req ledgerRequest) (*StockResult, error) {
	var result *StockResult
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		recorded, err := findRequest(ctx, repos.Movements(), req.key)
		if err != nil {
			return err
		}
		if recorded != nil {
			if recorded.IsReleasedMarker() {
				return inventory.ErrReservationReleased
			}
			if recorded.RequestHash != req.hash {
				return shared.ErrIdempotencyConflict
			}
			existing, err := repos.Movements().FindByKey(ctx, req.key)
			if err != nil {
				return fmt.Errorf("failed to load replayed movements: %w", err)
			}
			result = &StockResult{IdempotencyKey: req.key, Replayed: true, Movements: ToMovementResponses(existing)}
			return nil
		}

		current, err := repos.Stock().FindVariants(ctx, req.variantIDs)
		if err != nil {
			return fmt.Errorf("failed to load variant stock: %w", err)
		}
		lines, err := req.lines(current)
		if err != nil {
			return err
		}
		plan, err := inventory.PlanMovements(req.key, req.hash, req.reason, req.reference, inventory.MergeLines(lines), current, s.now())
		if err != nil {
			return err
		}
		for _, u := range plan.Updates {
			if err := repos.Stock().CompareAndSwap(ctx, u); err != nil {
				return err
			}
		}
		// the key is recorded even when nothing moves
		if err := repos.Movements().RecordRequest(ctx, inventory.StockRequest{
			IdempotencyKey: req.key,
			RequestHash:    req.hash,
			Reason:         req.reason,
			Reference:      req.reference,
			Origin:         req.origin,
			CreatedAt:      s.now(),
		}); err != nil {
			return err
		}
		if len(plan.Movements) == 0 {
			result = &StockResult{IdempotencyKey: req.key, Movements: []MovementResponse{}}
			return nil
		}

		if err := repos.Movements().Append(ctx, plan.Movements); err != nil {
			return err
		}

		events := []shared.DomainEvent{inventory.NewStockAdjustedEvent(plan.Movements)}
		for _, m := range plan.Movements {
			if inventory.CrossedLowThreshold(m, s.opts.LowStockThreshold) {
				events = append(events, inventory.NewVariantStockLowEvent(m, s.opts.LowStockThreshold))
			}
		}
		if err := repos.SaveEvents(ctx, events...); err != nil {
			return fmt.Errorf("failed to save stock events: %w", err)
		}

		result = &StockResult{IdempotencyKey: req.key, Movements: ToMovementResponses(plan.Movements)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil && !result.Replayed && len(result.Movements) > 0 {
		s.metrics.RecordStockMovements(ctx, string(req.reason), len(result.Movements))
	}
	return result, nil
}

// findRequest returns the request recorded under key, or nil when the key is new
func findRequest(ctx context.Context, movements inventory.MovementRepository, key string) (*inventory.StockRequest, error) {
	recorded, err := movements.FindRequest(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return recorded, nil
}

func validateManual(key string, reason inventory.MovementReason) error {
	if key == "" {
		return shared.NewDomainError("IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required")
	}
	if len(key) > 200 {
		return shared.NewDomainError("INVALID_INPUT", "Idempotency key is too long")
	}
	if !reason.IsManual() {
		return shared.NewDomainError("INVALID_REASON", "Reason must be INITIAL, RESTOCK or ADJUSTMENT")
	}
	return nil
}
