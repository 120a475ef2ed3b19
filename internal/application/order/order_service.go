package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/domain/cart"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxIdempotencyKeyLength matches the orders.idempotency_key column
const maxIdempotencyKeyLength = 100

// maxOrderNumberAttempts bounds renumbering when concurrent checkouts draw the same number
const maxOrderNumberAttempts = 5

// Config holds order pricing settings
type Config struct {
	Currency    string
	ShippingFee decimal.Decimal
	// FreeShippingThreshold waives the fee when the subtotal reaches it. Nil disables.
	FreeShippingThreshold *decimal.Decimal
}

// ShippingFeeFor returns the fee charged for a subtotal
func (c Config) ShippingFeeFor(subtotal decimal.Decimal) decimal.Decimal {
	if c.FreeShippingThreshold != nil && subtotal.GreaterThanOrEqual(*c.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.ShippingFee
}

// OrderMetrics records order outcomes
type OrderMetrics interface {
	RecordOrderPlaced(ctx context.Context, paymentMethod string, total decimal.Decimal)
	RecordOrderCancelled(ctx context.Context, cancelledBy string)
	RecordCompensation(ctx context.Context, succeeded bool)
}

// OrderService handles order placement and the order lifecycle
type OrderService struct {
	orderRepo   order.Repository
	productRepo catalog.ProductRepository
	cartRepo    cart.Repository
	stock       StockGateway
	config      Config
	metrics     OrderMetrics
	logger      *zap.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orderRepo order.Repository,
	productRepo catalog.ProductRepository,
	cartRepo cart.Repository,
	stock StockGateway,
	config Config,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		cartRepo:    cartRepo,
		stock:       stock,
		config:      config,
		logger:      logger,
	}
}

// SetMetrics sets the metrics recorder
func (s *OrderService) SetMetrics(metrics OrderMetrics) {
	s.metrics = metrics
}

// PlaceOrder prices the requested lines, reserves their stock and persists
// the order. Stock is reserved before the order exists; if persisting fails
// the reservation is released again. The second return value is true when
// the idempotency key matched an order placed earlier.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*OrderResponse, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "place")
	defer span.End()

	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return nil, false, shared.NewDomainError("INVALID_IDEMPOTENCY_KEY",
			fmt.Sprintf("Idempotency key cannot exceed %d characters", maxIdempotencyKeyLength))
	}
	if key != "" {
		existing, err := s.orderRepo.FindByIdempotencyKey(ctx, userID, key)
		if err == nil {
			telemetry.AddEvent(span, "idempotent_replay", "order_id", existing.ID.String())
			response := ToOrderResponse(existing)
			return &response, true, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, false, err
		}
	}

	items, err := s.requestedItems(ctx, userID, req)
	if err != nil {
		return nil, false, err
	}

	number, err := s.orderRepo.GenerateOrderNumber(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("generate order number: %w", err)
	}
	o, err := order.NewOrder(userID, number, req.ShippingAddress.ToAddress(), order.PaymentMethod(req.PaymentMethod), s.config.Currency)
	if err != nil {
		return nil, false, err
	}
	if err := s.priceItems(ctx, o, items); err != nil {
		return nil, false, err
	}
	if err := o.SetShippingFee(s.config.ShippingFeeFor(o.Subtotal)); err != nil {
		return nil, false, err
	}
	o.SetNotes(req.Notes)
	o.SetIdempotencyKey(key)

	lines := make([]inventoryapp.ReservationLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = inventoryapp.ReservationLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
	}
	if err := s.stock.Reserve(ctx, o.ID, lines); err != nil {
		telemetry.RecordError(span, err)
		var domainErr *shared.DomainError
		if !errors.As(err, &domainErr) {
			// a transport failure may still have reserved on the other side
			s.compensate(ctx, o.ID, err)
		}
		return nil, false, err
	}

	if err := o.Place(); err != nil {
		s.compensate(ctx, o.ID, err)
		return nil, false, err
	}
	if existing, err := s.persist(ctx, o, userID, key); err != nil || existing != nil {
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, false, err
		}
		response := ToOrderResponse(existing)
		return &response, true, nil
	}

	if req.FromCart {
		s.removeFromCart(ctx, userID, o)
	}
	if s.metrics != nil {
		s.metrics.RecordOrderPlaced(ctx, string(o.PaymentMethod), o.Total)
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("user_id", userID.String()),
		zap.String("total", o.Total.String()),
	)
	telemetry.SetAttributes(span, "order_id", o.ID.String(), "items", len(o.Items))
	telemetry.SetOK(span)
	response := ToOrderResponse(o)
	return &response, false, nil
}

// persist inserts the placed order. A duplicate that is not an idempotent
// replay is an order number taken by a concurrent checkout, so the order is
// renumbered and inserted again. When a concurrent request with the same key
// won, its order is returned and this reservation released.
func (s *OrderService) persist(ctx context.Context, o *order.Order, userID uuid.UUID, key string) (*order.Order, error) {
	for attempt := 1; ; attempt++ {
		err := s.orderRepo.Create(ctx, o)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, shared.ErrAlreadyExists) {
			s.compensate(ctx, o.ID, err)
			return nil, fmt.Errorf("persist order: %w", err)
		}
		if key != "" {
			if existing, findErr := s.orderRepo.FindByIdempotencyKey(ctx, userID, key); findErr == nil {
				s.compensate(ctx, o.ID, err)
				return existing, nil
			}
		}
		if attempt == maxOrderNumberAttempts {
			s.compensate(ctx, o.ID, err)
			return nil, fmt.Errorf("persist order: order number still taken after %d attempts: %w", attempt, err)
		}

		number, genErr := s.orderRepo.GenerateOrderNumber(ctx)
		if genErr != nil {
			s.compensate(ctx, o.ID, genErr)
			return nil, fmt.Errorf("generate order number: %w", genErr)
		}
		s.logger.Debug("order number taken, renumbering",
			zap.String("order_id", o.ID.String()),
			zap.String("taken", o.OrderNumber),
			zap.String("next", number),
		)
		if renumberErr := o.Renumber(number); renumberErr != nil {
			s.compensate(ctx, o.ID, renumberErr)
			return nil, renumberErr
		}
	}
}

// requestedItems returns the explicit items, or the cart's lines when FromCart is set
func (s *OrderService) requestedItems(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) ([]PlaceOrderItem, error) {
	if !req.FromCart {
		if len(req.Items) == 0 {
			return nil, shared.NewDomainError("EMPTY_ORDER", "Order must have at least one item")
		}
		return req.Items, nil
	}
	if len(req.Items) > 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Items cannot be given together with from_cart")
	}
	if s.cartRepo == nil {
		return nil, shared.NewDomainError("CART_UNAVAILABLE", "Cart is not available")
	}
	c, err := s.cartRepo.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if c == nil || c.IsEmpty() {
		return nil, shared.NewDomainError("EMPTY_CART", "Cart is empty")
	}
	items := make([]PlaceOrderItem, len(c.Items))
	for i, line := range c.Items {
		items[i] = PlaceOrderItem{ProductID: line.ProductID, VariantID: line.VariantID, Quantity: line.Quantity}
	}
	return items, nil
}

// priceItems adds lines priced from the catalog
func (s *OrderService) priceItems(ctx context.Context, o *order.Order, items []PlaceOrderItem) error {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return shared.NewDomainError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", item.ProductID))
		}
		if !p.IsActive() {
			return shared.NewDomainError("PRODUCT_UNAVAILABLE", fmt.Sprintf("Product '%s' is not available", p.Name))
		}
		v := p.Variant(item.VariantID)
		if v == nil {
			return shared.NewDomainError("VARIANT_NOT_FOUND", fmt.Sprintf("Variant %s not found in product '%s'", item.VariantID, p.Name))
		}
		if err := o.AddItem(p.ID, v.ID, v.SKU, p.Name, v.Label(), p.EffectivePrice(v), item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// compensate releases a reservation whose order could not be persisted. A
// failed release is left to the reservation reconciler.
func (s *OrderService) compensate(ctx context.Context, orderID uuid.UUID, cause error) {
	err := s.stock.Release(context.WithoutCancel(ctx), orderID)
	if s.metrics != nil {
		s.metrics.RecordCompensation(ctx, err == nil)
	}
	if err != nil {
		s.logger.Error("failed to release stock after order failure",
			zap.String("order_id", orderID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("released stock after order failure",
		zap.String("order_id", orderID.String()),
		zap.NamedError("cause", cause),
	)
}

// removeFromCart drops the ordered variants from the user's cart. The order
// stands even when this fails.
func (s *OrderService) removeFromCart(ctx context.Context, userID uuid.UUID, o *order.Order) {
	c, err := s.cartRepo.FindByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load cart after order", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	for _, item := range o.Items {
		_ = c.RemoveItem(item.VariantID)
	}
	if err := s.cartRepo.Save(ctx, c); err != nil {
		s.logger.Warn("failed to clear cart after order",
			zap.String("user_id", userID.String()),
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
	}
}

// GetOrder returns an order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderResponse, error) {
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// ListOrders lists the actor's orders. Admins see every order and may filter by user.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) ([]OrderListItemResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := order.Filter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		},
		Status: order.Status(filter.Status),
		From:   filter.From,
		To:     filter.To,
	}
	if actor.IsAdmin {
		domainFilter.UserID = filter.UserID
	} else {
		userID := actor.UserID
		domainFilter.UserID = &userID
	}

	orders, total, err := s.orderRepo.List(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	items := make([]OrderListItemResponse, len(orders))
	for i := range orders {
		items[i] = ToOrderListItemResponse(&orders[i])
	}
	return items, total, nil
}

// CancelOrder cancels an order and returns its stock. Customers may cancel
// their own orders, admins any cancellable order. The release is attempted
// right away; the OrderCancelled handler retries it when that fails.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, req CancelOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "cancel")
	defer span.End()

	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	by := order.CancelledByCustomer
	if actor.IsAdmin && !o.IsOwnedBy(actor.UserID) {
		by = order.CancelledByAdmin
	}
	if err := o.Cancel(req.Reason, by); err != nil {
		return nil, err
	}
	if err := s.orderRepo.SaveWithLock(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCancelled(ctx, string(by))
	}

	if o.NeedsStockRelease() {
		if err := s.stock.Release(ctx, o.ID); err != nil {
			s.logger.Warn("stock release deferred to event handler",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
		} else {
			o.MarkStockReleased()
			if err := s.orderRepo.SaveWithLock(ctx, o); err != nil {
				// the ledger is already released; the flag catches up through the handler
				s.logger.Warn("failed to record stock release",
					zap.String("order_id", o.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", o.ID.String()),
		zap.String("cancelled_by", string(by)),
	)
	telemetry.SetOK(span)
	response := ToOrderResponse(o)
	return &response, nil
}

// UpdateStatus moves an order to PROCESSING, SHIPPED or DELIVERED
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, req UpdateStatusRequest) (*OrderResponse, error) {
	o, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.TransitionTo(order.Status(req.Status)); err != nil {
		return nil, err
	}
	if err := s.orderRepo.SaveWithLock(ctx, o); err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// MarkPaid records payment for an order
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	o, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.MarkPaid(); err != nil {
		return nil, err
	}
	if err := s.orderRepo.SaveWithLock(ctx, o); err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// load finds an order the actor may see. Other customers' orders read as not found.
func (s *OrderService) load(ctx context.Context, actor Actor, orderID uuid.UUID) (*order.Order, error) {
	o, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !o.IsOwnedBy(actor.UserID) {
		return nil, shared.ErrNotFound
	}
	return o, nil
}
