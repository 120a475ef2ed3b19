package order

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/domain/cart"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockOrderRepository is a mock implementation of order.Repository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*order.Order, error) {
	args := m.Called(ctx, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter order.Filter) ([]order.Order, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]order.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveWithLock(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ExistsByProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	args := m.Called(ctx, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) GenerateOrderNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.Product), args.Get(1).(int64), args.Error(2)
}

func (m *MockProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductRepository) ExistsBySlug(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, slug, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) ExistsBySKU(ctx context.Context, sku string, excludeVariantID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, sku, excludeVariantID)
	return args.Bool(0), args.Error(1)
}

// MockCartRepository is a mock implementation of cart.Repository
type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) Save(ctx context.Context, c *cart.Cart) error {
	return m.Called(ctx, c).Error(0)
}

// MockStockGateway is a mock implementation of StockGateway
type MockStockGateway struct {
	mock.Mock
}

func (m *MockStockGateway) Reserve(ctx context.Context, orderID uuid.UUID, lines []inventoryapp.ReservationLine) error {
	return m.Called(ctx, orderID, lines).Error(0)
}

func (m *MockStockGateway) Release(ctx context.Context, orderID uuid.UUID) error {
	return m.Called(ctx, orderID).Error(0)
}

type orderServiceFixture struct {
	svc      *OrderService
	orders   *MockOrderRepository
	products *MockProductRepository
	carts    *MockCartRepository
	stock    *MockStockGateway
}

func newOrderServiceFixture(t *testing.T, config Config) *orderServiceFixture {
	t.Helper()
	f := &orderServiceFixture{
		orders:   new(MockOrderRepository),
		products: new(MockProductRepository),
		carts:    new(MockCartRepository),
		stock:    new(MockStockGateway),
	}
	f.svc = NewOrderService(f.orders, f.products, f.carts, f.stock, config, zap.NewNop())
	t.Cleanup(func() {
		f.orders.AssertExpectations(t)
		f.products.AssertExpectations(t)
		f.carts.AssertExpectations(t)
		f.stock.AssertExpectations(t)
	})
	return f
}

func defaultOrderConfig() Config {
	threshold := decimal.NewFromInt(100)
	return Config{
		Currency:              "USD",
		ShippingFee:           decimal.NewFromInt(5),
		FreeShippingThreshold: &threshold,
	}
}

func newActiveProduct(t *testing.T, price int64, skus ...string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct("Canvas Tote", "Heavy canvas", "bags", "Acme", decimal.NewFromInt(price))
	require.NoError(t, err)
	for _, sku := range skus {
		_, err := p.AddVariant(sku, "", sku, nil)
		require.NoError(t, err)
	}
	require.NoError(t, p.Activate())
	return p
}

func testAddress() AddressRequest {
	return AddressRequest{
		FullName:   "Dana Reyes",
		Line1:      "12 Harbor Road",
		City:       "Portland",
		PostalCode: "97201",
		Country:    "US",
	}
}

func placedOrder(t *testing.T, userID uuid.UUID, method order.PaymentMethod) *order.Order {
	t.Helper()
	o, err := order.NewOrder(userID, "ORD-2026-00001", testAddress().ToAddress(), method, "USD")
	require.NoError(t, err)
	require.NoError(t, o.AddItem(uuid.New(), uuid.New(), "TOTE-1", "Canvas Tote", "natural", decimal.NewFromInt(20), 2))
	require.NoError(t, o.Place())
	o.ClearDomainEvents()
	o.MarkPersisted()
	return o
}

func TestOrderService_PlaceOrder(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	product := newActiveProduct(t, 30, "TOTE-RED", "TOTE-BLUE")
	red, blue := product.Variants[0], product.Variants[1]

	f.orders.On("FindByIdempotencyKey", mock.Anything, userID, "key-1").Return(nil, shared.ErrNotFound).Once()
	f.products.On("FindByIDs", mock.Anything, []uuid.UUID{product.ID}).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00007", nil)
	f.stock.On("Reserve", mock.Anything, mock.AnythingOfType("uuid.UUID"), []inventoryapp.ReservationLine{
		{ProductID: product.ID, VariantID: red.ID, Quantity: 3},
		{ProductID: product.ID, VariantID: blue.ID, Quantity: 1},
	}).Return(nil)
	var created *order.Order
	f.orders.On("Create", mock.Anything, mock.AnythingOfType("*order.Order")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*order.Order) }).
		Return(nil)

	resp, replayed, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		Items: []PlaceOrderItem{
			{ProductID: product.ID, VariantID: red.ID, Quantity: 2},
			{ProductID: product.ID, VariantID: blue.ID, Quantity: 1},
			{ProductID: product.ID, VariantID: red.ID, Quantity: 1},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
		Notes:           "  leave at the door ",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "ORD-2026-00007", resp.OrderNumber)
	assert.Len(t, resp.Items, 2)
	assert.True(t, decimal.NewFromInt(120).Equal(resp.Subtotal))
	assert.True(t, resp.ShippingFee.IsZero(), "subtotal above the threshold ships free")
	assert.True(t, decimal.NewFromInt(120).Equal(resp.Total))
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "UNPAID", resp.PaymentStatus)
	assert.Equal(t, "leave at the door", resp.Notes)

	require.NotNil(t, created)
	assert.True(t, created.StockReserved)
	require.NotNil(t, created.IdempotencyKey)
	assert.Equal(t, "key-1", *created.IdempotencyKey)
	f.stock.AssertCalled(t, "Reserve", mock.Anything, created.ID, mock.Anything)
	f.stock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_ShippingFeeBelowThreshold(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	product := newActiveProduct(t, 30, "TOTE-RED")

	f.products.On("FindByIDs", mock.Anything, []uuid.UUID{product.ID}).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00008", nil)
	f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(nil)

	resp, _, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "CARD",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(resp.ShippingFee))
	assert.True(t, decimal.NewFromInt(35).Equal(resp.Total))
	f.orders.AssertNotCalled(t, "FindByIdempotencyKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_Replay(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	existing := placedOrder(t, userID, order.PaymentMethodCOD)

	f.orders.On("FindByIdempotencyKey", mock.Anything, userID, "key-1").Return(existing, nil)

	resp, replayed, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		Items:           []PlaceOrderItem{{ProductID: uuid.New(), VariantID: uuid.New(), Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, existing.ID, resp.ID)
	f.stock.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_InsufficientStock(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	product := newActiveProduct(t, 30, "TOTE-RED")

	f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00009", nil)
	f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).
		Return(shared.NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock for TOTE-RED"))

	_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 5}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
	})
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.stock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_CompensatesWhenPersistFails(t *testing.T) {
	tests := []struct {
		name       string
		releaseErr error
	}{
		{name: "release succeeds"},
		{name: "release fails and is left to the reconciler", releaseErr: errors.New("inventory unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, defaultOrderConfig())
			product := newActiveProduct(t, 30, "TOTE-RED")

			f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
			f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00010", nil)
			var reservedFor uuid.UUID
			f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { reservedFor = args.Get(1).(uuid.UUID) }).
				Return(nil)
			f.orders.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
			f.stock.On("Release", mock.Anything, mock.Anything).Return(tt.releaseErr)

			_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
				Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
				ShippingAddress: testAddress(),
				PaymentMethod:   "COD",
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "connection reset")
			f.stock.AssertCalled(t, "Release", mock.Anything, reservedFor)
		})
	}
}

func TestOrderService_PlaceOrder_ConcurrentSameKey(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	product := newActiveProduct(t, 30, "TOTE-RED")
	winner := placedOrder(t, userID, order.PaymentMethodCOD)

	f.orders.On("FindByIdempotencyKey", mock.Anything, userID, "key-1").Return(nil, shared.ErrNotFound).Once()
	f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00011", nil)
	f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists)
	f.stock.On("Release", mock.Anything, mock.Anything).Return(nil)
	f.orders.On("FindByIdempotencyKey", mock.Anything, userID, "key-1").Return(winner, nil).Once()

	resp, replayed, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, winner.ID, resp.ID)
}

func TestOrderService_PlaceOrder_OrderNumberTaken(t *testing.T) {
	t.Run("renumbers and inserts again", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		userID := uuid.New()
		product := newActiveProduct(t, 30, "TOTE-RED")

		f.orders.On("FindByIdempotencyKey", mock.Anything, userID, "key-2").Return(nil, shared.ErrNotFound)
		f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
		f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00020", nil).Once()
		f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00021", nil).Once()
		f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.orders.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists).Once()
		var created *order.Order
		f.orders.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created = args.Get(1).(*order.Order) }).
			Return(nil).Once()

		resp, replayed, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
			Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
			ShippingAddress: testAddress(),
			PaymentMethod:   "COD",
			IdempotencyKey:  "key-2",
		})
		require.NoError(t, err)
		assert.False(t, replayed)
		assert.Equal(t, "ORD-2026-00021", resp.OrderNumber)
		require.NotNil(t, created)
		placed := created.GetDomainEvents()[0].(*order.OrderPlacedEvent)
		assert.Equal(t, "ORD-2026-00021", placed.OrderNumber)
		f.stock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("gives up and releases after repeated collisions", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		product := newActiveProduct(t, 30, "TOTE-RED")

		f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
		f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00030", nil)
		f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.orders.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists)
		f.stock.On("Release", mock.Anything, mock.Anything).Return(nil).Once()

		_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
			Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
			ShippingAddress: testAddress(),
			PaymentMethod:   "COD",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		f.orders.AssertNumberOfCalls(t, "Create", maxOrderNumberAttempts)
		f.orders.AssertNumberOfCalls(t, "GenerateOrderNumber", maxOrderNumberAttempts)
	})
}

func TestOrderService_PlaceOrder_ReserveFailureReleases(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	product := newActiveProduct(t, 30, "TOTE-RED")

	f.products.On("FindByIDs", mock.Anything, mock.Anything).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00014", nil)
	var reservedFor uuid.UUID
	f.stock.On("Reserve", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { reservedFor = args.Get(1).(uuid.UUID) }).
		Return(errors.New("context deadline exceeded"))
	f.stock.On("Release", mock.Anything, mock.Anything).Return(nil).Once()

	_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []PlaceOrderItem{{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
	f.stock.AssertCalled(t, "Release", mock.Anything, reservedFor)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_Rejections(t *testing.T) {
	product := newActiveProduct(t, 30, "TOTE-RED")
	inactive, err := catalog.NewProduct("Archived Tote", "", "bags", "Acme", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = inactive.AddVariant("OLD-1", "", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		products []catalog.Product
		item     func() PlaceOrderItem
		code     string
	}{
		{
			name:     "inactive product",
			products: []catalog.Product{*inactive},
			item: func() PlaceOrderItem {
				return PlaceOrderItem{ProductID: inactive.ID, VariantID: inactive.Variants[0].ID, Quantity: 1}
			},
			code: "PRODUCT_UNAVAILABLE",
		},
		{
			name:     "unknown product",
			products: []catalog.Product{},
			item: func() PlaceOrderItem {
				return PlaceOrderItem{ProductID: uuid.New(), VariantID: uuid.New(), Quantity: 1}
			},
			code: "PRODUCT_NOT_FOUND",
		},
		{
			name:     "variant of another product",
			products: []catalog.Product{*product},
			item: func() PlaceOrderItem {
				return PlaceOrderItem{ProductID: product.ID, VariantID: uuid.New(), Quantity: 1}
			},
			code: "VARIANT_NOT_FOUND",
		},
		{
			name:     "quantity over the line cap",
			products: []catalog.Product{*product},
			item: func() PlaceOrderItem {
				return PlaceOrderItem{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: order.MaxItemQuantity + 1}
			},
			code: "INVALID_QUANTITY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, defaultOrderConfig())
			f.products.On("FindByIDs", mock.Anything, mock.Anything).Return(tt.products, nil)
			f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00012", nil)

			_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
				Items:           []PlaceOrderItem{tt.item()},
				ShippingAddress: testAddress(),
				PaymentMethod:   "COD",
			})
			var domainErr *shared.DomainError
			require.True(t, errors.As(err, &domainErr), "got %v", err)
			assert.Equal(t, tt.code, domainErr.Code)
			f.stock.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrderService_PlaceOrder_EmptyRequest(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())

	_, _, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
	})
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "EMPTY_ORDER", domainErr.Code)
}

func TestOrderService_PlaceOrder_FromCart(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	product := newActiveProduct(t, 30, "TOTE-RED", "TOTE-BLUE")

	c := cart.NewCart(userID)
	_, err := c.AddItem(product.ID, product.Variants[0].ID, 2)
	require.NoError(t, err)
	c.MarkPersisted()

	f.carts.On("FindByUser", mock.Anything, userID).Return(c, nil)
	f.products.On("FindByIDs", mock.Anything, []uuid.UUID{product.ID}).Return([]catalog.Product{*product}, nil)
	f.orders.On("GenerateOrderNumber", mock.Anything).Return("ORD-2026-00013", nil)
	f.stock.On("Reserve", mock.Anything, mock.Anything, []inventoryapp.ReservationLine{
		{ProductID: product.ID, VariantID: product.Variants[0].ID, Quantity: 2},
	}).Return(nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.carts.On("Save", mock.Anything, c).Return(nil)

	resp, _, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		FromCart:        true,
		ShippingAddress: testAddress(),
		PaymentMethod:   "CARD",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 1)
	assert.True(t, c.IsEmpty())
}

func TestOrderService_PlaceOrder_EmptyCart(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	userID := uuid.New()
	f.carts.On("FindByUser", mock.Anything, userID).Return(nil, shared.ErrNotFound)

	_, _, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		FromCart:        true,
		ShippingAddress: testAddress(),
		PaymentMethod:   "CARD",
	})
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "EMPTY_CART", domainErr.Code)
}

func TestOrderService_CancelOrder(t *testing.T) {
	t.Run("owner cancels and stock is released", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		userID := uuid.New()
		o := placedOrder(t, userID, order.PaymentMethodCOD)

		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)
		f.orders.On("SaveWithLock", mock.Anything, o).Return(nil).Twice()
		f.stock.On("Release", mock.Anything, o.ID).Return(nil)

		resp, err := f.svc.CancelOrder(context.Background(), Actor{UserID: userID}, o.ID, CancelOrderRequest{Reason: "changed my mind"})
		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", resp.Status)
		assert.Equal(t, "CUSTOMER", resp.CancelledBy)
		assert.True(t, resp.StockReleased)
	})

	t.Run("admin cancels a paid order", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		o := placedOrder(t, uuid.New(), order.PaymentMethodCard)
		require.NoError(t, o.MarkPaid())
		o.ClearDomainEvents()
		o.MarkPersisted()

		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)
		f.orders.On("SaveWithLock", mock.Anything, o).Return(nil)
		f.stock.On("Release", mock.Anything, o.ID).Return(nil)

		resp, err := f.svc.CancelOrder(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, o.ID, CancelOrderRequest{Reason: "fraud check"})
		require.NoError(t, err)
		assert.Equal(t, "ADMIN", resp.CancelledBy)
		assert.Equal(t, "REFUNDED", resp.PaymentStatus)
	})

	t.Run("another customer's order reads as not found", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		o := placedOrder(t, uuid.New(), order.PaymentMethodCOD)
		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)

		_, err := f.svc.CancelOrder(context.Background(), Actor{UserID: uuid.New()}, o.ID, CancelOrderRequest{Reason: "nope"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		f.orders.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("release failure leaves it to the event handler", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		userID := uuid.New()
		o := placedOrder(t, userID, order.PaymentMethodCOD)

		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)
		f.orders.On("SaveWithLock", mock.Anything, o).Return(nil).Once()
		f.stock.On("Release", mock.Anything, o.ID).Return(errors.New("timeout"))

		resp, err := f.svc.CancelOrder(context.Background(), Actor{UserID: userID}, o.ID, CancelOrderRequest{Reason: "late"})
		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", resp.Status)
		assert.False(t, resp.StockReleased)
	})

	t.Run("shipped order cannot be cancelled", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		userID := uuid.New()
		o := placedOrder(t, userID, order.PaymentMethodCOD)
		require.NoError(t, o.TransitionTo(order.StatusProcessing))
		require.NoError(t, o.TransitionTo(order.StatusShipped))
		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)

		_, err := f.svc.CancelOrder(context.Background(), Actor{UserID: userID}, o.ID, CancelOrderRequest{Reason: "too slow"})
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("concurrent modification surfaces", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		userID := uuid.New()
		o := placedOrder(t, userID, order.PaymentMethodCOD)
		f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)
		f.orders.On("SaveWithLock", mock.Anything, o).Return(shared.ErrConcurrencyConflict)

		_, err := f.svc.CancelOrder(context.Background(), Actor{UserID: userID}, o.ID, CancelOrderRequest{Reason: "oops"})
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		f.stock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})
}

func TestOrderService_UpdateStatus(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	o := placedOrder(t, uuid.New(), order.PaymentMethodCOD)
	ctx := context.Background()

	f.orders.On("FindByID", ctx, o.ID).Return(o, nil)
	f.orders.On("SaveWithLock", ctx, o).Return(nil)

	for _, status := range []string{"PROCESSING", "SHIPPED", "DELIVERED"} {
		resp, err := f.svc.UpdateStatus(ctx, o.ID, UpdateStatusRequest{Status: status})
		require.NoError(t, err)
		assert.Equal(t, status, resp.Status)
	}
	assert.Equal(t, "PAID", string(o.PaymentStatus), "cash on delivery is paid when delivered")

	_, err := f.svc.UpdateStatus(ctx, o.ID, UpdateStatusRequest{Status: "PROCESSING"})
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestOrderService_MarkPaid(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	o := placedOrder(t, uuid.New(), order.PaymentMethodCard)
	ctx := context.Background()

	f.orders.On("FindByID", ctx, o.ID).Return(o, nil)
	f.orders.On("SaveWithLock", ctx, o).Return(nil).Once()

	resp, err := f.svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", resp.PaymentStatus)
	assert.NotNil(t, resp.PaidAt)

	_, err = f.svc.MarkPaid(ctx, o.ID)
	assert.Error(t, err)
}

func TestOrderService_ListOrders(t *testing.T) {
	customerID := uuid.New()
	other := uuid.New()
	o := placedOrder(t, customerID, order.PaymentMethodCOD)

	t.Run("customers only see their own", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		f.orders.On("List", mock.Anything, mock.MatchedBy(func(filter order.Filter) bool {
			return filter.UserID != nil && *filter.UserID == customerID &&
				filter.Page == 1 && filter.PageSize == 20 && filter.OrderBy == "created_at" && filter.OrderDir == "desc"
		})).Return([]order.Order{*o}, int64(1), nil)

		items, total, err := f.svc.ListOrders(context.Background(), Actor{UserID: customerID}, OrderListFilter{UserID: &other})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, 1, items[0].ItemCount)
		assert.Equal(t, 2, items[0].TotalQuantity)
	})

	t.Run("admins filter by user and status", func(t *testing.T) {
		f := newOrderServiceFixture(t, defaultOrderConfig())
		f.orders.On("List", mock.Anything, mock.MatchedBy(func(filter order.Filter) bool {
			return filter.UserID != nil && *filter.UserID == other && filter.Status == order.StatusPending
		})).Return([]order.Order{}, int64(0), nil)

		items, total, err := f.svc.ListOrders(context.Background(), Actor{UserID: customerID, IsAdmin: true},
			OrderListFilter{UserID: &other, Status: "PENDING"})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})
}

func TestOrderService_GetOrder(t *testing.T) {
	f := newOrderServiceFixture(t, defaultOrderConfig())
	ownerID := uuid.New()
	o := placedOrder(t, ownerID, order.PaymentMethodCOD)
	f.orders.On("FindByID", mock.Anything, o.ID).Return(o, nil)

	resp, err := f.svc.GetOrder(context.Background(), Actor{UserID: ownerID}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, resp.OrderNumber)

	_, err = f.svc.GetOrder(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, o.ID)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), Actor{UserID: uuid.New()}, o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConfig_ShippingFeeFor(t *testing.T) {
	config := defaultOrderConfig()
	assert.True(t, decimal.NewFromInt(5).Equal(config.ShippingFeeFor(decimal.NewFromInt(99))))
	assert.True(t, config.ShippingFeeFor(decimal.NewFromInt(100)).IsZero())

	config.FreeShippingThreshold = nil
	assert.True(t, decimal.NewFromInt(5).Equal(config.ShippingFeeFor(decimal.NewFromInt(1000))))
}
