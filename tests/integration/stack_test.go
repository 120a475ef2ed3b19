package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cartapp "github.com/shopfront/backend/internal/application/cart"
	catalogapp "github.com/shopfront/backend/internal/application/catalog"
	eventapp "github.com/shopfront/backend/internal/application/event"
	identityapp "github.com/shopfront/backend/internal/application/identity"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	orderapp "github.com/shopfront/backend/internal/application/order"
	reportapp "github.com/shopfront/backend/internal/application/report"
	supportapp "github.com/shopfront/backend/internal/application/support"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/event"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/shopfront/backend/internal/infrastructure/storage"
	"github.com/shopfront/backend/internal/interfaces/http/handler"
	"github.com/shopfront/backend/internal/interfaces/http/middleware"
	"github.com/shopfront/backend/internal/interfaces/http/router"
	"github.com/shopfront/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testPassword     = "integration-pass-42"
	testServiceToken = "integration-service-token"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// stack is the HTTP API wired over a TestDB the same way the server wires
// it, minus the optional Redis, NATS and S3 backends.
type stack struct {
	db        *TestDB
	engine    *gin.Engine
	api       *testutil.APIClient
	users     *identityapp.UserService
	inventory *inventoryapp.InventoryService
	movements *persistence.GormMovementRepository
	orders    *persistence.GormOrderRepository
	outbox    *event.GormOutboxRepository
	bus       *event.InMemoryEventBus
	processor *event.OutboxProcessor
}

func newStack(t *testing.T, db *TestDB) *stack {
	t.Helper()

	log := zap.NewNop()
	serializer := event.NewEventSerializer()
	require.NoError(t, event.RegisterAllEvents(serializer))
	publisher := event.NewOutboxPublisher(serializer, 0)

	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	supportRepo := persistence.NewGormSupportRepository(db.DB)
	userRepo.SetOutboxEventSaver(publisher)
	productRepo.SetOutboxEventSaver(publisher)
	orderRepo.SetOutboxEventSaver(publisher)
	supportRepo.SetOutboxEventSaver(publisher)
	cartRepo := persistence.NewGormCartRepository(db.DB)
	movements := persistence.NewGormMovementRepository(db.DB)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                 "integration-secret-at-least-32-bytes",
		RefreshSecret:          "integration-refresh-secret-32-bytes!",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "shopfront-integration",
		MaxRefreshCount:        3,
	})
	blacklist := auth.NewInMemoryTokenBlacklist()
	authService := identityapp.NewAuthService(userRepo, jwtService, blacklist, identityapp.DefaultAuthServiceConfig(), log)
	users := identityapp.NewUserService(userRepo, jwtService, blacklist, log)

	inventory := inventoryapp.NewInventoryService(
		persistence.NewGormTransactionScope(db.DB, publisher),
		movements,
		persistence.NewGormStockRepository(db.DB),
		inventoryapp.Options{CASRetryAttempts: 10, LowStockThreshold: 2},
	)
	products := catalogapp.NewProductService(productRepo, inventory, orderRepo, log)
	images := catalogapp.NewImageService(productRepo, storage.NewMemoryStorage("http://storage.test"), log)
	products.SetImageService(images)

	orders := orderapp.NewOrderService(orderRepo, productRepo, cartRepo,
		orderapp.NewLocalStockGateway(inventory),
		orderapp.Config{Currency: "USD", ShippingFee: decimal.NewFromInt(5)}, log)

	hub := supportapp.NewHub(10, log)
	t.Cleanup(hub.Close)

	outboxRepo := event.NewGormOutboxRepository(db.DB)
	bus := event.NewInMemoryEventBus(log)
	processor := event.NewOutboxProcessor(outboxRepo, bus, serializer, event.OutboxProcessorConfig{
		BatchSize:    50,
		PollInterval: 20 * time.Millisecond,
	}, log)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.BodyLimit(1<<20))
	router.Mount(engine, router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		User:      handler.NewUserHandler(users),
		Product:   handler.NewProductHandler(products, images),
		Inventory: handler.NewInventoryHandler(inventory),
		Cart:      handler.NewCartHandler(cartapp.NewCartService(cartRepo, productRepo, "USD", log)),
		Order:     handler.NewOrderHandler(orders),
		Support: handler.NewSupportHandler(
			supportapp.NewChatService(supportRepo, hub, nil, log), time.Second, log),
		Report: handler.NewReportHandler(reportapp.NewDashboardService(
			persistence.NewGormReportRepository(db.DB), nil, reportapp.DefaultDashboardConfig(), log)),
		Outbox: handler.NewOutboxHandler(eventapp.NewOutboxService(outboxRepo, log)),
		System: handler.NewSystemHandler("shopfront", "test",
			handler.HealthCheck{Name: "database", Ping: db.Ping}),
	}, router.Security{
		JWT: middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
			JWTService:  jwtService,
			Revocations: authService,
			Logger:      log,
		}),
		OptionalJWT:  middleware.OptionalJWTAuthMiddleware(jwtService),
		ServiceToken: middleware.ServiceTokenAuth(testServiceToken),
	}, router.System{})

	return &stack{
		db:        db,
		engine:    engine,
		api:       testutil.NewAPIClient(t, engine),
		users:     users,
		inventory: inventory,
		movements: movements,
		orders:    orderRepo,
		outbox:    outboxRepo,
		bus:       bus,
		processor: processor,
	}
}

// signup registers a customer and returns their access token and ID.
func (s *stack) signup(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()

	var resp identityapp.AuthResponse
	s.api.Post("/api/v1/auth/signup", map[string]string{
		"email":    email,
		"name":     "Integration Customer",
		"password": testPassword,
	}).RequireStatus(http.StatusCreated).Decode(&resp)
	return resp.AccessToken, resp.User.ID
}

// adminToken creates an administrator and signs them in.
func (s *stack) adminToken(t *testing.T) string {
	t.Helper()

	email := "admin-" + uuid.NewString()[:8] + "@shop.test"
	_, err := s.users.CreateAdmin(context.Background(), identityapp.CreateAdminRequest{
		Email:    email,
		Name:     "Admin",
		Password: testPassword,
	})
	require.NoError(t, err)

	var resp identityapp.AuthResponse
	s.api.Post("/api/v1/auth/signin", map[string]string{
		"email":    email,
		"password": testPassword,
	}).RequireStatus(http.StatusOK).Decode(&resp)
	return resp.AccessToken
}

// createProduct creates an active product through the admin API with one
// variant per SKU.
func (s *stack) createProduct(t *testing.T, admin string, stock int, skus ...string) catalogapp.ProductResponse {
	t.Helper()

	variants := make([]map[string]any, 0, len(skus))
	for _, sku := range skus {
		variants = append(variants, map[string]any{"sku": sku, "size": "M", "color": "Red", "initial_stock": stock})
	}
	var product catalogapp.ProductResponse
	s.api.WithToken(admin).Post("/api/v1/catalog/products", map[string]any{
		"name":       "Integration Tee " + skus[0],
		"category":   "shirts",
		"base_price": "20.00",
		"activate":   true,
		"variants":   variants,
	}).RequireStatus(http.StatusCreated).Decode(&product)
	return product
}

// stockOf reads a variant's stock from the public catalog.
func (s *stack) stockOf(t *testing.T, productID, variantID uuid.UUID) int {
	t.Helper()

	var product catalogapp.ProductResponse
	s.api.Get("/api/v1/catalog/products/" + productID.String()).RequireStatus(http.StatusOK).Decode(&product)
	for _, v := range product.Variants {
		if v.ID == variantID {
			return v.Stock
		}
	}
	t.Fatalf("variant %s not found on product %s", variantID, productID)
	return 0
}

func shippingAddress() map[string]string {
	return map[string]string{
		"full_name":   "Ada Lovelace",
		"line1":       "12 Analytical Row",
		"city":        "London",
		"postal_code": "N1 9GU",
		"country":     "GB",
	}
}

func orderBody(productID, variantID uuid.UUID, qty int) map[string]any {
	return map[string]any{
		"items": []map[string]any{{
			"product_id": productID,
			"variant_id": variantID,
			"quantity":   qty,
		}},
		"shipping_address": shippingAddress(),
		"payment_method":   "COD",
	}
}
