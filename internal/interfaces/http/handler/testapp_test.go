package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cartapp "github.com/shopfront/backend/internal/application/cart"
	catalogapp "github.com/shopfront/backend/internal/application/catalog"
	identityapp "github.com/shopfront/backend/internal/application/identity"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	orderapp "github.com/shopfront/backend/internal/application/order"
	reportapp "github.com/shopfront/backend/internal/application/report"
	supportapp "github.com/shopfront/backend/internal/application/support"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/shopfront/backend/internal/infrastructure/storage"
	"github.com/shopfront/backend/internal/interfaces/http/dto"
	"github.com/shopfront/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// testApp wires the real services over an in-memory sqlite database
type testApp struct {
	db        *persistence.Database
	jwt       *auth.JWTService
	blacklist *auth.InMemoryTokenBlacklist
	storage   *storage.MemoryStorage

	auth      *identityapp.AuthService
	users     *identityapp.UserService
	products  *catalogapp.ProductService
	images    *catalogapp.ImageService
	inventory *inventoryapp.InventoryService
	cart      *cartapp.CartService
	orders    *orderapp.OrderService
	chat      *supportapp.ChatService
	hub       *supportapp.Hub
	dashboard *reportapp.DashboardService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := persistence.OpenDialector(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate())

	log := zap.NewNop()
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                 "handler-test-secret-at-least-32-bytes",
		RefreshSecret:          "handler-test-refresh-secret-32-bytes",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "shopfront-test",
		MaxRefreshCount:        5,
	})
	blacklist := auth.NewInMemoryTokenBlacklist()

	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	cartRepo := persistence.NewGormCartRepository(db.DB)
	movementRepo := persistence.NewGormMovementRepository(db.DB)
	stockRepo := persistence.NewGormStockRepository(db.DB)

	inventory := inventoryapp.NewInventoryService(
		persistence.NewGormTransactionScope(db.DB, nil),
		movementRepo, stockRepo,
		inventoryapp.Options{LowStockThreshold: 5},
	)
	products := catalogapp.NewProductService(productRepo, inventory, orderRepo, log)
	mem := storage.NewMemoryStorage("http://storage.test")
	images := catalogapp.NewImageService(productRepo, mem, log)
	products.SetImageService(images)

	hub := supportapp.NewHub(10, log)
	t.Cleanup(hub.Close)

	return &testApp{
		db:        db,
		jwt:       jwtService,
		blacklist: blacklist,
		storage:   mem,
		auth:      identityapp.NewAuthService(userRepo, jwtService, blacklist, identityapp.DefaultAuthServiceConfig(), log),
		users:     identityapp.NewUserService(userRepo, jwtService, blacklist, log),
		products:  products,
		images:    images,
		inventory: inventory,
		cart:      cartapp.NewCartService(cartRepo, productRepo, "USD", log),
		orders: orderapp.NewOrderService(orderRepo, productRepo, cartRepo,
			orderapp.NewLocalStockGateway(inventory),
			orderapp.Config{Currency: "USD", ShippingFee: decimal.NewFromInt(5)}, log),
		chat:      supportapp.NewChatService(persistence.NewGormSupportRepository(db.DB), hub, nil, log),
		hub:       hub,
		dashboard: reportapp.NewDashboardService(persistence.NewGormReportRepository(db.DB), nil, reportapp.DefaultDashboardConfig(), log),
	}
}

// as authenticates every request of a test router as the given caller
func as(userID uuid.UUID, role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTUserIDKey, userID.String())
		c.Set(middleware.JWTRoleKey, string(role))
		c.Next()
	}
}

// signup registers a customer through the auth service
func (a *testApp) signup(t *testing.T, email string) uuid.UUID {
	t.Helper()
	resp, err := a.auth.Signup(context.Background(), identityapp.SignupRequest{
		Email:    email,
		Name:     "Test Customer",
		Password: "correct-horse-battery-9",
	})
	require.NoError(t, err)
	return resp.User.ID
}

// createProduct creates an active product with one variant per SKU, each
// holding stock units
func (a *testApp) createProduct(t *testing.T, name string, price int64, stock int, skus ...string) *catalogapp.ProductResponse {
	t.Helper()
	req := catalogapp.CreateProductRequest{
		Name:      name,
		Category:  "shirts",
		BasePrice: decimal.NewFromInt(price),
		Activate:  true,
	}
	for _, sku := range skus {
		req.Variants = append(req.Variants, catalogapp.CreateVariantRequest{SKU: sku, Size: "M", InitialStock: stock})
	}
	p, err := a.products.Create(context.Background(), req)
	require.NoError(t, err)
	return p
}

type testResponse struct {
	Code    int
	Header  http.Header
	Body    []byte
	Envelop dto.Response
}

// data decodes the envelope's data field into out
func (r testResponse) data(t *testing.T, out any) {
	t.Helper()
	raw, err := json.Marshal(r.Envelop.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (r testResponse) errorCode() string {
	if r.Envelop.Error == nil {
		return ""
	}
	return r.Envelop.Error.Code
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, headers ...string) testResponse {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := testResponse{Code: w.Code, Header: w.Header(), Body: w.Body.Bytes()}
	if len(resp.Body) > 0 && resp.Body[0] == '{' {
		_ = json.Unmarshal(resp.Body, &resp.Envelop)
	}
	return resp
}
