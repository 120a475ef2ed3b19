package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/interfaces/http/dto"
	"github.com/shopfront/backend/internal/interfaces/http/handler"
	"github.com/shopfront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceToken = "orders-service-token"

// gatingHandlers has no services behind it. The tests only reach handlers
// through paths that answer before a service is called.
func gatingHandlers() Handlers {
	return Handlers{
		Auth:      handler.NewAuthHandler(nil),
		User:      handler.NewUserHandler(nil),
		Product:   handler.NewProductHandler(nil, nil),
		Inventory: handler.NewInventoryHandler(nil),
		Cart:      handler.NewCartHandler(nil),
		Order:     handler.NewOrderHandler(nil),
		Support:   handler.NewSupportHandler(nil, time.Second, nil),
		Report:    handler.NewReportHandler(nil),
		Outbox:    handler.NewOutboxHandler(nil),
		System:    handler.NewSystemHandler("shopfront", "test"),
	}
}

func newTestEngine(t *testing.T) (*gin.Engine, *auth.JWTService, *Router) {
	t.Helper()
	middleware.SetupValidator()
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                 "router-test-secret-at-least-32-bytes",
		RefreshSecret:          "router-test-refresh-secret-32-bytes!",
		AccessTokenExpiration:  time.Minute,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "shopfront-test",
		MaxRefreshCount:        1,
	})

	engine := gin.New()
	r := Mount(engine, gatingHandlers(), Security{
		JWT:          middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{JWTService: jwtService}),
		OptionalJWT:  middleware.OptionalJWTAuthMiddleware(jwtService),
		ServiceToken: middleware.ServiceTokenAuth(testServiceToken),
	}, System{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	return engine, jwtService, r
}

func bearer(t *testing.T, jwtService *auth.JWTService, role string) string {
	t.Helper()
	pair, err := jwtService.GenerateTokenPair(auth.GenerateTokenInput{
		UserID: uuid.New(),
		Email:  "someone@example.com",
		Role:   role,
	})
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func call(engine *gin.Engine, method, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestMount_AllRoutesRegistered(t *testing.T) {
	engine, _, r := newTestEngine(t)

	registered := make(map[Route]bool)
	for _, info := range engine.Routes() {
		registered[Route{Method: info.Method, Path: info.Path}] = true
	}

	for _, g := range DomainGroups(gatingHandlers(), Security{}) {
		for _, route := range g.Routes() {
			full := Route{Method: route.Method, Path: r.BasePath() + route.Path}
			assert.True(t, registered[full], "%s %s is not mounted", full.Method, full.Path)
		}
	}
	assert.True(t, registered[Route{Method: http.MethodGet, Path: "/health"}])
	assert.True(t, registered[Route{Method: http.MethodGet, Path: "/metrics"}])
}

func TestMount_WithoutOutbox(t *testing.T) {
	h := gatingHandlers()
	h.Outbox = nil
	for _, g := range DomainGroups(h, Security{}) {
		assert.NotEqual(t, "outbox", g.Name())
	}
}

func TestMount_Gating(t *testing.T) {
	engine, jwtService, _ := newTestEngine(t)
	customer := bearer(t, jwtService, "CUSTOMER")
	admin := bearer(t, jwtService, "ADMIN")
	service := "Bearer " + testServiceToken
	productID := uuid.NewString()

	tests := []struct {
		name          string
		method        string
		target        string
		authorization string
		wantCode      int
		wantError     string
	}{
		{"cart needs a token", http.MethodGet, "/api/v1/cart", "", http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"garbage token", http.MethodGet, "/api/v1/orders", "Bearer nope", http.StatusUnauthorized, ""},
		{"customer on admin catalog", http.MethodPost, "/api/v1/catalog/products", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"customer on dashboard", http.MethodGet, "/api/v1/reports/dashboard", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"customer on order status", http.MethodPut, "/api/v1/orders/" + productID + "/status", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"customer on users", http.MethodGet, "/api/v1/users", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"customer on outbox", http.MethodGet, "/api/v1/admin/outbox/stats", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"service token cannot edit stock", http.MethodPut, "/api/v1/inventory/products/" + productID + "/variants/" + productID + "/stock", service, http.StatusForbidden, dto.ErrCodeForbidden},
		{"service token reaches reservations", http.MethodPost, "/api/v1/inventory/reservations", service, http.StatusBadRequest, ""},
		{"admin reaches reservations", http.MethodPost, "/api/v1/inventory/reservations", admin, http.StatusBadRequest, ""},
		{"customer cannot reserve", http.MethodPost, "/api/v1/inventory/reservations", customer, http.StatusForbidden, dto.ErrCodeForbidden},
		{"service token is not a user session", http.MethodGet, "/api/v1/cart", service, http.StatusUnauthorized, ""},
		{"public product with bad id", http.MethodGet, "/api/v1/catalog/products/not-a-uuid", "", http.StatusBadRequest, ""},
		{"signup validation", http.MethodPost, "/api/v1/auth/signup", "", http.StatusBadRequest, ""},
		{"unknown route", http.MethodGet, "/api/v1/wishlist", customer, http.StatusNotFound, dto.ErrCodeRouteNotFound},
		{"health", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(engine, tt.method, tt.target, tt.authorization)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorCode(t, w))
			}
		})
	}
}

func TestMount_MetricsGuard(t *testing.T) {
	engine := gin.New()
	Mount(engine, gatingHandlers(), Security{}, System{
		Metrics:      http.NotFoundHandler(),
		MetricsPath:  "/internal/metrics",
		MetricsGuard: middleware.IPAllowlist([]string{"10.1.0.0/16"}),
	})

	w := call(engine, http.MethodGet, "/internal/metrics", "")
	assert.Equal(t, http.StatusForbidden, w.Code, "httptest requests come from 192.0.2.1")
}

func TestMount_AnnotateSeesCaller(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "router-test-secret-at-least-32-bytes",
		RefreshSecret:         "router-test-refresh-secret-32-bytes!",
		AccessTokenExpiration: time.Minute,
		Issuer:                "shopfront-test",
	})
	engine := gin.New()
	Mount(engine, gatingHandlers(), Security{
		JWT: middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{JWTService: jwtService}),
		Annotate: []gin.HandlerFunc{func(c *gin.Context) {
			role := middleware.GetJWTRole(c)
			if role == "" {
				role = "anonymous"
			}
			c.Header("X-Caller-Role", role)
			c.Next()
		}},
	}, System{})

	w := call(engine, http.MethodGet, "/api/v1/reports/dashboard", bearer(t, jwtService, "CUSTOMER"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("X-Caller-Role"), "role checks run first")

	w = call(engine, http.MethodPost, "/api/v1/auth/signup", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "anonymous", w.Header().Get("X-Caller-Role"))
}
