package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-key-at-least-32-chars",
		RefreshSecret:          "test-refresh-secret-key-32-chars",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 7 * 24 * time.Hour,
		Issuer:                 "shopfront-test",
		MaxRefreshCount:        10,
	})
}

func newTestTokenPair(t *testing.T, jwtService *auth.JWTService, role string) (*auth.TokenPair, auth.GenerateTokenInput) {
	t.Helper()
	input := auth.GenerateTokenInput{
		UserID: uuid.New(),
		Email:  "ada@example.com",
		Role:   role,
	}
	pair, err := jwtService.GenerateTokenPair(input)
	require.NoError(t, err)
	return pair, input
}

type stubRevocations struct {
	revoked bool
	err     error
	calls   int
}

func (s *stubRevocations) IsTokenRevoked(context.Context, *auth.Claims) (bool, error) {
	s.calls++
	return s.revoked, s.err
}

func serve(router *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(AuthHeaderKey, BearerPrefix+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService()
	pair, input := newTestTokenPair(t, jwtService, "CUSTOMER")

	newRouter := func(rev RevocationChecker) *gin.Engine {
		router := gin.New()
		router.Use(JWTAuthMiddleware(JWTMiddlewareConfig{JWTService: jwtService, Revocations: rev}))
		router.GET("/me", func(c *gin.Context) {
			claims := GetJWTClaims(c)
			require.NotNil(t, claims)
			c.JSON(http.StatusOK, gin.H{"user_id": GetJWTUserID(c), "role": GetJWTRole(c)})
		})
		return router
	}

	t.Run("valid token", func(t *testing.T) {
		w := serve(newRouter(nil), http.MethodGet, "/me", pair.AccessToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":"`+input.UserID.String()+`","role":"CUSTOMER"}`, w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(newRouter(nil), http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
	})

	t.Run("malformed token", func(t *testing.T) {
		w := serve(newRouter(nil), http.MethodGet, "/me", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"TOKEN_INVALID"`)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		w := serve(newRouter(nil), http.MethodGet, "/me", pair.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"TOKEN_INVALID"`)
	})

	t.Run("revoked token", func(t *testing.T) {
		rev := &stubRevocations{revoked: true}
		w := serve(newRouter(rev), http.MethodGet, "/me", pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"TOKEN_REVOKED"`)
		assert.Equal(t, 1, rev.calls)
	})

	t.Run("revocation lookup failure lets the request through", func(t *testing.T) {
		rev := &stubRevocations{err: errors.New("redis: connection refused")}
		w := serve(newRouter(rev), http.MethodGet, "/me", pair.AccessToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestJWTAuthMiddleware_ExpiredToken(t *testing.T) {
	expiring := auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-key-at-least-32-chars",
		AccessTokenExpiration:  time.Millisecond,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "shopfront-test",
	})
	pair, _ := newTestTokenPair(t, expiring, "CUSTOMER")
	time.Sleep(1100 * time.Millisecond)

	router := gin.New()
	router.Use(JWTAuthMiddleware(JWTMiddlewareConfig{JWTService: expiring}))
	router.GET("/me", okHandler)

	w := serve(router, http.MethodGet, "/me", pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"TOKEN_EXPIRED"`)
}

func TestOptionalJWTAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService()
	pair, input := newTestTokenPair(t, jwtService, "ADMIN")

	router := gin.New()
	router.Use(OptionalJWTAuthMiddleware(jwtService))
	router.GET("/products", func(c *gin.Context) {
		c.String(http.StatusOK, GetJWTUserID(c))
	})

	assert.Equal(t, input.UserID.String(), serve(router, http.MethodGet, "/products", pair.AccessToken).Body.String())
	assert.Empty(t, serve(router, http.MethodGet, "/products", "").Body.String())

	w := serve(router, http.MethodGet, "/products", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	jwtService := newTestJWTService()
	admin, _ := newTestTokenPair(t, jwtService, "ADMIN")
	customer, _ := newTestTokenPair(t, jwtService, "CUSTOMER")

	router := gin.New()
	router.Use(JWTAuthMiddleware(JWTMiddlewareConfig{JWTService: jwtService}))
	router.GET("/reports/dashboard", RequireRole("ADMIN"), okHandler)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/reports/dashboard", admin.AccessToken).Code)

	w := serve(router, http.MethodGet, "/reports/dashboard", customer.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"FORBIDDEN"`)
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	router := gin.New()
	router.GET("/users", RequireRole("ADMIN"), okHandler)

	w := serve(router, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServiceTokenAuth(t *testing.T) {
	jwtService := newTestJWTService()
	admin, _ := newTestTokenPair(t, jwtService, "ADMIN")
	customer, _ := newTestTokenPair(t, jwtService, "CUSTOMER")

	router := gin.New()
	router.Use(
		ServiceTokenAuth("svc-secret"),
		JWTAuthMiddleware(JWTMiddlewareConfig{JWTService: jwtService}),
		RequireRole("ADMIN", ServiceRole),
	)
	router.POST("/inventory/reservations", func(c *gin.Context) {
		if IsServiceCall(c) {
			c.String(http.StatusOK, "service")
			return
		}
		c.String(http.StatusOK, "user")
	})

	tests := []struct {
		name       string
		bearer     string
		wantStatus int
		wantBody   string
	}{
		{"service token", "svc-secret", http.StatusOK, "service"},
		{"admin jwt", admin.AccessToken, http.StatusOK, "user"},
		{"customer jwt", customer.AccessToken, http.StatusForbidden, ""},
		{"wrong service token", "svc-secreT", http.StatusUnauthorized, ""},
		{"no credentials", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/inventory/reservations", tt.bearer)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestServiceTokenAuth_EmptyTokenDisabled(t *testing.T) {
	router := gin.New()
	router.Use(ServiceTokenAuth(""))
	router.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, "%v", IsServiceCall(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(AuthHeaderKey, "Bearer ")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "false", w.Body.String())
}
