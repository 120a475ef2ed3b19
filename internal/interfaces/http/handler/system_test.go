package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{"no dependencies", nil, http.StatusOK, "healthy"},
		{
			"all up",
			[]HealthCheck{{Name: "database", Ping: ok}, {Name: "redis", Optional: true, Ping: ok}},
			http.StatusOK, "healthy",
		},
		{
			"optional down",
			[]HealthCheck{{Name: "database", Ping: ok}, {Name: "redis", Optional: true, Ping: down}},
			http.StatusOK, "degraded",
		},
		{
			"required down",
			[]HealthCheck{{Name: "database", Ping: down}, {Name: "redis", Optional: true, Ping: down}},
			http.StatusServiceUnavailable, "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("shopfront", "1.2.3", tt.checks...)
			r := gin.New()
			r.GET("/health", h.Health)

			resp := doRequest(t, r, http.MethodGet, "/health", nil)
			require.Equal(t, tt.wantCode, resp.Code)

			var health HealthResponse
			require.NoError(t, json.Unmarshal(resp.Body, &health))
			assert.Equal(t, tt.wantStatus, health.Status)
			for _, check := range tt.checks {
				assert.Contains(t, health.Checks, check.Name)
			}
		})
	}
}

func TestSystemHandler_InfoAndNotFound(t *testing.T) {
	h := NewSystemHandler("shopfront", "1.2.3")
	r := gin.New()
	r.GET("/system/info", h.GetSystemInfo)
	r.NoRoute(h.NotFound)

	resp := doRequest(t, r, http.MethodGet, "/system/info", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var info SystemInfoResponse
	resp.data(t, &info)
	assert.Equal(t, "shopfront", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotEmpty(t, info.GoVersion)

	resp = doRequest(t, r, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, dto.ErrCodeRouteNotFound, resp.errorCode())
}
