package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPAllowlist(t *testing.T) {
	tests := []struct {
		name       string
		entries    []string
		remoteAddr string
		want       int
	}{
		{"empty list allows all", nil, "203.0.113.9:5000", http.StatusOK},
		{"exact ip", []string{"10.0.0.7"}, "10.0.0.7:5000", http.StatusOK},
		{"cidr", []string{"10.1.0.0/16"}, "10.1.44.2:5000", http.StatusOK},
		{"outside cidr", []string{"10.1.0.0/16"}, "10.2.0.1:5000", http.StatusForbidden},
		{"ipv6 loopback", []string{"::1"}, "[::1]:5000", http.StatusOK},
		{"garbage entries only", []string{"not-an-ip", "300.0.0.0/8"}, "198.51.100.1:5000", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/metrics", IPAllowlist(tt.entries), okHandler)

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}
