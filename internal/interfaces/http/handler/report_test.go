package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	eventapp "github.com/shopfront/backend/internal/application/event"
	orderapp "github.com/shopfront/backend/internal/application/order"
	"github.com/shopfront/backend/internal/domain/report"
	"github.com/shopfront/backend/internal/domain/shared"
	infraevent "github.com/shopfront/backend/internal/infrastructure/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReportHandler_Dashboard(t *testing.T) {
	app := newTestApp(t)
	r := gin.New()
	r.GET("/reports/dashboard", NewReportHandler(app.dashboard).Dashboard)

	userID := app.signup(t, "shopper@example.com")
	p := app.createProduct(t, "Trench Coat", 150, 5, "TRENCH-M")
	for range 2 {
		_, _, err := app.orders.PlaceOrder(context.Background(), userID, orderapp.PlaceOrderRequest{
			Items:           []orderapp.PlaceOrderItem{{ProductID: p.ID, VariantID: p.Variants[0].ID, Quantity: 1}},
			ShippingAddress: orderapp.AddressRequest{FullName: "A", Line1: "1 Road", City: "Leeds", PostalCode: "LS1", Country: "GB"},
			PaymentMethod:   "CARD",
		})
		require.NoError(t, err)
	}

	resp := doRequest(t, r, http.MethodGet, "/reports/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Body))
	var dashboard report.Dashboard
	resp.data(t, &dashboard)
	assert.Equal(t, int64(2), dashboard.Summary.OrderCount)
	assert.True(t, decimal.NewFromInt(310).Equal(dashboard.Summary.Revenue), dashboard.Summary.Revenue.String())
	require.Len(t, dashboard.TopProducts, 1)
	assert.Equal(t, int64(2), dashboard.TopProducts[0].Quantity)
	assert.NotEmpty(t, dashboard.Series)

	t.Run("reversed range", func(t *testing.T) {
		resp := doRequest(t, r, http.MethodGet, "/reports/dashboard?from=2026-05-10&to=2026-05-01", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "INVALID_RANGE", resp.errorCode())
	})

	t.Run("unknown granularity", func(t *testing.T) {
		resp := doRequest(t, r, http.MethodGet, "/reports/dashboard?granularity=week", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

type testEvent struct {
	shared.BaseDomainEvent
}

func TestOutboxHandler(t *testing.T) {
	app := newTestApp(t)
	repo := infraevent.NewGormOutboxRepository(app.db.DB)
	h := NewOutboxHandler(eventapp.NewOutboxService(repo, zap.NewNop()))

	r := gin.New()
	admin := r.Group("/admin/outbox")
	admin.GET("/dead", h.GetDeadLetterEntries)
	admin.GET("/stats", h.GetStats)
	admin.GET("/entries/:id", h.GetEntry)
	admin.POST("/entries/:id/retry", h.RetryDeadEntry)
	admin.POST("/dead/retry-all", h.RetryAllDeadEntries)

	ctx := context.Background()
	dead := make([]*shared.OutboxEntry, 3)
	for i := range dead {
		evt := testEvent{shared.NewBaseDomainEvent("OrderPlaced", "Order", uuid.New())}
		entry := shared.NewOutboxEntry(&evt, []byte(`{"order":"x"}`))
		entry.Status = shared.OutboxStatusDead
		entry.LastError = "nats: no responders"
		dead[i] = entry
	}
	require.NoError(t, repo.Save(ctx, dead...))

	resp := doRequest(t, r, http.MethodGet, "/admin/outbox/dead?page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Body))
	assert.Equal(t, int64(3), resp.Envelop.Meta.Total)
	assert.Equal(t, 2, resp.Envelop.Meta.TotalPages)

	resp = doRequest(t, r, http.MethodGet, "/admin/outbox/entries/"+dead[0].ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, r, http.MethodPost, "/admin/outbox/entries/"+dead[0].ID.String()+"/retry", nil)
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Body))

	resp = doRequest(t, r, http.MethodPost, "/admin/outbox/entries/"+dead[0].ID.String()+"/retry", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "only dead entries can be retried")

	resp = doRequest(t, r, http.MethodPost, "/admin/outbox/dead/retry-all", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var retried RetryAllResponse
	resp.data(t, &retried)
	assert.Equal(t, int64(2), retried.Count)

	resp = doRequest(t, r, http.MethodGet, "/admin/outbox/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var stats eventapp.OutboxStatsDTO
	resp.data(t, &stats)
	assert.Equal(t, int64(3), stats.Pending)
	assert.Zero(t, stats.Dead)

	resp = doRequest(t, r, http.MethodGet, "/admin/outbox/entries/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
