package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderapp "github.com/shopfront/backend/internal/application/order"
	"github.com/shopfront/backend/internal/interfaces/http/dto"
)

// OrderHandler handles order placement and the order lifecycle
type OrderHandler struct {
	BaseHandler
	orderService *orderapp.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService *orderapp.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) actor(c *gin.Context) (orderapp.Actor, bool) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return orderapp.Actor{}, false
	}
	return orderapp.Actor{UserID: userID, IsAdmin: isAdmin(c)}, true
}

// PlaceOrder handles POST /orders. A request repeating an Idempotency-Key
// returns the order the first request created with 200 instead of 201.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	var req orderapp.PlaceOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	result, replayed, err := h.orderService.PlaceOrder(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, dto.NewSuccessResponse(result))
		return
	}
	h.Created(c, result)
}

// ListOrders handles GET /orders. Customers only see their own orders.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter orderapp.OrderListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, orders, total, page, pageSize)
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.orderService.GetOrder(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	// the body is optional
	var req orderapp.CancelOrderRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	result, err := h.orderService.CancelOrder(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// UpdateStatus handles PUT /orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req orderapp.UpdateStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.orderService.UpdateStatus(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// MarkPaid handles POST /orders/:id/pay
func (h *OrderHandler) MarkPaid(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.orderService.MarkPaid(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
