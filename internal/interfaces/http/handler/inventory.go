package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/interfaces/http/middleware"
)

// InventoryHandler handles stock ledger endpoints. Manual changes need an
// Idempotency-Key header; a replayed key answers with the stored movements.
type InventoryHandler struct {
	BaseHandler
	inventoryService *inventoryapp.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventoryService *inventoryapp.InventoryService) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
	}
}

// UpdateVariantStock handles PUT /inventory/products/:id/variants/:variantId/stock
func (h *InventoryHandler) UpdateVariantStock(c *gin.Context) {
	productID, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	variantID, ok := h.ParamUUID(c, "variantId")
	if !ok {
		return
	}
	var req inventoryapp.UpdateVariantStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	result, err := h.inventoryService.UpdateVariantStock(c.Request.Context(), productID, variantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// BatchUpdateStock handles POST /inventory/stock/batch. All lines apply or none do.
func (h *InventoryHandler) BatchUpdateStock(c *gin.Context) {
	var req inventoryapp.BatchStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	result, err := h.inventoryService.UpdateMultipleProductsStock(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListMovements handles GET /inventory/movements
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	var filter inventoryapp.MovementListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	page, err := h.inventoryService.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// LowStock handles GET /inventory/low-stock?threshold=&limit=
func (h *InventoryHandler) LowStock(c *gin.Context) {
	items, err := h.inventoryService.LowStock(c.Request.Context(),
		queryInt(c, "threshold", 0), queryInt(c, "limit", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// Reserve handles POST /inventory/reservations, called by the order
// service when inventory runs remotely. Retries of the same order replay.
// The order is stored by the caller, so the reservation is tagged remote
// and left out of local orphan reconciliation.
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req inventoryapp.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.inventoryService.ReserveForRemoteOrder(c.Request.Context(), req.OrderID, req.Lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// Release handles POST /inventory/reservations/:orderId/release
func (h *InventoryHandler) Release(c *gin.Context) {
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	result, err := h.inventoryService.ReleaseForOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(middleware.IdempotencyKeyHeader))
}
