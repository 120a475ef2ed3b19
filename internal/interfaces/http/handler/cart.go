package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopfront/backend/internal/application/cart"
)

// CartHandler handles the caller's cart. Lines are priced live on every read.
type CartHandler struct {
	BaseHandler
	cartService *cart.CartService
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService *cart.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	result, err := h.cartService.GetCart(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AddItem handles POST /cart/items. Adding a variant already in the cart
// increases its quantity.
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	var req cart.AddItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.cartService.AddItem(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// UpdateItem handles PUT /cart/items/:variantId
func (h *CartHandler) UpdateItem(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	variantID, ok := h.ParamUUID(c, "variantId")
	if !ok {
		return
	}
	var req cart.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.cartService.UpdateItemQuantity(c.Request.Context(), userID, variantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RemoveItem handles DELETE /cart/items/:variantId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	variantID, ok := h.ParamUUID(c, "variantId")
	if !ok {
		return
	}

	result, err := h.cartService.RemoveItem(c.Request.Context(), userID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Clear handles DELETE /cart
func (h *CartHandler) Clear(c *gin.Context) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	result, err := h.cartService.Clear(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
