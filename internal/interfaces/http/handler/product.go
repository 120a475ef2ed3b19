package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/backend/internal/application/catalog"
	domaincatalog "github.com/shopfront/backend/internal/domain/catalog"
)

// ProductHandler handles the catalog: products, variants and images
type ProductHandler struct {
	BaseHandler
	productService *catalog.ProductService
	imageService   *catalog.ImageService
}

// NewProductHandler creates a new ProductHandler. imageService may be nil,
// in which case the image endpoints answer 503.
func NewProductHandler(productService *catalog.ProductService, imageService *catalog.ImageService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		imageService:   imageService,
	}
}

// List handles GET /catalog/products. Only admins see inactive products.
func (h *ProductHandler) List(c *gin.Context) {
	var filter catalog.ProductListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	products, total, err := h.productService.List(c.Request.Context(), filter, !isAdmin(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, products, total, page, pageSize)
}

// GetByID handles GET /catalog/products/:id
func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	product, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.visible(c, product)
}

// GetBySlug handles GET /catalog/products/slug/:slug
func (h *ProductHandler) GetBySlug(c *gin.Context) {
	product, err := h.productService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.visible(c, product)
}

// visible hides inactive products from everyone but admins
func (h *ProductHandler) visible(c *gin.Context, product *catalog.ProductResponse) {
	if product.Status != string(domaincatalog.ProductStatusActive) && !isAdmin(c) {
		h.ErrorWithCode(c, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}
	h.Success(c, product)
}

// Create handles POST /catalog/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req catalog.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.productService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// Update handles PUT /catalog/products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.UpdateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// Delete handles DELETE /catalog/products/:id. A product referenced by
// orders is deactivated instead of removed; the response says which.
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.productService.Delete(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Activate handles POST /catalog/products/:id/activate
func (h *ProductHandler) Activate(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	product, err := h.productService.Activate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// Deactivate handles POST /catalog/products/:id/deactivate
func (h *ProductHandler) Deactivate(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	product, err := h.productService.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// AddVariant handles POST /catalog/products/:id/variants
func (h *ProductHandler) AddVariant(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.CreateVariantRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.productService.AddVariant(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// UpdateVariant handles PUT /catalog/products/:id/variants/:variantId
func (h *ProductHandler) UpdateVariant(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	variantID, ok := h.ParamUUID(c, "variantId")
	if !ok {
		return
	}
	var req catalog.UpdateVariantRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.productService.UpdateVariant(c.Request.Context(), id, variantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// RemoveVariant handles DELETE /catalog/products/:id/variants/:variantId
func (h *ProductHandler) RemoveVariant(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	variantID, ok := h.ParamUUID(c, "variantId")
	if !ok {
		return
	}

	product, err := h.productService.RemoveVariant(c.Request.Context(), id, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// RequestImageUpload handles POST /catalog/products/:id/images/upload-url
func (h *ProductHandler) RequestImageUpload(c *gin.Context) {
	if !h.imagesEnabled(c) {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.ImageUploadRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.imageService.RequestUpload(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AttachImage handles POST /catalog/products/:id/images
func (h *ProductHandler) AttachImage(c *gin.Context) {
	if !h.imagesEnabled(c) {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.ImageKeyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.imageService.Attach(c.Request.Context(), id, req.Key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// RemoveImage handles DELETE /catalog/products/:id/images
func (h *ProductHandler) RemoveImage(c *gin.Context) {
	if !h.imagesEnabled(c) {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.ImageKeyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	product, err := h.imageService.Remove(c.Request.Context(), id, req.Key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

func (h *ProductHandler) imagesEnabled(c *gin.Context) bool {
	if h.imageService == nil {
		h.Error(c, http.StatusServiceUnavailable, "STORAGE_DISABLED", "Image storage is not configured")
		return false
	}
	return true
}
