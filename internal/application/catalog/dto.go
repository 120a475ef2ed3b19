package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// CreateVariantRequest describes a variant. InitialStock is written to the
// stock ledger with reason INITIAL once the variant exists.
type CreateVariantRequest struct {
	SKU          string           `json:"sku" binding:"required,min=1,max=64"`
	Size         string           `json:"size" binding:"max=50"`
	Color        string           `json:"color" binding:"max=50"`
	Price        *decimal.Decimal `json:"price"`
	InitialStock int              `json:"initial_stock" binding:"min=0,max=1000000"`
}

// CreateProductRequest represents a request to create a new product
type CreateProductRequest struct {
	Name        string                 `json:"name" binding:"required,min=1,max=200"`
	Description string                 `json:"description" binding:"max=5000"`
	Category    string                 `json:"category" binding:"max=100"`
	Brand       string                 `json:"brand" binding:"max=100"`
	BasePrice   decimal.Decimal        `json:"base_price" binding:"required"`
	Tags        []string               `json:"tags" binding:"max=20"`
	Variants    []CreateVariantRequest `json:"variants" binding:"max=100,dive"`
	Activate    bool                   `json:"activate"`
}

// UpdateProductRequest represents a request to update a product.
// Nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,min=1,max=200"`
	Slug        *string          `json:"slug" binding:"omitempty,min=1,max=220"`
	Description *string          `json:"description" binding:"omitempty,max=5000"`
	Category    *string          `json:"category" binding:"omitempty,max=100"`
	Brand       *string          `json:"brand" binding:"omitempty,max=100"`
	BasePrice   *decimal.Decimal `json:"base_price"`
	Tags        []string         `json:"tags" binding:"omitempty,max=20"`
}

// UpdateVariantRequest changes a variant's attributes. Stock is changed
// through the inventory endpoints only.
type UpdateVariantRequest struct {
	Size  string           `json:"size" binding:"max=50"`
	Color string           `json:"color" binding:"max=50"`
	Price *decimal.Decimal `json:"price"`
}

// ImageUploadRequest asks for a presigned upload URL
type ImageUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,min=1,max=255"`
	ContentType string `json:"content_type" binding:"required"`
	FileSize    int64  `json:"file_size" binding:"required,gt=0"`
}

// ImageUploadResponse carries the presigned URL and the key to attach afterwards
type ImageUploadResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ImageKeyRequest names an uploaded image
type ImageKeyRequest struct {
	Key string `json:"key" binding:"required,max=500"`
}

// ImageResponse is a product image with a download URL
type ImageResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// VariantResponse represents a variant in API responses
type VariantResponse struct {
	ID             uuid.UUID        `json:"id"`
	SKU            string           `json:"sku"`
	Size           string           `json:"size"`
	Color          string           `json:"color"`
	Label          string           `json:"label"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effective_price"`
	Stock          int              `json:"stock"`
	InStock        bool             `json:"in_stock"`
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Brand       string            `json:"brand"`
	BasePrice   decimal.Decimal   `json:"base_price"`
	Status      string            `json:"status"`
	Tags        []string          `json:"tags"`
	Images      []ImageResponse   `json:"images"`
	Variants    []VariantResponse `json:"variants"`
	TotalStock  int               `json:"total_stock"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int               `json:"version"`
}

// DeleteProductResponse reports whether a delete was a hard delete or a
// deactivation because orders still reference the product
type DeleteProductResponse struct {
	ID          uuid.UUID `json:"id"`
	Deleted     bool      `json:"deleted"`
	Deactivated bool      `json:"deactivated"`
}

// ProductListFilter represents filter options for product list
type ProductListFilter struct {
	Search      string   `form:"search"`
	Category    string   `form:"category"`
	Status      string   `form:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
	MinPrice    *float64 `form:"min_price" binding:"omitempty,min=0"`
	MaxPrice    *float64 `form:"max_price" binding:"omitempty,min=0"`
	InStockOnly bool     `form:"in_stock"`
	Page        int      `form:"page" binding:"omitempty,min=1"`
	PageSize    int      `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy     string   `form:"order_by"`
	OrderDir    string   `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// ToVariantResponse converts a domain Variant
func ToVariantResponse(p *catalog.Product, v *catalog.Variant) VariantResponse {
	return VariantResponse{
		ID:             v.ID,
		SKU:            v.SKU,
		Size:           v.Size,
		Color:          v.Color,
		Label:          v.Label(),
		Price:          v.Price,
		EffectivePrice: p.EffectivePrice(v),
		Stock:          v.Stock,
		InStock:        v.Stock > 0,
	}
}

// ToProductResponse converts a domain Product to ProductResponse. Image URLs
// are filled in by the service.
func ToProductResponse(p *catalog.Product) ProductResponse {
	variants := make([]VariantResponse, len(p.Variants))
	for i := range p.Variants {
		variants[i] = ToVariantResponse(p, &p.Variants[i])
	}
	images := make([]ImageResponse, len(p.Images))
	for i, key := range p.Images {
		images[i] = ImageResponse{Key: key}
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Category:    p.Category,
		Brand:       p.Brand,
		BasePrice:   p.BasePrice,
		Status:      string(p.Status),
		Tags:        tags,
		Images:      images,
		Variants:    variants,
		TotalStock:  p.TotalStock(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Version:     p.Version,
	}
}
