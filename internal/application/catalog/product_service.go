package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxSlugAttempts bounds the "-2", "-3" suffixes tried for a taken slug
const maxSlugAttempts = 20

// StockInitializer writes initial variant stock to the ledger
type StockInitializer interface {
	UpdateMultipleProductsStock(ctx context.Context, req inventoryapp.BatchStockRequest) (*inventoryapp.StockResult, error)
}

// ProductOrderChecker reports whether orders reference a product
type ProductOrderChecker interface {
	ExistsByProduct(ctx context.Context, productID uuid.UUID) (bool, error)
}

// ProductService handles product-related business operations
type ProductService struct {
	productRepo catalog.ProductRepository
	stock       StockInitializer
	orders      ProductOrderChecker
	images      *ImageService
	logger      *zap.Logger
}

// NewProductService creates a new ProductService
func NewProductService(
	productRepo catalog.ProductRepository,
	stock StockInitializer,
	orders ProductOrderChecker,
	logger *zap.Logger,
) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		stock:       stock,
		orders:      orders,
		logger:      logger,
	}
}

// SetImageService enables download URLs on product responses
func (s *ProductService) SetImageService(images *ImageService) {
	s.images = images
}

// Create creates a new product with its variants. Initial stock is recorded
// in the ledger after the product is saved.
func (s *ProductService) Create(ctx context.Context, req CreateProductRequest) (*ProductResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "create")
	defer span.End()

	product, err := catalog.NewProduct(req.Name, req.Description, req.Category, req.Brand, req.BasePrice)
	if err != nil {
		return nil, err
	}
	if err := product.SetTags(req.Tags); err != nil {
		return nil, err
	}
	slug, err := s.availableSlug(ctx, product.Slug, nil)
	if err != nil {
		return nil, err
	}
	product.Slug = slug

	for _, v := range req.Variants {
		if err := s.ensureSKUFree(ctx, v.SKU, nil); err != nil {
			return nil, err
		}
		if _, err := product.AddVariant(v.SKU, v.Size, v.Color, v.Price); err != nil {
			return nil, err
		}
	}
	if req.Activate {
		if err := product.Activate(); err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Save(ctx, product); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lines := make([]inventoryapp.StockLineRequest, 0, len(req.Variants))
	for i, v := range req.Variants {
		if v.InitialStock > 0 {
			lines = append(lines, inventoryapp.StockLineRequest{
				ProductID: product.ID,
				VariantID: product.Variants[i].ID,
				Delta:     v.InitialStock,
			})
		}
	}
	if err := s.initialStock(ctx, "product:"+product.ID.String()+":initial", lines); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, "product_id", product.ID.String(), "variants", len(product.Variants))
	telemetry.SetOK(span)
	return s.getResponse(ctx, product.ID)
}

// GetByID retrieves a product by ID
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, product), nil
}

// GetBySlug retrieves a product by slug
func (s *ProductService) GetBySlug(ctx context.Context, slug string) (*ProductResponse, error) {
	product, err := s.productRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, product), nil
}

// List retrieves a list of products with filtering and pagination.
// publicOnly restricts the listing to active products.
func (s *ProductService) List(ctx context.Context, filter ProductListFilter, publicOnly bool) ([]ProductResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	domainFilter := catalog.ProductFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   strings.TrimSpace(filter.Search),
		},
		Category:    filter.Category,
		Status:      catalog.ProductStatus(filter.Status),
		InStockOnly: filter.InStockOnly,
	}
	if publicOnly {
		domainFilter.Status = catalog.ProductStatusActive
	}
	if filter.MinPrice != nil {
		v := decimal.NewFromFloat(*filter.MinPrice)
		domainFilter.MinPrice = &v
	}
	if filter.MaxPrice != nil {
		v := decimal.NewFromFloat(*filter.MaxPrice)
		domainFilter.MaxPrice = &v
	}

	products, total, err := s.productRepo.List(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ProductResponse, len(products))
	for i := range products {
		out[i] = *s.toResponse(ctx, &products[i])
	}
	return out, total, nil
}

// Update updates a product's descriptive fields
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req UpdateProductRequest) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name, description, category, brand, price := product.Name, product.Description, product.Category, product.Brand, product.BasePrice
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}
	if req.Category != nil {
		category = *req.Category
	}
	if req.Brand != nil {
		brand = *req.Brand
	}
	if req.BasePrice != nil {
		price = *req.BasePrice
	}
	if err := product.Update(name, description, category, brand, price); err != nil {
		return nil, err
	}
	if req.Tags != nil {
		if err := product.SetTags(req.Tags); err != nil {
			return nil, err
		}
	}
	if req.Slug != nil && catalog.Slugify(*req.Slug) != product.Slug {
		slug := catalog.Slugify(*req.Slug)
		exists, err := s.productRepo.ExistsBySlug(ctx, slug, &product.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, shared.NewDomainError("SLUG_EXISTS", "A product with this slug already exists")
		}
		if err := product.Rename(slug); err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}
	return s.toResponse(ctx, product), nil
}

// Delete hard-deletes a product nobody ordered. A product referenced by
// orders is deactivated instead so order history keeps resolving.
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) (*DeleteProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ordered, err := s.orders.ExistsByProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check product orders: %w", err)
	}
	if ordered {
		if product.IsActive() {
			if err := product.Deactivate(); err != nil {
				return nil, err
			}
			if err := s.productRepo.Save(ctx, product); err != nil {
				return nil, err
			}
		}
		s.logger.Info("product referenced by orders, deactivated instead of deleted",
			zap.String("product_id", id.String()))
		return &DeleteProductResponse{ID: id, Deactivated: true}, nil
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		return nil, err
	}
	if s.images != nil {
		s.images.deleteObjects(ctx, product.Images)
	}
	return &DeleteProductResponse{ID: id, Deleted: true}, nil
}

// Activate makes a product purchasable
func (s *ProductService) Activate(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	return s.mutate(ctx, id, func(p *catalog.Product) error { return p.Activate() })
}

// Deactivate hides a product from the storefront
func (s *ProductService) Deactivate(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	return s.mutate(ctx, id, func(p *catalog.Product) error { return p.Deactivate() })
}

// AddVariant adds a variant and records its initial stock
func (s *ProductService) AddVariant(ctx context.Context, productID uuid.UUID, req CreateVariantRequest) (*ProductResponse, error) {
	if err := s.ensureSKUFree(ctx, req.SKU, nil); err != nil {
		return nil, err
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	variant, err := product.AddVariant(req.SKU, req.Size, req.Color, req.Price)
	if err != nil {
		return nil, err
	}
	variantID := variant.ID
	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}

	if req.InitialStock > 0 {
		lines := []inventoryapp.StockLineRequest{{ProductID: productID, VariantID: variantID, Delta: req.InitialStock}}
		if err := s.initialStock(ctx, "variant:"+variantID.String()+":initial", lines); err != nil {
			return nil, err
		}
	}
	return s.getResponse(ctx, productID)
}

// UpdateVariant changes a variant's size, color or price
func (s *ProductService) UpdateVariant(ctx context.Context, productID, variantID uuid.UUID, req UpdateVariantRequest) (*ProductResponse, error) {
	return s.mutate(ctx, productID, func(p *catalog.Product) error {
		return p.UpdateVariant(variantID, req.Size, req.Color, req.Price)
	})
}

// RemoveVariant removes a variant
func (s *ProductService) RemoveVariant(ctx context.Context, productID, variantID uuid.UUID) (*ProductResponse, error) {
	return s.mutate(ctx, productID, func(p *catalog.Product) error {
		return p.RemoveVariant(variantID)
	})
}

func (s *ProductService) mutate(ctx context.Context, id uuid.UUID, fn func(*catalog.Product) error) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(product); err != nil {
		return nil, err
	}
	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}
	return s.toResponse(ctx, product), nil
}

func (s *ProductService) initialStock(ctx context.Context, key string, lines []inventoryapp.StockLineRequest) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := s.stock.UpdateMultipleProductsStock(ctx, inventoryapp.BatchStockRequest{
		Items:          lines,
		Reason:         string(inventory.ReasonInitial),
		IdempotencyKey: key,
	})
	if err != nil {
		s.logger.Error("failed to record initial stock",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to record initial stock: %w", err)
	}
	return nil
}

// availableSlug returns base, or base with the first free numeric suffix
func (s *ProductService) availableSlug(ctx context.Context, base string, excludeID *uuid.UUID) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.productRepo.ExistsBySlug(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", shared.NewDomainError("SLUG_EXISTS", "A product with this slug already exists")
}

func (s *ProductService) ensureSKUFree(ctx context.Context, sku string, excludeVariantID *uuid.UUID) error {
	exists, err := s.productRepo.ExistsBySKU(ctx, sku, excludeVariantID)
	if err != nil {
		return err
	}
	if exists {
		return shared.NewDomainError("SKU_EXISTS", fmt.Sprintf("SKU %s already exists", strings.ToUpper(strings.TrimSpace(sku))))
	}
	return nil
}

func (s *ProductService) getResponse(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PRODUCT_NOT_FOUND", "Product not found")
		}
		return nil, err
	}
	return s.toResponse(ctx, product), nil
}

func (s *ProductService) toResponse(ctx context.Context, product *catalog.Product) *ProductResponse {
	response := ToProductResponse(product)
	if s.images != nil {
		s.images.resolveURLs(ctx, response.Images)
	}
	return &response
}
