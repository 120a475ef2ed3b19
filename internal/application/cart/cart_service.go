package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/cart"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxSaveAttempts bounds reload-and-retry on a cart version conflict
const maxSaveAttempts = 3

// CartService manages users' carts. Carts hold no prices; every read
// prices the lines from the catalog.
type CartService struct {
	cartRepo    cart.Repository
	productRepo catalog.ProductRepository
	currency    string
	logger      *zap.Logger
}

// NewCartService creates a new CartService
func NewCartService(cartRepo cart.Repository, productRepo catalog.ProductRepository, currency string, logger *zap.Logger) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		currency:    currency,
		logger:      logger,
	}
}

// GetCart returns the user's priced cart. A user without a cart gets an empty one.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartResponse, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, c)
}

// AddItem adds quantity of a variant. The merged quantity may not exceed
// the variant's current stock.
func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, req AddItemRequest) (*CartResponse, error) {
	product, variant, err := s.orderableVariant(ctx, req.ProductID, req.VariantID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		current := 0
		if line := c.Item(variant.ID); line != nil {
			current = line.Quantity
		}
		if current+req.Quantity > variant.Stock {
			return insufficientStock(product, variant)
		}
		_, err := c.AddItem(product.ID, variant.ID, req.Quantity)
		return err
	})
}

// UpdateItemQuantity sets a line's quantity. Zero removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, variantID uuid.UUID, req UpdateItemRequest) (*CartResponse, error) {
	if req.Quantity == 0 {
		return s.RemoveItem(ctx, userID, variantID)
	}
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		line := c.Item(variantID)
		if line == nil {
			return shared.NewDomainError("ITEM_NOT_FOUND", "Item is not in the cart")
		}
		product, variant, err := s.orderableVariant(ctx, line.ProductID, variantID)
		if err != nil {
			return err
		}
		if req.Quantity > variant.Stock {
			return insufficientStock(product, variant)
		}
		return c.SetQuantity(variantID, req.Quantity)
	})
}

// RemoveItem drops a variant from the cart
func (s *CartService) RemoveItem(ctx context.Context, userID, variantID uuid.UUID) (*CartResponse, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		return c.RemoveItem(variantID)
	})
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*CartResponse, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// mutate applies fn to a freshly loaded cart and saves it, reloading and
// reapplying when another request saved the cart in between
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, fn func(c *cart.Cart) error) (*CartResponse, error) {
	for attempt := 1; ; attempt++ {
		c, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		err = s.cartRepo.Save(ctx, c)
		if err == nil {
			return s.price(ctx, c)
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxSaveAttempts {
			return nil, err
		}
		s.logger.Debug("cart version conflict, retrying",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
		)
	}
}

func (s *CartService) load(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	c, err := s.cartRepo.FindByUser(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return cart.NewCart(userID), nil
	}
	return c, err
}

func (s *CartService) orderableVariant(ctx context.Context, productID, variantID uuid.UUID) (*catalog.Product, *catalog.Variant, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if !product.IsActive() {
		return nil, nil, shared.NewDomainError("PRODUCT_UNAVAILABLE", fmt.Sprintf("Product '%s' is not available", product.Name))
	}
	variant := product.Variant(variantID)
	if variant == nil {
		return nil, nil, shared.NewDomainError("VARIANT_NOT_FOUND", "Variant not found in this product")
	}
	return product, variant, nil
}

// price builds the response from current catalog data
func (s *CartService) price(ctx context.Context, c *cart.Cart) (*CartResponse, error) {
	response := &CartResponse{
		Items:         make([]CartItemResponse, 0, len(c.Items)),
		ItemCount:     len(c.Items),
		TotalQuantity: c.TotalQuantity(),
		Subtotal:      decimal.Zero,
		Currency:      s.currency,
		Orderable:     !c.IsEmpty(),
		UpdatedAt:     c.UpdatedAt,
	}
	if c.IsEmpty() {
		return response, nil
	}

	ids := make([]uuid.UUID, 0, len(c.Items))
	seen := make(map[uuid.UUID]bool, len(c.Items))
	for _, item := range c.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, item := range c.Items {
		line := CartItemResponse{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: decimal.Zero,
			LineTotal: decimal.Zero,
			AddedAt:   item.AddedAt,
		}
		if p, ok := byID[item.ProductID]; ok {
			line.ProductName = p.Name
			line.ProductSlug = p.Slug
			if v := p.Variant(item.VariantID); v != nil {
				line.SKU = v.SKU
				line.VariantLabel = v.Label()
				line.UnitPrice = p.EffectivePrice(v)
				line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
				line.Stock = v.Stock
				line.Available = p.IsActive() && v.InStock(item.Quantity)
			}
		}
		if line.Available {
			response.Subtotal = response.Subtotal.Add(line.LineTotal)
		} else {
			response.Orderable = false
		}
		response.Items = append(response.Items, line)
	}
	return response, nil
}

func insufficientStock(p *catalog.Product, v *catalog.Variant) error {
	return shared.NewDomainError("INSUFFICIENT_STOCK",
		fmt.Sprintf("Only %d of '%s' (%s) in stock", v.Stock, p.Name, v.Label()))
}
