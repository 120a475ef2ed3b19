package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// MaxItemQuantity caps the quantity of a single cart line
const MaxItemQuantity = 99

// Item is one line in a cart. Prices are not stored; the cart is priced live.
type Item struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_item_variant,priority:1"`
	ProductID uuid.UUID `gorm:"type:uuid;not null"`
	VariantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_item_variant,priority:2"`
	Quantity  int       `gorm:"not null"`
	AddedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "cart_items"
}

// Cart is a user's shopping cart. Each user has at most one.
type Cart struct {
	shared.BaseAggregateRoot
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Items  []Item    `gorm:"foreignKey:CartID"`
}

// TableName returns the table name for GORM
func (Cart) TableName() string {
	return "carts"
}

// NewCart creates an empty cart for a user
func NewCart(userID uuid.UUID) *Cart {
	return &Cart{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		UserID:            userID,
		Items:             make([]Item, 0),
	}
}

// AddItem adds quantity to a variant's line, creating it if needed.
// Returns the resulting quantity for that line.
func (c *Cart) AddItem(productID, variantID uuid.UUID, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if line := c.Item(variantID); line != nil {
		merged := line.Quantity + quantity
		if merged > MaxItemQuantity {
			return 0, shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Quantity per item cannot exceed %d", MaxItemQuantity))
		}
		line.Quantity = merged
		c.touch()
		return merged, nil
	}
	if quantity > MaxItemQuantity {
		return 0, shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Quantity per item cannot exceed %d", MaxItemQuantity))
	}
	c.Items = append(c.Items, Item{
		ID:        uuid.New(),
		CartID:    c.ID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	})
	c.touch()
	return quantity, nil
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(variantID uuid.UUID, quantity int) error {
	if quantity < 0 || quantity > MaxItemQuantity {
		return shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Quantity must be between 0 and %d", MaxItemQuantity))
	}
	if quantity == 0 {
		return c.RemoveItem(variantID)
	}
	line := c.Item(variantID)
	if line == nil {
		return shared.NewDomainError("ITEM_NOT_FOUND", "Item is not in the cart")
	}
	line.Quantity = quantity
	c.touch()
	return nil
}

// RemoveItem drops a variant's line
func (c *Cart) RemoveItem(variantID uuid.UUID) error {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch()
			return nil
		}
	}
	return shared.NewDomainError("ITEM_NOT_FOUND", "Item is not in the cart")
}

// Clear empties the cart
func (c *Cart) Clear() {
	if len(c.Items) == 0 {
		return
	}
	c.Items = make([]Item, 0)
	c.touch()
}

// Item returns the line for a variant, or nil
func (c *Cart) Item(variantID uuid.UUID) *Item {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalQuantity sums quantity across lines
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
}

// Repository defines the interface for cart persistence
type Repository interface {
	// FindByUser loads the user's cart; ErrNotFound when the user has none
	FindByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)

	// Save creates the cart or updates it when the stored version is still cart.LoadedVersion().
	// A version mismatch returns ErrConcurrencyConflict.
	Save(ctx context.Context, cart *Cart) error
}
