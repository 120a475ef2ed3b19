package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// IsValid reports whether s is a known product status
func (s ProductStatus) IsValid() bool {
	return s == ProductStatusActive || s == ProductStatusInactive
}

const (
	maxProductImages = 10
	maxProductTags   = 20
)

// Product is the catalog aggregate root. It owns its variants; variant stock
// is only changed through the inventory ledger.
type Product struct {
	shared.BaseAggregateRoot
	Name        string          `gorm:"type:varchar(200);not null"`
	Slug        string          `gorm:"type:varchar(220);not null;uniqueIndex"`
	Description string          `gorm:"type:text"`
	Category    string          `gorm:"type:varchar(100);index"`
	Brand       string          `gorm:"type:varchar(100)"`
	BasePrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status      ProductStatus   `gorm:"type:varchar(20);not null;default:'INACTIVE'"`
	Images      []string        `gorm:"serializer:json;type:text"`
	Tags        []string        `gorm:"serializer:json;type:text"`
	Variants    []Variant       `gorm:"foreignKey:ProductID"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new inactive product. The slug is derived from the name.
func NewProduct(name, description, category, brand string, basePrice decimal.Decimal) (*Product, error) {
	if err := validateProductName(name); err != nil {
		return nil, err
	}
	if err := validatePrice(basePrice); err != nil {
		return nil, err
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Product name must contain letters or digits")
	}

	product := &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              strings.TrimSpace(name),
		Slug:              slug,
		Description:       description,
		Category:          strings.TrimSpace(category),
		Brand:             strings.TrimSpace(brand),
		BasePrice:         basePrice,
		Status:            ProductStatusInactive,
		Images:            []string{},
		Tags:              []string{},
		Variants:          []Variant{},
	}

	product.AddDomainEvent(NewProductCreatedEvent(product))

	return product, nil
}

// Update updates the product's descriptive fields and base price
func (p *Product) Update(name, description, category, brand string, basePrice decimal.Decimal) error {
	if err := validateProductName(name); err != nil {
		return err
	}
	if err := validatePrice(basePrice); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(name)
	p.Description = description
	p.Category = strings.TrimSpace(category)
	p.Brand = strings.TrimSpace(brand)
	p.BasePrice = basePrice
	p.touch()

	p.AddDomainEvent(NewProductUpdatedEvent(p))

	return nil
}

// Rename changes the slug. Callers check uniqueness before saving.
func (p *Product) Rename(slug string) error {
	slug = Slugify(slug)
	if slug == "" {
		return shared.NewDomainError("INVALID_SLUG", "Slug cannot be empty")
	}
	p.Slug = slug
	p.touch()
	return nil
}

// SetTags replaces the tag list, dropping blanks and duplicates
func (p *Product) SetTags(tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) > maxProductTags {
		return shared.NewDomainError("TOO_MANY_TAGS", "A product cannot have more than 20 tags")
	}
	p.Tags = cleaned
	p.touch()
	return nil
}

// Activate makes the product purchasable
func (p *Product) Activate() error {
	if p.Status == ProductStatusActive {
		return shared.NewDomainError("ALREADY_ACTIVE", "Product is already active")
	}
	if len(p.Variants) == 0 {
		return shared.NewDomainError("NO_VARIANTS", "Product needs at least one variant to be activated")
	}

	old := p.Status
	p.Status = ProductStatusActive
	p.touch()

	p.AddDomainEvent(NewProductStatusChangedEvent(p, old, p.Status))

	return nil
}

// Deactivate hides the product from the storefront
func (p *Product) Deactivate() error {
	if p.Status == ProductStatusInactive {
		return shared.NewDomainError("ALREADY_INACTIVE", "Product is already inactive")
	}

	old := p.Status
	p.Status = ProductStatusInactive
	p.touch()

	p.AddDomainEvent(NewProductStatusChangedEvent(p, old, p.Status))

	return nil
}

// IsActive returns true if the product is active
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// AddVariant adds a variant with zero stock. Initial stock goes through the ledger.
func (p *Product) AddVariant(sku, size, color string, price *decimal.Decimal) (*Variant, error) {
	sku = normalizeSKU(sku)
	if err := validateSKU(sku); err != nil {
		return nil, err
	}
	if price != nil {
		if err := validatePrice(*price); err != nil {
			return nil, err
		}
	}
	for _, v := range p.Variants {
		if v.SKU == sku {
			return nil, shared.NewDomainError("DUPLICATE_SKU", "SKU already exists on this product")
		}
		if strings.EqualFold(v.Size, size) && strings.EqualFold(v.Color, color) {
			return nil, shared.NewDomainError("DUPLICATE_VARIANT", "A variant with this size and color already exists")
		}
	}

	now := time.Now()
	p.Variants = append(p.Variants, Variant{
		ID:        uuid.New(),
		ProductID: p.ID,
		SKU:       sku,
		Size:      strings.TrimSpace(size),
		Color:     strings.TrimSpace(color),
		Price:     price,
		Stock:     0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	})
	p.touch()

	return &p.Variants[len(p.Variants)-1], nil
}

// UpdateVariant changes a variant's attributes. Stock is not editable here.
func (p *Product) UpdateVariant(variantID uuid.UUID, size, color string, price *decimal.Decimal) error {
	v := p.Variant(variantID)
	if v == nil {
		return shared.NewDomainError("VARIANT_NOT_FOUND", "Variant not found")
	}
	if price != nil {
		if err := validatePrice(*price); err != nil {
			return err
		}
	}
	for _, other := range p.Variants {
		if other.ID != variantID && strings.EqualFold(other.Size, size) && strings.EqualFold(other.Color, color) {
			return shared.NewDomainError("DUPLICATE_VARIANT", "A variant with this size and color already exists")
		}
	}

	v.Size = strings.TrimSpace(size)
	v.Color = strings.TrimSpace(color)
	v.Price = price
	v.UpdatedAt = time.Now()
	p.touch()

	return nil
}

// RemoveVariant removes a variant. The last variant of an active product cannot be removed.
func (p *Product) RemoveVariant(variantID uuid.UUID) error {
	idx := -1
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.NewDomainError("VARIANT_NOT_FOUND", "Variant not found")
	}
	if p.IsActive() && len(p.Variants) == 1 {
		return shared.NewDomainError("LAST_VARIANT", "Cannot remove the last variant of an active product")
	}

	p.Variants = append(p.Variants[:idx], p.Variants[idx+1:]...)
	p.touch()

	return nil
}

// Variant returns the variant with the given id, or nil
func (p *Product) Variant(variantID uuid.UUID) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// EffectivePrice returns the variant price override, or the base price
func (p *Product) EffectivePrice(v *Variant) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.BasePrice
}

// TotalStock sums stock across all variants
func (p *Product) TotalStock() int {
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// AttachImage records an uploaded image's storage key
func (p *Product) AttachImage(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return shared.NewDomainError("INVALID_IMAGE", "Image key cannot be empty")
	}
	for _, k := range p.Images {
		if k == key {
			return nil
		}
	}
	if len(p.Images) >= maxProductImages {
		return shared.NewDomainError("TOO_MANY_IMAGES", "A product cannot have more than 10 images")
	}
	p.Images = append(p.Images, key)
	p.touch()
	return nil
}

// RemoveImage forgets an image key. Returns false if the key was not attached.
func (p *Product) RemoveImage(key string) bool {
	for i, k := range p.Images {
		if k == key {
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			p.touch()
			return true
		}
	}
	return false
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

func validateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 200 characters")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	return nil
}
