package order

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Status represents the fulfilment status of an order
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCancelled
	case StatusProcessing:
		return target == StatusShipped || target == StatusCancelled
	case StatusShipped:
		return target == StatusDelivered
	case StatusDelivered, StatusCancelled:
		return false
	}
	return false
}

// PaymentStatus tracks the money side of an order
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "COD"
	PaymentMethodCard PaymentMethod = "CARD"
)

// IsValid checks if the method is known
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodCard
}

// CancelledBy records who cancelled an order
type CancelledBy string

const (
	CancelledByCustomer CancelledBy = "CUSTOMER"
	CancelledByAdmin    CancelledBy = "ADMIN"
	CancelledBySystem   CancelledBy = "SYSTEM"
)

func (b CancelledBy) defaultReason() string {
	switch b {
	case CancelledByAdmin:
		return "cancelled by admin"
	case CancelledBySystem:
		return "cancelled by system"
	default:
		return "cancelled by customer"
	}
}

// MaxItemQuantity caps a single order line
const MaxItemQuantity = 99

// Address is the shipping destination, stored as a JSON column
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate checks the required address fields
func (a Address) Validate() error {
	missing := make([]string, 0)
	for name, v := range map[string]string{
		"full_name":   a.FullName,
		"line1":       a.Line1,
		"city":        a.City,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return shared.NewDomainError("INVALID_ADDRESS", fmt.Sprintf("Shipping address is missing: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Item is a priced order line. Prices are snapshotted at placement.
type Item struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	VariantID    uuid.UUID       `gorm:"type:uuid;not null"`
	SKU          string          `gorm:"type:varchar(64);not null"`
	ProductName  string          `gorm:"type:varchar(200);not null"`
	VariantLabel string          `gorm:"type:varchar(120)"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Quantity     int             `gorm:"not null"`
	LineTotal    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "order_items"
}

// Order is the order aggregate root
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber     string          `gorm:"type:varchar(30);not null;uniqueIndex"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_order_user_idem,priority:1"`
	IdempotencyKey  *string         `gorm:"type:varchar(100);uniqueIndex:idx_order_user_idem,priority:2"`
	Items           []Item          `gorm:"foreignKey:OrderID"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingFee     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Total           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status          Status          `gorm:"type:varchar(20);not null;index"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(10);not null"`
	ShippingAddress Address         `gorm:"serializer:json;type:text"`
	Notes           string          `gorm:"type:text"`
	StockReserved   bool            `gorm:"not null;default:false"`
	StockReleased   bool            `gorm:"not null;default:false"`
	CancelReason    string          `gorm:"type:varchar(500)"`
	CancelledBy     CancelledBy     `gorm:"type:varchar(20)"`
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a new pending, unpaid order with no lines
func NewOrder(userID uuid.UUID, orderNumber string, address Address, method PaymentMethod, currency string) (*Order, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", "Payment method must be COD or CARD")
	}
	if err := address.Validate(); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = string(valueobject.DefaultCurrency)
	}

	return &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		UserID:            userID,
		Items:             make([]Item, 0),
		Currency:          currency,
		Subtotal:          decimal.Zero,
		ShippingFee:       decimal.Zero,
		Total:             decimal.Zero,
		Status:            StatusPending,
		PaymentStatus:     PaymentUnpaid,
		PaymentMethod:     method,
		ShippingAddress:   address,
	}, nil
}

// AddItem adds a priced line, merging with an existing line for the same variant
func (o *Order) AddItem(productID, variantID uuid.UUID, sku, productName, variantLabel string, unitPrice decimal.Decimal, quantity int) error {
	if o.Status != StatusPending || o.StockReserved {
		return shared.NewDomainError("INVALID_STATE", "Items can only be added before the order is placed")
	}
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	for i := range o.Items {
		if o.Items[i].VariantID == variantID {
			merged := o.Items[i].Quantity + quantity
			if merged > MaxItemQuantity {
				return shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Quantity per item cannot exceed %d", MaxItemQuantity))
			}
			o.Items[i].Quantity = merged
			o.Items[i].LineTotal = o.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(merged)))
			o.recalculateTotals()
			return nil
		}
	}
	if quantity > MaxItemQuantity {
		return shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Quantity per item cannot exceed %d", MaxItemQuantity))
	}

	o.Items = append(o.Items, Item{
		ID:           uuid.New(),
		OrderID:      o.ID,
		ProductID:    productID,
		VariantID:    variantID,
		SKU:          sku,
		ProductName:  productName,
		VariantLabel: variantLabel,
		UnitPrice:    unitPrice,
		Quantity:     quantity,
		LineTotal:    unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	})
	o.recalculateTotals()
	return nil
}

// SetShippingFee sets the shipping fee and recomputes the total
func (o *Order) SetShippingFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return shared.NewDomainError("INVALID_SHIPPING_FEE", "Shipping fee cannot be negative")
	}
	o.ShippingFee = fee
	o.recalculateTotals()
	return nil
}

// SetNotes sets the customer's delivery notes
func (o *Order) SetNotes(notes string) {
	o.Notes = strings.TrimSpace(notes)
}

// SetIdempotencyKey records the client's request key for replay detection
func (o *Order) SetIdempotencyKey(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		o.IdempotencyKey = nil
		return
	}
	o.IdempotencyKey = &key
}

// Place marks the order as placed after stock was reserved and records OrderPlaced
func (o *Order) Place() error {
	if len(o.Items) == 0 {
		return shared.NewDomainError("EMPTY_ORDER", "Order must have at least one item")
	}
	if o.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending orders can be placed")
	}
	o.StockReserved = true
	o.AddDomainEvent(NewOrderPlacedEvent(o))
	return nil
}

// Renumber replaces the order number of an order that was never stored,
// keeping the pending OrderPlaced event in step.
func (o *Order) Renumber(number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if o.LoadedVersion() != 0 {
		return shared.NewDomainError("INVALID_STATE", "A stored order cannot be renumbered")
	}
	o.OrderNumber = number
	for _, event := range o.GetDomainEvents() {
		if placed, ok := event.(*OrderPlacedEvent); ok {
			placed.OrderNumber = number
		}
	}
	return nil
}

// TransitionTo moves the order along the fulfilment machine. Cancellation has
// its own method because it needs a reason and an actor.
func (o *Order) TransitionTo(target Status) error {
	if target == StatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Use Cancel to cancel an order")
	}
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot change order status from %s to %s", o.Status, target))
	}

	now := time.Now()
	old := o.Status
	o.Status = target
	switch target {
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
		if o.PaymentMethod == PaymentMethodCOD && o.PaymentStatus == PaymentUnpaid {
			o.PaymentStatus = PaymentPaid
			o.PaidAt = &now
		}
	}
	o.touch()

	o.AddDomainEvent(NewOrderStatusChangedEvent(o, old, target))
	return nil
}

// Cancel cancels a pending or processing order. Paid orders become REFUNDED.
func (o *Order) Cancel(reason string, by CancelledBy) error {
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel order in %s status", o.Status))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = by.defaultReason()
	}
	if len(reason) > 500 {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason cannot exceed 500 characters")
	}

	now := time.Now()
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.CancelledBy = by
	o.CancelledAt = &now
	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	o.touch()

	o.AddDomainEvent(NewOrderCancelledEvent(o))
	return nil
}

// MarkPaid records payment
func (o *Order) MarkPaid() error {
	if o.Status == StatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot pay a cancelled order")
	}
	if o.PaymentStatus != PaymentUnpaid {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark order paid from %s", o.PaymentStatus))
	}
	now := time.Now()
	o.PaymentStatus = PaymentPaid
	o.PaidAt = &now
	o.touch()

	o.AddDomainEvent(NewOrderPaidEvent(o))
	return nil
}

// MarkStockReleased records that the reservation was returned to inventory
func (o *Order) MarkStockReleased() {
	if o.StockReleased {
		return
	}
	o.StockReleased = true
	o.touch()
}

// NeedsStockRelease reports whether a cancelled order still holds reserved stock
func (o *Order) NeedsStockRelease() bool {
	return o.Status == StatusCancelled && o.StockReserved && !o.StockReleased
}

// IsOwnedBy reports whether userID placed the order
func (o *Order) IsOwnedBy(userID uuid.UUID) bool {
	return o.UserID == userID
}

// IsCancellable reports whether Cancel would be accepted
func (o *Order) IsCancellable() bool {
	return o.Status.CanTransitionTo(StatusCancelled)
}

// ItemCount returns the number of lines
func (o *Order) ItemCount() int {
	return len(o.Items)
}

// TotalQuantity sums quantity across lines
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// TotalMoney returns the order total as Money
func (o *Order) TotalMoney() valueobject.Money {
	return valueobject.MustMoney(o.Total, valueobject.Currency(o.Currency))
}

func (o *Order) recalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Add(o.ShippingFee)
	o.UpdatedAt = time.Now()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
}
