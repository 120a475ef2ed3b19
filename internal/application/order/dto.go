package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopspring/decimal"
)

// PlaceOrderItem is one requested line. Prices are never taken from the client.
type PlaceOrderItem struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1,max=99"`
}

// AddressRequest is the shipping address in requests
type AddressRequest struct {
	FullName   string `json:"full_name" binding:"required,max=100"`
	Phone      string `json:"phone" binding:"max=30"`
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2" binding:"max=200"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state" binding:"max=100"`
	PostalCode string `json:"postal_code" binding:"required,max=20"`
	Country    string `json:"country" binding:"required,max=60"`
}

// ToAddress converts the request to the domain value
func (a AddressRequest) ToAddress() order.Address {
	return order.Address{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// PlaceOrderRequest places an order from explicit items or from the user's cart.
// IdempotencyKey comes from the Idempotency-Key header.
type PlaceOrderRequest struct {
	Items           []PlaceOrderItem `json:"items" binding:"omitempty,max=50,dive"`
	FromCart        bool             `json:"from_cart"`
	ShippingAddress AddressRequest   `json:"shipping_address" binding:"required"`
	PaymentMethod   string           `json:"payment_method" binding:"required,oneof=COD CARD"`
	Notes           string           `json:"notes" binding:"max=1000"`
	IdempotencyKey  string           `json:"-"`
}

// CancelOrderRequest cancels an order. An empty reason is filled in from the actor.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// UpdateStatusRequest moves an order along the fulfilment machine
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PROCESSING SHIPPED DELIVERED"`
}

// OrderListFilter represents filter options for order lists
type OrderListFilter struct {
	Status   string     `form:"status" binding:"omitempty,oneof=PENDING PROCESSING SHIPPED DELIVERED CANCELLED"`
	UserID   *uuid.UUID `form:"user_id"`
	From     *time.Time `form:"from" time_format:"2006-01-02"`
	To       *time.Time `form:"to" time_format:"2006-01-02"`
	Search   string     `form:"search"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string     `form:"order_by"`
	OrderDir string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// Actor is the authenticated caller of an order operation
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// OrderItemResponse represents an order line in API responses
type OrderItemResponse struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	VariantID    uuid.UUID       `json:"variant_id"`
	SKU          string          `json:"sku"`
	ProductName  string          `json:"product_name"`
	VariantLabel string          `json:"variant_label"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	UserID          uuid.UUID           `json:"user_id"`
	Items           []OrderItemResponse `json:"items"`
	Currency        string              `json:"currency"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	Total           decimal.Decimal     `json:"total"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   string              `json:"payment_method"`
	ShippingAddress order.Address       `json:"shipping_address"`
	Notes           string              `json:"notes,omitempty"`
	CancelReason    string              `json:"cancel_reason,omitempty"`
	CancelledBy     string              `json:"cancelled_by,omitempty"`
	StockReleased   bool                `json:"stock_released"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"version"`
}

// OrderListItemResponse is the compact form used in listings
type OrderListItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity int             `json:"total_quantity"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ToOrderResponse converts a domain Order
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			SKU:          item.SKU,
			ProductName:  item.ProductName,
			VariantLabel: item.VariantLabel,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal,
		}
	}
	return OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Items:           items,
		Currency:        o.Currency,
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		Total:           o.Total,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   string(o.PaymentMethod),
		ShippingAddress: o.ShippingAddress,
		Notes:           o.Notes,
		CancelReason:    o.CancelReason,
		CancelledBy:     string(o.CancelledBy),
		StockReleased:   o.StockReleased,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Version:         o.Version,
	}
}

// ToOrderListItemResponse converts a domain Order to its list form
func ToOrderListItemResponse(o *order.Order) OrderListItemResponse {
	return OrderListItemResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		ItemCount:     o.ItemCount(),
		TotalQuantity: o.TotalQuantity(),
		Total:         o.Total,
		Currency:      o.Currency,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
	}
}
