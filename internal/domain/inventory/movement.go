package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// MovementReason explains why stock changed
type MovementReason string

const (
	ReasonInitial       MovementReason = "INITIAL"
	ReasonRestock       MovementReason = "RESTOCK"
	ReasonAdjustment    MovementReason = "ADJUSTMENT"
	ReasonOrderReserved MovementReason = "ORDER_RESERVED"
	ReasonOrderReleased MovementReason = "ORDER_RELEASED"
)

// IsValid reports whether r is a known reason
func (r MovementReason) IsValid() bool {
	switch r {
	case ReasonInitial, ReasonRestock, ReasonAdjustment, ReasonOrderReserved, ReasonOrderReleased:
		return true
	}
	return false
}

// IsManual reports whether the reason may be used by admin stock edits
func (r MovementReason) IsManual() bool {
	return r == ReasonInitial || r == ReasonRestock || r == ReasonAdjustment
}

// StockMovement is one append-only ledger row. There is exactly one row per
// variant per idempotency key.
type StockMovement struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	IdempotencyKey string         `gorm:"type:varchar(200);not null;uniqueIndex:idx_movement_key_variant,priority:1"`
	RequestHash    string         `gorm:"type:varchar(64);not null"`
	ProductID      uuid.UUID      `gorm:"type:uuid;not null;index"`
	VariantID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_movement_key_variant,priority:2"`
	SKU            string         `gorm:"type:varchar(64);not null"`
	Delta          int            `gorm:"not null"`
	Reason         MovementReason `gorm:"type:varchar(30);not null;index"`
	Reference      string         `gorm:"type:varchar(100);index"`
	BalanceAfter   int            `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// RequestOrigin tells who asked for a ledger request
type RequestOrigin string

const (
	// OriginLocal marks requests made in process, by admins or by this
	// instance's own orders
	OriginLocal RequestOrigin = "LOCAL"
	// OriginRemote marks reservations made over the reservations API for
	// orders stored by another service
	OriginRemote RequestOrigin = "REMOTE"
)

// releasedMarker is stored as the request hash of a reservation key that was
// released before anything was reserved under it
const releasedMarker = "released"

// ErrReservationReleased is returned when an order reserves after its release
var ErrReservationReleased = shared.NewDomainError("RESERVATION_RELEASED", "Order reservation was already released")

// StockRequest records that an idempotency key was applied. It is written
// for every request, including ones that moved no stock, so a replay never
// applies twice.
type StockRequest struct {
	IdempotencyKey string         `gorm:"type:varchar(200);primaryKey"`
	RequestHash    string         `gorm:"type:varchar(64);not null"`
	Reason         MovementReason `gorm:"type:varchar(30);not null"`
	Reference      string         `gorm:"type:varchar(100);index"`
	Origin         RequestOrigin  `gorm:"type:varchar(10);not null;default:LOCAL"`
	CreatedAt      time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockRequest) TableName() string {
	return "stock_requests"
}

// IsReleasedMarker reports whether the request only blocks a reservation key
func (r StockRequest) IsReleasedMarker() bool {
	return r.RequestHash == releasedMarker
}

// NewReleasedMarker blocks the reservation key of an order released before
// it reserved anything
func NewReleasedMarker(orderID uuid.UUID, now time.Time) StockRequest {
	return StockRequest{
		IdempotencyKey: ReservationKey(orderID),
		RequestHash:    releasedMarker,
		Reason:         ReasonOrderReserved,
		Reference:      orderID.String(),
		Origin:         OriginLocal,
		CreatedAt:      now,
	}
}

// StockLine is a requested delta for one variant
type StockLine struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Delta     int       `json:"delta"`
}

// MergeLines folds lines for the same variant together, drops zero deltas
// and returns them sorted by variant id so locks are taken in a stable order.
func MergeLines(lines []StockLine) []StockLine {
	byVariant := make(map[uuid.UUID]*StockLine, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if existing, ok := byVariant[l.VariantID]; ok {
			existing.Delta += l.Delta
			continue
		}
		line := l
		byVariant[l.VariantID] = &line
		order = append(order, l.VariantID)
	}

	merged := make([]StockLine, 0, len(order))
	for _, id := range order {
		if byVariant[id].Delta != 0 {
			merged = append(merged, *byVariant[id])
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].VariantID.String() < merged[j].VariantID.String()
	})
	return merged
}

// Fingerprint hashes the semantic content of a ledger request so a replayed
// idempotency key can be checked against the original payload.
func Fingerprint(reason MovementReason, reference string, lines []StockLine) string {
	var b strings.Builder
	b.WriteString(string(reason))
	b.WriteByte('|')
	b.WriteString(reference)
	for _, l := range MergeLines(lines) {
		fmt.Fprintf(&b, "|%s:%d", l.VariantID, l.Delta)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ApplyDelta returns the new balance or ErrInsufficientStock when it would go negative
func ApplyDelta(current, delta int) (int, error) {
	next := current + delta
	if next < 0 {
		return current, shared.ErrInsufficientStock
	}
	return next, nil
}

// ReservationKey is the idempotency key used when an order reserves stock
func ReservationKey(orderID uuid.UUID) string {
	return "order:" + orderID.String() + ":reserve"
}

// ReleaseKey is the idempotency key used when an order's reservation is released
func ReleaseKey(orderID uuid.UUID) string {
	return "order:" + orderID.String() + ":release"
}

// ReleaseLines inverts the reserved movements of an order
func ReleaseLines(reserved []StockMovement) []StockLine {
	lines := make([]StockLine, 0, len(reserved))
	for _, m := range reserved {
		if m.Reason != ReasonOrderReserved {
			continue
		}
		lines = append(lines, StockLine{ProductID: m.ProductID, VariantID: m.VariantID, Delta: -m.Delta})
	}
	return lines
}
