package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, db *Database, name string, skus ...string) *catalog.Product {
	t.Helper()

	p, err := catalog.NewProduct(name, "desc", "shirts", "Acme", decimal.NewFromInt(25))
	require.NoError(t, err)
	for i, sku := range skus {
		_, err := p.AddVariant(sku, []string{"S", "M", "L", "XL"}[i%4], "black", nil)
		require.NoError(t, err)
	}
	if len(skus) > 0 {
		require.NoError(t, p.Activate())
	}
	require.NoError(t, NewGormProductRepository(db.DB).Save(context.Background(), p))
	return p
}

func setStock(t *testing.T, db *Database, variantID uuid.UUID, stock int) {
	t.Helper()
	require.NoError(t, db.DB.Model(&catalog.Variant{}).Where("id = ?", variantID).Update("stock", stock).Error)
}

func seedUser(t *testing.T, db *Database, email string) *identity.User {
	t.Helper()

	u, err := identity.NewUser(email, "Test User", "s3cret-Passw0rd")
	require.NoError(t, err)
	require.NoError(t, NewGormUserRepository(db.DB).Create(context.Background(), u))
	return u
}

func testAddress() order.Address {
	return order.Address{
		FullName:   "Jane Doe",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

func newTestOrder(t *testing.T, userID uuid.UUID, number string, p *catalog.Product, qty int) *order.Order {
	t.Helper()

	o, err := order.NewOrder(userID, number, testAddress(), order.PaymentMethodCOD, "USD")
	require.NoError(t, err)
	v := p.Variants[0]
	require.NoError(t, o.AddItem(p.ID, v.ID, v.SKU, p.Name, v.Label(), p.EffectivePrice(&v), qty))
	require.NoError(t, o.Place())
	return o
}
