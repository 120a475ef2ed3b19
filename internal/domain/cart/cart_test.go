package cart

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddItem(t *testing.T) {
	c := NewCart(uuid.New())
	productID, variantID := uuid.New(), uuid.New()

	qty, err := c.AddItem(productID, variantID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 2, c.Version)

	qty, err = c.AddItem(productID, variantID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)
	assert.Len(t, c.Items, 1)

	_, err = c.AddItem(productID, variantID, 95)
	assert.Error(t, err)
	_, err = c.AddItem(productID, uuid.New(), 0)
	assert.Error(t, err)
	_, err = c.AddItem(productID, uuid.New(), 100)
	assert.Error(t, err)
}

func TestCart_SetQuantity(t *testing.T) {
	c := NewCart(uuid.New())
	variantID := uuid.New()
	_, err := c.AddItem(uuid.New(), variantID, 1)
	require.NoError(t, err)

	require.NoError(t, c.SetQuantity(variantID, 7))
	assert.Equal(t, 7, c.Item(variantID).Quantity)

	assert.Error(t, c.SetQuantity(variantID, 100))
	assert.Error(t, c.SetQuantity(uuid.New(), 1))

	require.NoError(t, c.SetQuantity(variantID, 0))
	assert.True(t, c.IsEmpty())
}

func TestCart_RemoveAndClear(t *testing.T) {
	c := NewCart(uuid.New())
	a, b := uuid.New(), uuid.New()
	_, _ = c.AddItem(uuid.New(), a, 1)
	_, _ = c.AddItem(uuid.New(), b, 2)
	assert.Equal(t, 3, c.TotalQuantity())

	require.NoError(t, c.RemoveItem(a))
	assert.Error(t, c.RemoveItem(a))
	assert.Nil(t, c.Item(a))

	version := c.Version
	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Equal(t, version+1, c.Version)

	c.Clear()
	assert.Equal(t, version+1, c.Version, "clearing an empty cart is not a change")
}
