package main

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	catalogapp "github.com/shopfront/backend/internal/application/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCreator struct {
	requests []catalogapp.CreateProductRequest
	failAt   int
}

func (r *recordingCreator) Create(_ context.Context, req catalogapp.CreateProductRequest) (*catalogapp.ProductResponse, error) {
	if r.failAt > 0 && len(r.requests)+1 == r.failAt {
		return nil, errors.New("duplicate sku")
	}
	r.requests = append(r.requests, req)
	return &catalogapp.ProductResponse{Name: req.Name}, nil
}

func TestSeedCatalog(t *testing.T) {
	creator := &recordingCreator{}

	created, err := seedCatalog(context.Background(), creator, gofakeit.New(42), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, created)
	require.Len(t, creator.requests, 5)

	skus := map[string]bool{}
	for _, req := range creator.requests {
		assert.NotEmpty(t, req.Name)
		assert.True(t, req.Activate)
		assert.True(t, req.BasePrice.IsPositive())
		require.Len(t, req.Variants, len(seedSizes))
		for i, v := range req.Variants {
			assert.Equal(t, seedSizes[i], v.Size)
			assert.Equal(t, req.Variants[0].Color, v.Color)
			assert.GreaterOrEqual(t, v.InitialStock, 0)
			assert.LessOrEqual(t, v.InitialStock, 10)
			skus[v.SKU] = true
		}
	}
	assert.Len(t, skus, 5*len(seedSizes))
}

func TestSeedCatalog_Deterministic(t *testing.T) {
	a, b := &recordingCreator{}, &recordingCreator{}

	_, err := seedCatalog(context.Background(), a, gofakeit.New(7), 3, 20)
	require.NoError(t, err)
	_, err = seedCatalog(context.Background(), b, gofakeit.New(7), 3, 20)
	require.NoError(t, err)

	for i := range a.requests {
		assert.Equal(t, a.requests[i].Name, b.requests[i].Name)
		assert.Equal(t, a.requests[i].Variants[0].SKU, b.requests[i].Variants[0].SKU)
	}
}

func TestSeedCatalog_StopsOnError(t *testing.T) {
	creator := &recordingCreator{failAt: 3}

	created, err := seedCatalog(context.Background(), creator, gofakeit.New(1), 5, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate sku")
	assert.Equal(t, 2, created)
}
