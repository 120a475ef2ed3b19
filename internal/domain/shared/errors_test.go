package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("reserve stock: %w", NewDomainError("INSUFFICIENT_STOCK", "SKU-1 has 2 left"))

	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	var domainErr *DomainError
	assert.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, "SKU-1 has 2 left", domainErr.Message)
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2, 3}, 41, 2, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.Page)

	empty := NewPaginated([]int{}, 0, 1, 0)
	assert.Zero(t, empty.TotalPages)
}

func TestFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, Filter{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
	assert.Equal(t, 0, Filter{Page: 0, PageSize: 20}.Offset())
}
