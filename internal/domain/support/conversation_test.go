package support

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	c, err := NewConversation(uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "Support request", c.Subject)
	assert.True(t, c.IsOpen())
	assert.Len(t, c.GetDomainEvents(), 1)

	_, err = NewConversation(uuid.New(), strings.Repeat("x", 201))
	assert.Error(t, err)
}

func TestConversation_Post(t *testing.T) {
	customer := uuid.New()
	staff := uuid.New()
	c, err := NewConversation(customer, "Where is my order?")
	require.NoError(t, err)

	msg, err := c.Post(customer, SenderCustomer, "  Hello  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Body)
	assert.Equal(t, c.ID, msg.ConversationID)
	assert.Equal(t, 1, c.UnreadCountStaff)
	assert.NotNil(t, c.LastMessageAt)

	_, err = c.Post(staff, SenderStaff, "On its way")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadCountCustomer)

	_, err = c.Post(uuid.New(), SenderCustomer, "I am someone else")
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	_, err = c.Post(customer, SenderCustomer, "")
	assert.Error(t, err)

	_, err = c.Post(customer, SenderCustomer, strings.Repeat("é", MaxMessageLength))
	assert.NoError(t, err, "limit counts characters, not bytes")

	_, err = c.Post(customer, SenderCustomer, strings.Repeat("a", MaxMessageLength+1))
	assert.Error(t, err)
}

func TestConversation_CloseAndReopen(t *testing.T) {
	customer := uuid.New()
	c, err := NewConversation(customer, "Refund")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.Error(t, c.Close())
	assert.NotNil(t, c.ClosedAt)

	_, err = c.Post(uuid.New(), SenderStaff, "hi")
	assert.Error(t, err, "staff cannot post to a closed conversation")

	_, err = c.Post(customer, SenderCustomer, "still need help")
	require.NoError(t, err)
	assert.True(t, c.IsOpen())
	assert.Nil(t, c.ClosedAt)
}

func TestConversation_MarkRead(t *testing.T) {
	customer := uuid.New()
	c, _ := NewConversation(customer, "Sizing")
	_, _ = c.Post(customer, SenderCustomer, "Does M run small?")
	_, _ = c.Post(uuid.New(), SenderStaff, "A little")

	version := c.Version
	c.MarkRead(SenderStaff)
	assert.Equal(t, 0, c.UnreadCountStaff)
	assert.Equal(t, 1, c.UnreadCountCustomer)
	assert.Equal(t, version+1, c.Version)

	c.MarkRead(SenderStaff)
	assert.Equal(t, version+1, c.Version)

	assert.True(t, c.CanAccess(customer, false))
	assert.False(t, c.CanAccess(uuid.New(), false))
	assert.True(t, c.CanAccess(uuid.New(), true))
}
