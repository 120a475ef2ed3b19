package persistence

import (
	"context"
	"testing"

	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/support"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportRepository_ConversationLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := seedUser(t, db, "help@example.com")
	staff := seedUser(t, db, "staff@example.com")

	outbox := &recordingOutbox{}
	repo := NewGormSupportRepository(db.DB)
	repo.SetOutboxEventSaver(outbox)

	c, err := support.NewConversation(customer.ID, "Where is my order?")
	require.NoError(t, err)
	msg, err := c.Post(customer.ID, support.SenderCustomer, "It has been a week")
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithMessage(ctx, c, msg))
	assert.Equal(t, []string{support.EventTypeConversationStarted, support.EventTypeMessagePosted}, outbox.types())

	open, err := repo.FindOpenByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, open.ID)
	assert.Equal(t, 1, open.UnreadCountStaff)

	reply, err := open.Post(staff.ID, support.SenderStaff, "Checking now")
	require.NoError(t, err)
	open.MarkRead(support.SenderStaff)
	require.NoError(t, repo.SaveWithMessage(ctx, open, reply))

	messages, total, err := repo.ListMessages(ctx, c.ID, support.MessageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, messages, 2)
	assert.Equal(t, "It has been a week", messages[0].Body)
	assert.Equal(t, "Checking now", messages[1].Body)

	after := messages[0].CreatedAt
	newer, _, err := repo.ListMessages(ctx, c.ID, support.MessageFilter{After: &after})
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, support.SenderStaff, newer[0].SenderRole)

	stored, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UnreadCountStaff)
	assert.Equal(t, 1, stored.UnreadCountCustomer)

	require.NoError(t, stored.Close())
	require.NoError(t, repo.Save(ctx, stored))
	_, err = repo.FindOpenByCustomer(ctx, customer.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSupportRepository_StaleSaveConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := seedUser(t, db, "race@example.com")
	repo := NewGormSupportRepository(db.DB)

	c, err := support.NewConversation(customer.ID, "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c))

	a, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	b, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)

	m1, err := a.Post(customer.ID, support.SenderCustomer, "first")
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithMessage(ctx, a, m1))

	m2, err := b.Post(customer.ID, support.SenderCustomer, "second")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveWithMessage(ctx, b, m2), shared.ErrConcurrencyConflict)

	_, total, err := repo.ListMessages(ctx, c.ID, support.MessageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "the losing message must roll back with its conversation update")
}

func TestSupportRepository_List(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice.support@example.com")
	bob := seedUser(t, db, "bob.support@example.com")
	repo := NewGormSupportRepository(db.DB)

	for owner, subject := range map[*identity.User]string{alice: "A", bob: "B"} {
		c, err := support.NewConversation(owner.ID, subject)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, c))
	}

	all, total, err := repo.List(ctx, support.ConversationFilter{Status: support.ConversationOpen})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	mine, total, err := repo.List(ctx, support.ConversationFilter{CustomerID: &alice.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "A", mine[0].Subject)
}
