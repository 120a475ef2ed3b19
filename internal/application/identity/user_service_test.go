package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupUserService() (*UserService, *MockUserRepository, *auth.InMemoryTokenBlacklist) {
	repo := new(MockUserRepository)
	blacklist := auth.NewInMemoryTokenBlacklist()
	return NewUserService(repo, newTestJWTService(), blacklist, zap.NewNop()), repo, blacklist
}

func TestUserService_ListUsers(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupUserService()
	user := newTestUser(t)

	repo.On("List", ctx, mock.MatchedBy(func(f identity.UserFilter) bool {
		return f.Page == 1 && f.PageSize == 20 && f.OrderBy == "created_at" && f.Role == identity.RoleCustomer
	})).Return([]identity.User{*user}, int64(1), nil)

	users, total, err := svc.ListUsers(ctx, UserListFilter{Role: "CUSTOMER"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, user.Email, users[0].Email)
}

func TestUserService_SetRole(t *testing.T) {
	ctx := context.Background()
	adminID := uuid.New()

	t.Run("promotes and revokes tokens", func(t *testing.T) {
		svc, repo, blacklist := setupUserService()
		user := newTestUser(t)
		issuedAt := time.Now()
		repo.On("FindByID", ctx, user.ID).Return(user, nil)
		repo.On("Save", ctx, user).Return(nil)

		resp, err := svc.SetRole(ctx, adminID, user.ID, SetRoleRequest{Role: "ADMIN"})
		require.NoError(t, err)
		assert.Equal(t, "ADMIN", resp.Role)

		revoked, err := blacklist.IsUserRevoked(ctx, user.ID.String(), issuedAt)
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("same role is a no-op", func(t *testing.T) {
		svc, repo, _ := setupUserService()
		user := newTestUser(t)
		repo.On("FindByID", ctx, user.ID).Return(user, nil)

		resp, err := svc.SetRole(ctx, adminID, user.ID, SetRoleRequest{Role: "CUSTOMER"})
		require.NoError(t, err)
		assert.Equal(t, "CUSTOMER", resp.Role)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("own role", func(t *testing.T) {
		svc, _, _ := setupUserService()
		_, err := svc.SetRole(ctx, adminID, adminID, SetRoleRequest{Role: "CUSTOMER"})
		assertDomainCode(t, err, "CANNOT_CHANGE_OWN_ROLE")
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, repo, _ := setupUserService()
		id := uuid.New()
		repo.On("FindByID", ctx, id).Return(nil, shared.ErrNotFound)

		_, err := svc.SetRole(ctx, adminID, id, SetRoleRequest{Role: "ADMIN"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestUserService_CreateAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates", func(t *testing.T) {
		svc, repo, _ := setupUserService()
		repo.On("ExistsByEmail", ctx, "ops@example.com").Return(false, nil)
		repo.On("Create", ctx, mock.MatchedBy(func(u *identity.User) bool { return u.IsAdmin() })).Return(nil)

		resp, err := svc.CreateAdmin(ctx, CreateAdminRequest{Email: "ops@example.com", Name: "Ops", Password: testPassword})
		require.NoError(t, err)
		assert.Equal(t, "ADMIN", resp.Role)
	})

	t.Run("existing email", func(t *testing.T) {
		svc, repo, _ := setupUserService()
		repo.On("ExistsByEmail", ctx, "ops@example.com").Return(true, nil)

		_, err := svc.CreateAdmin(ctx, CreateAdminRequest{Email: "ops@example.com", Name: "Ops", Password: testPassword})
		assertDomainCode(t, err, "EMAIL_EXISTS")
	})
}
