package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	t.Run("creates active customer", func(t *testing.T) {
		user, err := NewUser("  Ada@Example.COM ", "Ada", "Password123")

		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.Equal(t, RoleCustomer, user.Role)
		assert.Equal(t, UserStatusActive, user.Status)
		assert.NotEqual(t, "Password123", user.PasswordHash)
		assert.True(t, user.VerifyPassword("Password123"))
		assert.False(t, user.VerifyPassword("wrong"))

		events := user.GetDomainEvents()
		require.Len(t, events, 1)
		_, ok := events[0].(*UserRegisteredEvent)
		assert.True(t, ok)
	})

	tests := []struct {
		name     string
		email    string
		userName string
		password string
		errPart  string
	}{
		{"empty email", "", "Ada", "Password123", "Email cannot be empty"},
		{"bad email", "not-an-email", "Ada", "Password123", "Invalid email format"},
		{"empty name", "a@b.co", " ", "Password123", "Name cannot be empty"},
		{"short password", "a@b.co", "Ada", "Pass1", "at least 8 characters"},
		{"password without digit", "a@b.co", "Ada", "Password", "one letter and one number"},
		{"password without letter", "a@b.co", "Ada", "12345678", "one letter and one number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.email, tt.userName, tt.password)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestNewAdmin(t *testing.T) {
	admin, err := NewAdmin("root@shop.io", "Root", "Password123")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestUser_ChangePassword(t *testing.T) {
	user, err := NewUser("a@b.co", "Ada", "Password123")
	require.NoError(t, err)

	assert.Error(t, user.ChangePassword("wrong", "NewPassword1"))
	assert.Error(t, user.ChangePassword("Password123", "Password123"))
	require.NoError(t, user.ChangePassword("Password123", "NewPassword1"))
	assert.True(t, user.VerifyPassword("NewPassword1"))
}

func TestUser_LoginFailures(t *testing.T) {
	user, err := NewUser("a@b.co", "Ada", "Password123")
	require.NoError(t, err)

	assert.False(t, user.RecordLoginFailure(3, time.Minute))
	assert.False(t, user.RecordLoginFailure(3, time.Minute))
	assert.True(t, user.RecordLoginFailure(3, time.Minute))
	assert.True(t, user.IsLocked())
	assert.False(t, user.CanLogin())

	past := time.Now().Add(-time.Second)
	user.LockedUntil = &past
	assert.False(t, user.IsLocked(), "expired locks no longer block")

	user.RecordLoginSuccess("127.0.0.1")
	assert.Equal(t, UserStatusActive, user.Status)
	assert.Equal(t, 0, user.FailedAttempts)
	assert.NotNil(t, user.LastLoginAt)
}

func TestUser_SetRole(t *testing.T) {
	user, err := NewUser("a@b.co", "Ada", "Password123")
	require.NoError(t, err)
	user.ClearDomainEvents()

	require.NoError(t, user.SetRole(RoleCustomer))
	assert.Empty(t, user.GetDomainEvents())

	require.NoError(t, user.SetRole(RoleAdmin))
	assert.True(t, user.IsAdmin())
	assert.Len(t, user.GetDomainEvents(), 1)

	assert.Error(t, user.SetRole(Role("ROOT")))
}

func TestUser_UpdateProfile(t *testing.T) {
	user, err := NewUser("a@b.co", "Ada", "Password123")
	require.NoError(t, err)

	require.NoError(t, user.UpdateProfile("Ada L.", "+44 20 7946 0958"))
	assert.Equal(t, "Ada L.", user.Name)
	assert.Error(t, user.UpdateProfile("Ada", "call me"))
}
