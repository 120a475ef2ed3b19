package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
)

// UserFilter narrows user listings
type UserFilter struct {
	shared.Filter
	Role Role
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByEmail finds a user by normalized email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// List returns a page of users and the total match count
	List(ctx context.Context, filter UserFilter) ([]User, int64, error)

	// Create inserts a new user; a duplicate email returns ErrAlreadyExists
	Create(ctx context.Context, user *User) error

	// Save updates a user
	Save(ctx context.Context, user *User) error

	// ExistsByEmail checks whether the email is taken
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// CountCreatedBetween counts users created in [from, to)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}
