package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"go.uber.org/zap"
)

// UserService handles admin user management
type UserService struct {
	userRepo   identity.UserRepository
	jwtService *auth.JWTService
	blacklist  auth.TokenBlacklist
	logger     *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	userRepo identity.UserRepository,
	jwtService *auth.JWTService,
	blacklist auth.TokenBlacklist,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:   userRepo,
		jwtService: jwtService,
		blacklist:  blacklist,
		logger:     logger,
	}
}

// ListUsers returns a page of users
func (s *UserService) ListUsers(ctx context.Context, filter UserListFilter) ([]UserResponse, int64, error) {
	repoFilter := identity.UserFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		},
		Role: identity.Role(filter.Role),
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.PageSize <= 0 {
		repoFilter.PageSize = 20
	}
	if repoFilter.OrderBy == "" {
		repoFilter.OrderBy = "created_at"
		repoFilter.OrderDir = "desc"
	}

	users, total, err := s.userRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = ToUserResponse(&users[i])
	}
	return out, total, nil
}

// GetUser returns a single user
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

// SetRole changes a user's role. Tokens issued under the old role are
// revoked. Admins cannot change their own role.
func (s *UserService) SetRole(ctx context.Context, actorID, userID uuid.UUID, req SetRoleRequest) (*UserResponse, error) {
	if actorID == userID {
		return nil, shared.NewDomainError("CANNOT_CHANGE_OWN_ROLE", "You cannot change your own role")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if err := user.SetRole(identity.Role(req.Role)); err != nil {
		return nil, err
	}
	if previous == user.Role {
		resp := ToUserResponse(user)
		return &resp, nil
	}

	if err := s.userRepo.Save(ctx, user); err != nil {
		return nil, err
	}
	if err := s.blacklist.RevokeUser(ctx, userID.String(), s.jwtService.GetRefreshTokenExpiration()); err != nil {
		s.logger.Error("Failed to revoke tokens after role change",
			zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}

	s.logger.Info("User role changed",
		zap.String("user_id", userID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(user.Role)),
	)
	resp := ToUserResponse(user)
	return &resp, nil
}

// CreateAdmin creates an admin account
func (s *UserService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*UserResponse, error) {
	exists, err := s.userRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("EMAIL_EXISTS", "An account with this email already exists")
	}

	user, err := identity.NewAdmin(req.Email, req.Name, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewDomainError("EMAIL_EXISTS", "An account with this email already exists")
		}
		return nil, err
	}

	s.logger.Info("Admin account created", zap.String("user_id", user.ID.String()))
	resp := ToUserResponse(user)
	return &resp, nil
}
