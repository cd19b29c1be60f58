package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/pkg/ctxlog"
)

// TokenPair contains an access token and its refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Authenticator issues and validates token pairs.
type Authenticator interface {
	GenerateTokens(ctx context.Context, user *domain.User) (*TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (string, []domain.Role, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// UserCreatedHandler is notified after a user registers. Errors are logged,
// not propagated; registration must not fail on side effects.
type UserCreatedHandler interface {
	OnUserCreated(ctx context.Context, user *domain.User) error
}

// Service implements identity business logic.
type Service struct {
	repo          Repository
	auth          Authenticator
	onUserCreated UserCreatedHandler
}

// NewService creates a new identity service. The userCreatedHandler may be nil.
func NewService(repo Repository, auth Authenticator, onUserCreated UserCreatedHandler) *Service {
	return &Service{
		repo:          repo,
		auth:          auth,
		onUserCreated: onUserCreated,
	}
}

// RegisterInput contains registration data.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a new user account. New users start as reliability
// engineers; other roles are assigned by an admin.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if _, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:     input.Email,
		Password:  string(hash),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Roles:     []domain.Role{domain.RoleReliabilityEngineer},
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.onUserCreated != nil {
		if err := s.onUserCreated.OnUserCreated(ctx, user); err != nil {
			ctxlog.FromContext(ctx).Warn("user created handler failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	return user, nil
}

// LoginInput contains login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// Login authenticates a user and issues a token pair.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.auth.GenerateTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	return user, tokens, nil
}

// RefreshTokens exchanges a valid refresh token for a new token pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.auth.RefreshTokens(ctx, refreshToken)
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.auth.RevokeRefreshToken(ctx, refreshToken)
}

// GetUserByID returns a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GetUserRoles returns the roles held by a user.
func (s *Service) GetUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}

// ListUsersByRole returns users holding the given role.
func (s *Service) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return s.repo.ListUsersByRole(ctx, role)
}

// SetUserRoles replaces a user's roles. Admin-only at the HTTP layer.
func (s *Service) SetUserRoles(ctx context.Context, userID string, roles []domain.Role) (*domain.User, error) {
	for _, role := range roles {
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
		}
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Roles = roles
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, []domain.Role, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}
