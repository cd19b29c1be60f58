// Package jwt implements the identity Authenticator with HS256 access tokens
// and opaque, hashed refresh tokens persisted through the identity repository.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/identity"
)

// Config contains authenticator settings.
type Config struct {
	SecretKey            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// TokenStore persists refresh tokens and resolves users during refresh.
type TokenStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
}

// Authenticator issues and validates JWT access tokens.
type Authenticator struct {
	config Config
	store  TokenStore
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config, store TokenStore) *Authenticator {
	return &Authenticator{config: config, store: store}
}

type claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// GenerateTokens issues an access/refresh token pair for the user. The
// refresh token is opaque; only its SHA-256 hash is stored.
func (a *Authenticator) GenerateTokens(ctx context.Context, user *domain.User) (*identity.TokenPair, error) {
	accessToken, err := a.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := generateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().Add(a.config.RefreshTokenDuration),
	}
	if err := a.store.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &identity.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateAccessToken parses and validates an access token, returning the
// user ID and roles embedded in it.
func (a *Authenticator) ValidateAccessToken(_ context.Context, tokenString string) (string, []domain.Role, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", nil, identity.ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.Subject == "" {
		return "", nil, identity.ErrInvalidToken
	}

	roles := make([]domain.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, domain.Role(r))
	}

	return c.Subject, roles, nil
}

// RefreshTokens rotates a refresh token: validates the stored hash, revokes
// it, and issues a fresh pair against the user's current roles.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	tokenHash := hashToken(refreshToken)

	record, err := a.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}
	if record == nil || time.Now().After(record.ExpiresAt) {
		return nil, identity.ErrInvalidToken
	}

	user, err := a.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	if err := a.store.DeleteRefreshToken(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("delete refresh token: %w", err)
	}

	return a.GenerateTokens(ctx, user)
}

// RevokeRefreshToken deletes the stored refresh token.
func (a *Authenticator) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.store.DeleteRefreshToken(ctx, hashToken(refreshToken))
}

func (a *Authenticator) generateAccessToken(user *domain.User) (string, error) {
	now := time.Now()

	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, string(r))
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(a.config.SecretKey))
}

func generateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
