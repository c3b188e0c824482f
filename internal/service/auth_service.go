package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/spec-kit/support-hub/internal/auth"
	"github.com/spec-kit/support-hub/internal/config"
	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/repository"
	"github.com/spec-kit/support-hub/pkg/util"
)

const minPasswordLength = 8

// AuthService resolves credentials to actors: signup, login, token issuance.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	cost   int
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository) *AuthService {
	return &AuthService{
		users:  users,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		cost:   cfg.BcryptCost,
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// SignupInput describes registration payload. New accounts are customers;
// agents are provisioned out of band.
type SignupInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// AuthResult carries the user and a signed access token.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// Signup registers a customer account and returns a signed token.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	details := map[string]any{}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "is not a valid email address"
	}
	if len(input.Password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, util.NewValidationFailed("signup is invalid", details)
	}

	hash, err := auth.HashPassword(input.Password, s.cost)
	if err != nil {
		return nil, util.NewOperationFailed(err)
	}

	user := &domain.User{
		Email:        email,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, util.NewValidationFailed("signup is invalid", map[string]any{"email": "has already been taken"})
		}
		return nil, util.NewOperationFailed(err)
	}

	return s.issueToken(user)
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewUnauthenticated("invalid email or password")
		}
		return nil, util.NewOperationFailed(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, util.NewUnauthenticated("invalid email or password")
	}
	return s.issueToken(user)
}

func (s *AuthService) issueToken(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, util.NewOperationFailed(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
