// Package identity manages API users and their bearer tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
)

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticator issues and validates access tokens.
type Authenticator interface {
	GenerateToken(ctx context.Context, user *domain.User) (*Token, error)
	ValidateAccessToken(ctx context.Context, token string) (userID string, role domain.Role, err error)
}

// Service implements identity business logic.
type Service struct {
	repo Repository
	auth Authenticator
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{repo: repo, auth: auth}
}

// CreateUserInput holds data for creating an API user.
type CreateUserInput struct {
	Email    string
	Password string
	Role     domain.Role
}

// CreateUser creates an API user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)

	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleOperator
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// LoginInput holds credentials.
type LoginInput struct {
	Email    string
	Password string
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *Token, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// GetUserByID returns a user by id.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, domain.Role, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}

// EnsureAdmin creates the bootstrap admin account, or resets its password
// when it already exists. Empty credentials disable the bootstrap.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	log := ctxlog.FromContext(ctx)

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, ErrUserNotFound):
		if _, err := s.CreateUser(ctx, CreateUserInput{Email: email, Password: password, Role: domain.RoleAdmin}); err != nil {
			return err
		}
		log.Info("bootstrap admin created", "email", email)
		return nil
	case err != nil:
		return fmt.Errorf("get admin: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	log.Info("bootstrap admin password updated", "email", email)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
