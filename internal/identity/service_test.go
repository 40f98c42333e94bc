package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users         map[string]*domain.User
	createUserErr error
	getErr        error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	user.ID = "user-" + user.Email
	m.users[user.Email] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) UpdatePassword(_ context.Context, id, hash string) error {
	for _, u := range m.users {
		if u.ID == id {
			u.Password = hash
			return nil
		}
	}
	return ErrUserNotFound
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct{}

func (m *mockAuthenticator) GenerateToken(_ context.Context, user *domain.User) (*Token, error) {
	return &Token{AccessToken: "token-" + user.ID, ExpiresAt: time.Unix(0, 0)}, nil
}

func (m *mockAuthenticator) ValidateAccessToken(_ context.Context, token string) (string, domain.Role, error) {
	if token == "good" {
		return "user-1", domain.RoleOperator, nil
	}
	return "", "", ErrInvalidToken
}

func TestCreateUser(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	user, err := service.CreateUser(context.Background(), CreateUserInput{
		Email:    " Ops@Example.com ",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, domain.RoleOperator, user.Role)
	assert.NotEqual(t, "password123", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))

	_, err = service.CreateUser(context.Background(), CreateUserInput{Email: "ops@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = service.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "x", Role: "root"})
	assert.Error(t, err)
}

func TestCreateUser_RepositoryFails(t *testing.T) {
	repo := newMockRepository()
	repo.createUserErr = errors.New("database error")
	service := NewService(repo, &mockAuthenticator{})

	user, err := service.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "password123"})
	assert.Nil(t, user)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})
	_, err := service.CreateUser(context.Background(), CreateUserInput{Email: "ops@example.com", Password: "password123"})
	require.NoError(t, err)

	user, token, err := service.Login(context.Background(), LoginInput{Email: "OPS@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, "token-user-ops@example.com", token.AccessToken)

	_, _, err = service.Login(context.Background(), LoginInput{Email: "ops@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = service.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	repo.getErr = errors.New("connection reset")
	_, _, err = service.Login(context.Background(), LoginInput{Email: "ops@example.com", Password: "password123"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdmin(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})
	ctx := context.Background()

	require.NoError(t, service.EnsureAdmin(ctx, "", ""))
	assert.Empty(t, repo.users)

	require.NoError(t, service.EnsureAdmin(ctx, "admin@example.com", "first-password"))
	admin := repo.users["admin@example.com"]
	require.NotNil(t, admin)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	require.NoError(t, service.EnsureAdmin(ctx, "admin@example.com", "second-password"))
	assert.Len(t, repo.users, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("second-password")))
}

func TestValidateToken(t *testing.T) {
	service := NewService(newMockRepository(), &mockAuthenticator{})

	userID, role, err := service.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, domain.RoleOperator, role)

	_, _, err = service.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
