package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/pkg/config"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockAuthRepo struct {
	users      map[string]models.User
	byEmail    map[string]string
	tokens     map[string]models.RefreshToken // keyed by token value
	revokedIDs []string
	revokedAll []string
	lastLogin  map[string]time.Time
	passwords  map[string]string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:     map[string]models.User{},
		byEmail:   map[string]string{},
		tokens:    map[string]models.RefreshToken{},
		lastLogin: map[string]time.Time{},
		passwords: map[string]string{},
	}
}

func (m *mockAuthRepo) addUser(user models.User) {
	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.FindByID(ctx, id)
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u := m.users[id]
	u.PasswordHash = passwordHash
	m.users[id] = u
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = "tok-" + token.Token[:8]
	}
	m.tokens[token.Token] = *token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for value, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			m.tokens[value] = t
		}
	}
	m.revokedIDs = append(m.revokedIDs, id)
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "registry-api-test",
		Expiration:        15 * time.Minute,
		RefreshExpiration: 24 * time.Hour,
	}
}

func newAuthServiceFixture(t *testing.T) (*mockAuthRepo, *AuthService) {
	t.Helper()
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.addUser(models.User{
		ID:           "user-1",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		FullName:     "Admin",
		Role:         models.RoleAdmin,
		Active:       true,
	})
	return repo, NewAuthService(repo, testJWTConfig(), validator.New(), zap.NewNop())
}

func TestAuthServiceLogin(t *testing.T) {
	repo, svc := newAuthServiceFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "Admin@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Contains(t, repo.lastLogin, "user-1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	_, svc := newAuthServiceFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	_, svc := newAuthServiceFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo, svc := newAuthServiceFixture(t)
	u := repo.users["user-1"]
	u.Active = false
	repo.users["user-1"] = u

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "secret1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	repo, svc := newAuthServiceFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	old := repo.tokens[login.RefreshToken]
	assert.True(t, old.Revoked)

	// reusing the rotated token must fail
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo, svc := newAuthServiceFixture(t)
	repo.tokens["stale"] = models.RefreshToken{
		ID:        "tok-stale",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceLogoutIdempotent(t *testing.T) {
	_, svc := newAuthServiceFixture(t)

	require.NoError(t, svc.Logout(context.Background(), "unknown-token"))
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo, svc := newAuthServiceFixture(t)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "user-1")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["user-1"].PasswordHash), []byte("secret2")))
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	_, svc := newAuthServiceFixture(t)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "secret2"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceValidateTokenGarbage(t *testing.T) {
	_, svc := newAuthServiceFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
