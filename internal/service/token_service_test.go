package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmark/clipmark-api/internal/models"
	"github.com/clipmark/clipmark-api/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test_secret",
		Issuer:            "clipmark-api",
		Audience:          []string{"clipmark-web"},
		Expiration:        15 * time.Minute,
		RefreshExpiration: 7 * 24 * time.Hour,
	}
}

func testUser() *models.User {
	return &models.User{ID: 7, FullName: "Alice", Email: "alice@example.com", Role: models.RoleUser}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewTokenService(testJWTConfig())

	signed, expiresAt, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.FullName)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "7", claims.Subject)
}

func TestValidateAccessTokenAfterTTL(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewTokenService(testJWTConfig()).WithClock(func() time.Time { return current })

	signed, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(signed)
	require.NoError(t, err)

	// Zero leeway: the expiry instant itself is already invalid.
	current = base.Add(15 * time.Minute)
	_, err = svc.ValidateAccessToken(signed)
	assert.Error(t, err)
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService(testJWTConfig())
	signed, _, err := issuer.GenerateAccessToken(testUser())
	require.NoError(t, err)

	other := testJWTConfig()
	other.Secret = "different_secret"
	verifier := NewTokenService(other)

	_, err = verifier.ValidateAccessToken(signed)
	assert.Error(t, err)
}

func TestValidateAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Issuer = "someone-else"
	signed, _, err := NewTokenService(cfg).GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = NewTokenService(testJWTConfig()).ValidateAccessToken(signed)
	assert.Error(t, err)
}

func TestValidateAccessTokenMalformed(t *testing.T) {
	svc := NewTokenService(testJWTConfig())

	_, err := svc.ValidateAccessToken("not-a-jwt")
	assert.Error(t, err)

	_, ok := svc.UserIDFromToken("not-a-jwt")
	assert.False(t, ok)
}

func TestUserIDFromToken(t *testing.T) {
	svc := NewTokenService(testJWTConfig())
	signed, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	id, ok := svc.UserIDFromToken(signed)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestNewRefreshToken(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService(testJWTConfig()).WithClock(func() time.Time { return base })

	first, err := svc.NewRefreshToken(7)
	require.NoError(t, err)
	second, err := svc.NewRefreshToken(7)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.GreaterOrEqual(t, len(first.Token), 43) // 32 bytes base64url
	assert.Equal(t, base.Add(7*24*time.Hour), first.ExpiresAt)
	assert.False(t, first.Revoked)
}

func TestRefreshTokenExpiryBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token := &models.RefreshToken{ExpiresAt: now}

	assert.True(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(-time.Second)))
	assert.False(t, token.Usable(now))
}
