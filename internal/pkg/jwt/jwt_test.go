package jwt

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService("test-secret-key-for-jwt", "1h", "24h")
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_RejectsBadDuration(t *testing.T) {
	_, err := NewJWTService("secret", "soon", "24h")
	assert.Error(t, err)
}

func TestGenerateAccessToken_CarriesRole(t *testing.T) {
	svc := newTestService(t)

	token, exp, err := svc.GenerateAccessToken("u-1", "f@test", user.Formateur)
	require.NoError(t, err)
	assert.NotZero(t, exp)

	decoded, err := jwtauth.VerifyToken(svc.JWTAuth(), token)
	require.NoError(t, err)
	claims, err := decoded.AsMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "formateur", claims["role"])
	assert.Equal(t, TokenTypeAccess, claims["type"])
	assert.Equal(t, "u-1", claims["user_id"])
}

func TestValidateRefreshToken(t *testing.T) {
	svc := newTestService(t)

	refresh, exp, err := svc.GenerateRefreshToken("u-1")
	require.NoError(t, err)

	userID, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)

	svc.RevokeToken(refresh, exp)
	_, err = svc.ValidateRefreshToken(refresh)
	assert.Error(t, err)
}

func TestValidateRefreshToken_RejectsAccessToken(t *testing.T) {
	svc := newTestService(t)
	access, _, err := svc.GenerateAccessToken("u-1", "a@test", user.Admin)
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestSSEToken_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, expiresIn, err := svc.GenerateSSEToken("u-2")
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)

	userID, err := svc.ValidateSSEToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-2", userID)

	_, err = svc.ValidateSSEToken("not-a-token")
	assert.Error(t, err)
}
