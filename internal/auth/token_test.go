// ABOUTME: Unit tests for JWT authentication and token generation
// ABOUTME: Tests valid, invalid, expired tokens and tenant claim defaults

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestAuthenticator(t *testing.T) *JWTAuthenticator {
	t.Helper()
	a, err := NewJWTAuthenticator(testSecret)
	require.NoError(t, err)
	return a
}

func TestNewJWTAuthenticator_RejectsShortSecret(t *testing.T) {
	_, err := NewJWTAuthenticator([]byte("short"))
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	a := newTestAuthenticator(t)

	token, err := a.Generate("user-1", "space-1", time.Hour)
	require.NoError(t, err)

	p, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "user-1", TenantID: "space-1"}, p)
}

func TestJWTAuthenticator_PersonalSpaceDefault(t *testing.T) {
	a := newTestAuthenticator(t)

	token, err := a.Generate("user-1", "", time.Hour)
	require.NoError(t, err)

	p, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.TenantID)
}

func TestJWTAuthenticator_InvalidToken(t *testing.T) {
	a := newTestAuthenticator(t)

	other, err := NewJWTAuthenticator([]byte("a-different-secret-of-32-bytes!!"))
	require.NoError(t, err)
	foreign, err := other.Generate("user-1", "space-1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{name: "wrong secret", token: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTAuthenticator_ExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t)

	token, err := a.Generate("user-1", "space-1", -time.Hour)
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTAuthenticator_MissingSubject(t *testing.T) {
	a := newTestAuthenticator(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)

	_, err = a.Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTAuthenticator_Authenticate(t *testing.T) {
	a := newTestAuthenticator(t)
	token, err := a.Generate("user-1", "space-1", time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		p, err := a.Authenticate(req)
		require.NoError(t, err)
		assert.Equal(t, "space-1", p.TenantID)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream?token="+token, nil)

		p, err := a.Authenticate(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
	})

	t.Run("no credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

		_, err := a.Authenticate(req)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("bad token wraps both sentinels", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		req.Header.Set("Authorization", "Bearer nope")

		_, err := a.Authenticate(req)
		assert.True(t, errors.Is(err, ErrUnauthenticated))
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}
