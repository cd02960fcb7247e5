// ABOUTME: JWT authentication for stream and RPC requests
// ABOUTME: Uses HS256 signing; resolves the user and tenant scope from token claims

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// TenantClaim is the JWT claim carrying the workspace scope.
const TenantClaim = "tenant_id"

// Token errors
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token expired")
	ErrMissingClaim    = errors.New("missing required claim")
	ErrSecretTooShort  = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Authenticator resolves the principal behind an inbound request.
// Implementations must be idempotent and side-effect free.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// JWTAuthenticator implements Authenticator using HS256 signed JWTs
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates a new JWT authenticator with the given secret
func NewJWTAuthenticator(secret []byte) (*JWTAuthenticator, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &JWTAuthenticator{secret: secret}, nil
}

// Authenticate extracts a token from the Authorization header, or from the
// "token" query parameter for EventSource clients that cannot set headers.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		token = r.URL.Query().Get("token")
		if token == "" {
			return Principal{}, fmt.Errorf("%w: %s", ErrUnauthenticated, errMsg)
		}
	}

	p, err := a.Verify(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return p, nil
}

// Verify validates the token and builds a Principal from its claims.
// A token without a tenant claim is scoped to the user's personal space.
func (a *JWTAuthenticator) Verify(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	tenant, _ := claims[TenantClaim].(string)
	if tenant == "" {
		tenant = sub
	}

	return Principal{UserID: sub, TenantID: tenant}, nil
}

// Generate creates a new token for the user and tenant with expiration.
// An empty tenantID leaves the claim out, scoping the token to the personal space.
func (a *JWTAuthenticator) Generate(userID, tenantID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if tenantID != "" {
		claims[TenantClaim] = tenantID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}
