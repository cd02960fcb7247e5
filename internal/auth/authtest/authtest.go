// ABOUTME: Fake Authenticator implementations for tests of authenticated handlers
// ABOUTME: Lets tests run several tenants against one server without signing JWTs

// Package authtest provides Authenticator fakes for tests.
package authtest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/2389/prompt-gateway/internal/auth"
)

// Static always resolves to the same principal, or always fails when Err is set.
type Static struct {
	Principal auth.Principal
	Err       error
}

// Authenticate implements auth.Authenticator.
func (s Static) Authenticate(*http.Request) (auth.Principal, error) {
	if s.Err != nil {
		return auth.Principal{}, s.Err
	}
	return s.Principal, nil
}

// Tokens resolves principals from a lookup table keyed by bearer token.
type Tokens map[string]auth.Principal

// Authenticate implements auth.Authenticator.
func (t Tokens) Authenticate(r *http.Request) (auth.Principal, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return auth.Principal{}, errors.Join(auth.ErrUnauthenticated, errors.New("missing bearer token"))
	}
	p, ok := t[token]
	if !ok {
		return auth.Principal{}, errors.Join(auth.ErrUnauthenticated, auth.ErrInvalidToken)
	}
	return p, nil
}

var (
	_ auth.Authenticator = Static{}
	_ auth.Authenticator = Tokens{}
)
