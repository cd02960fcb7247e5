// ABOUTME: HTTP middleware for authenticating API endpoints
// ABOUTME: Rejects with 401 before the handler runs, otherwise adds the principal to context

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPAuthMiddleware creates an HTTP middleware that runs the authenticator.
// Failures never reach the wrapped handler.
func HTTPAuthMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authn.Authenticate(r)
			if err != nil {
				WriteUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WriteUnauthorized writes a 401 JSON rejection. Expired tokens are reported
// as such so clients know to refresh; everything else is "invalid token".
func WriteUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid token"
	switch {
	case errors.Is(err, ErrExpiredToken):
		msg = "token expired"
	case !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrMissingClaim):
		msg = "authentication required"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
