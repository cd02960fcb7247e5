// Package auth resolves the identity behind stream and RPC requests.
//
// # Principals
//
// Every authenticated request carries a Principal:
//
//   - UserID: the owning user (JWT "sub" claim)
//   - TenantID: the workspace scope (JWT "tenant_id" claim); tokens without the
//     claim are scoped to the user's personal space, whose id is the user id
//
// The principal is resolved once per request and only passed through; nothing in
// this package persists it.
//
// # JWT Tokens
//
// Tokens are HS256 signed with the configured jwt_secret (at least 32 bytes):
//
//	authn, err := auth.NewJWTAuthenticator([]byte(secret))
//	token, err := authn.Generate("user-1", "space-42", 24*time.Hour)
//
// Clients send the token as "Authorization: Bearer <token>". Browser
// EventSource clients, which cannot set headers, may pass "?token=<token>".
//
// # Middleware
//
// HTTPAuthMiddleware rejects unauthenticated requests with 401 before the
// wrapped handler runs, and stores the Principal in the request context:
//
//	mux.Handle("/api/prompts", auth.HTTPAuthMiddleware(authn)(handler))
//	p := auth.MustFromContext(r.Context())
package auth
