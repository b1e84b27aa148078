// Package auth provides OIDC bearer token authentication for the stories service.
package auth

// Header names and schemes.
const (
	// AuthorizationHeader carries the bearer token.
	AuthorizationHeader = "Authorization"

	// BearerScheme is the only accepted authorization scheme (case-insensitive).
	BearerScheme = "Bearer"
)

// contextKey is the type of request context keys set by this package.
type contextKey string

// IdentityContextKey is the context key of the validated domain.Identity.
const IdentityContextKey contextKey = "identity"
