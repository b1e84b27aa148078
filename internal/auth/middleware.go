package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/domain"
)

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Config contains configuration for the auth middleware.
type Config struct {
	// Optional lets requests without an Authorization header through
	// anonymously. A header that is present must still be valid.
	Optional bool

	// OnError renders failures. Defaults to a minimal JSON error body.
	OnError ErrorWriter
}

// Middleware creates an authentication middleware. The token is validated at
// most once per request and the resulting identity is stored in the request
// context.
func Middleware(validator TokenValidator, config Config) func(http.Handler) http.Handler {
	onError := config.OnError
	if onError == nil {
		onError = writeAuthError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch GetAuthType(r) {
			case AuthTypeAnonymous:
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				onError(w, r, ErrMissingAuthorization)
				return

			case AuthTypeBearer:
				token, _ := ParseBearer(r.Header.Get(AuthorizationHeader))
				identity, err := validator.Validate(r.Context(), token)
				if err != nil {
					zerolog.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("bearer authentication failed")
					if config.Optional {
						err = &AuthError{Message: "Invalid or expired token", Cause: err}
					}
					onError(w, r, err)
					return
				}
				r = r.WithContext(WithIdentity(r.Context(), *identity))

			default:
				onError(w, r, ErrInvalidTokenFormat)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, onError ErrorWriter) func(http.Handler) http.Handler {
	return Middleware(validator, Config{OnError: onError})
}

// OptionalAuth resolves the identity when a token is present.
func OptionalAuth(validator TokenValidator, onError ErrorWriter) func(http.Handler) http.Handler {
	return Middleware(validator, Config{Optional: true, OnError: onError})
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(domain.Identity)
	return identity, ok
}

// writeAuthError writes a JSON 401 response.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	if authErr, ok := err.(*AuthError); ok {
		message = authErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       true,
		"message":     message,
		"status_code": http.StatusUnauthorized,
	})
}
