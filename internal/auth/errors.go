package auth

import (
	"github.com/prn-tf/mvstories/internal/domain"
)

// AuthError is an authentication failure. Every AuthError unwraps to
// domain.ErrUnauthorized.
type AuthError struct {
	// Message is the client facing message.
	Message string

	// Cause is the underlying failure, if any.
	Cause error
}

// Authentication errors.
var (
	// ErrMissingAuthorization indicates a request without an Authorization header.
	ErrMissingAuthorization = &AuthError{Message: "Authorization required"}

	// ErrInvalidTokenFormat indicates an Authorization header that is not "Bearer <token>".
	ErrInvalidTokenFormat = &AuthError{Message: "Invalid token format"}
)

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap makes errors.Is(err, domain.ErrUnauthorized) hold.
func (e *AuthError) Unwrap() error {
	return domain.ErrUnauthorized
}

// Details returns the payload attached to the error response.
func (e *AuthError) Details() map[string]any {
	if e.Cause == nil {
		return nil
	}
	return map[string]any{"error": e.Cause.Error()}
}

// validationFailed wraps an identity provider failure.
func validationFailed(cause error) *AuthError {
	return &AuthError{Message: "Failed to validate token", Cause: cause}
}
