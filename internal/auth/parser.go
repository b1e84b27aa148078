package auth

import (
	"net/http"
	"strings"
)

// GetAuthType determines the authentication type from a request.
func GetAuthType(r *http.Request) AuthType {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return AuthTypeAnonymous
	}
	if _, err := ParseBearer(header); err != nil {
		return AuthTypeUnknown
	}
	return AuthTypeBearer
}

// ParseBearer extracts the token from an Authorization header value.
// The header must consist of exactly two space separated parts, the first
// being "Bearer" in any case.
func ParseBearer(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], BearerScheme) {
		return "", ErrInvalidTokenFormat
	}
	return parts[1], nil
}
