package auth

// AuthType represents the type of authentication used in a request.
type AuthType int

const (
	// AuthTypeUnknown indicates an Authorization header that is not a bearer token.
	AuthTypeUnknown AuthType = iota

	// AuthTypeAnonymous indicates no Authorization header.
	AuthTypeAnonymous

	// AuthTypeBearer indicates a bearer token in the Authorization header.
	AuthTypeBearer
)

// String returns the auth type name used in logs.
func (t AuthType) String() string {
	switch t {
	case AuthTypeAnonymous:
		return "anonymous"
	case AuthTypeBearer:
		return "bearer"
	default:
		return "unknown"
	}
}
