package auth

import "errors"

// Credential parsing errors.
var (
	// ErrInvalidAuthorizationHeader indicates the Authorization header is malformed.
	ErrInvalidAuthorizationHeader = errors.New("invalid authorization header")

	// ErrUnsupportedScheme indicates an Authorization scheme other than Basic.
	ErrUnsupportedScheme = errors.New("unsupported authorization scheme")
)
