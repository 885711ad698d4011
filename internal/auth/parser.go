package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// GetAuthType determines the authentication type from a request.
func GetAuthType(r *http.Request) AuthType {
	authHeader := r.Header.Get(AuthorizationHeader)
	if authHeader == "" {
		return AuthTypeAnonymous
	}
	if len(authHeader) >= len(basicPrefix) && strings.EqualFold(authHeader[:len(basicPrefix)], basicPrefix) {
		return AuthTypeBasic
	}
	return AuthTypeUnknown
}

// ParseBasic parses a Basic Authorization header.
// Format: Basic base64(email:password). The password may contain ':'.
func ParseBasic(authHeader string) (*Credentials, error) {
	if len(authHeader) < len(basicPrefix) || !strings.EqualFold(authHeader[:len(basicPrefix)], basicPrefix) {
		return nil, ErrUnsupportedScheme
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authHeader[len(basicPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload", ErrInvalidAuthorizationHeader)
	}

	email, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing ':' separator", ErrInvalidAuthorizationHeader)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: empty e-mail", ErrInvalidAuthorizationHeader)
	}

	return &Credentials{Email: email, Password: password}, nil
}

// BasicHeader builds a Basic Authorization header value.
func BasicHeader(email, password string) string {
	return basicPrefix + base64.StdEncoding.EncodeToString([]byte(email+":"+password))
}
