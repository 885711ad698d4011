// Package auth extracts HTTP Basic credentials for Hoaxify.
package auth

import "context"

// AuthorizationHeader is the request header carrying credentials.
const AuthorizationHeader = "Authorization"

// basicPrefix is the scheme prefix of a Basic Authorization header.
const basicPrefix = "Basic "

// Credentials is an e-mail and password pair supplied by the client.
type Credentials struct {
	Email    string
	Password string
}

// AuthType represents the type of authentication used in a request.
type AuthType int

const (
	// AuthTypeUnknown indicates an unrecognized auth scheme.
	AuthTypeUnknown AuthType = iota

	// AuthTypeAnonymous indicates no Authorization header.
	AuthTypeAnonymous

	// AuthTypeBasic indicates HTTP Basic authentication.
	AuthTypeBasic
)

// String returns the string representation of the auth type.
func (at AuthType) String() string {
	switch at {
	case AuthTypeAnonymous:
		return "Anonymous"
	case AuthTypeBasic:
		return "Basic"
	default:
		return "Unknown"
	}
}

// credentialsKey is the context key for Credentials.
type credentialsKey struct{}

// WithCredentials returns a copy of ctx carrying creds.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the credentials attached by the middleware, or nil.
func CredentialsFromContext(ctx context.Context) *Credentials {
	if creds, ok := ctx.Value(credentialsKey{}).(*Credentials); ok {
		return creds
	}
	return nil
}
