package auth

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Middleware attaches Basic credentials to the request context.
// Requests without usable credentials pass through unauthenticated;
// the operations that need an identity decide how to reject them.
func Middleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch GetAuthType(r) {
			case AuthTypeBasic:
				creds, err := ParseBasic(r.Header.Get(AuthorizationHeader))
				if err != nil {
					logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring malformed basic credentials")
					break
				}
				r = r.WithContext(WithCredentials(r.Context(), creds))

			case AuthTypeUnknown:
				logger.Debug().Str("path", r.URL.Path).Msg("ignoring unsupported authorization scheme")
			}

			next.ServeHTTP(w, r)
		})
	}
}
