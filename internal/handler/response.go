package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/service"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Path             string            `json:"path"`
	Timestamp        int64             `json:"timestamp"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// MessageResponse is the body of operations that only report an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeMessage writes a localized MessageResponse.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, key string) {
	writeJSON(w, status, MessageResponse{Message: localizerFrom(r.Context()).T(key)})
}

// writeError writes a localized ErrorResponse.
func writeError(w http.ResponseWriter, r *http.Request, status int, key string, validationErrors map[string]string) {
	writeJSON(w, status, ErrorResponse{
		Path:             r.URL.RequestURI(),
		Timestamp:        time.Now().UnixMilli(),
		Message:          localizerFrom(r.Context()).T(key),
		ValidationErrors: validationErrors,
	})
}

// writeServiceError maps a service error to its status and message.
// forbiddenKey is the message used for ErrForbidden on this route.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, forbiddenKey string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		loc := localizerFrom(r.Context())
		fields := make(map[string]string, len(verr.Failures))
		for _, f := range verr.Failures {
			fields[f.Field] = loc.T(f.Key)
		}
		writeError(w, r, http.StatusBadRequest, keyValidationFailure, fields)
	case errors.Is(err, service.ErrEmailDelivery):
		writeError(w, r, http.StatusBadGateway, keyEmailFailure, nil)
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, keyActivationFailure, nil)
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, keyUserNotFound, nil)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, r, http.StatusForbidden, forbiddenKey, nil)
	case errors.Is(err, service.ErrAuthentication):
		writeError(w, r, http.StatusUnauthorized, keyAuthenticationFailure, nil)
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, keyInternalError, nil)
	}
}

// Message keys used by the handlers.
const (
	keyUserCreated           = "user_create_success"
	keyActivationSuccess     = "account_activation_success"
	keyActivationFailure     = "account_activation_failure"
	keyEmailFailure          = "email_failure"
	keyValidationFailure     = "validation_failure"
	keyUserNotFound          = "user_not_found"
	keyUnauthorizedUpdate    = "unauthorized_user_update"
	keyAuthenticationFailure = "authentication_failure"
	keyInactiveAuthFailure   = "inactive_authentication_failure"
	keyInternalError         = "internal_error"
)
