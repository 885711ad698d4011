// Package service provides business logic services for Hoaxify.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prn-tf/hoaxify/internal/domain"
	"github.com/prn-tf/hoaxify/internal/validation"
)

// Common service errors.
var (
	// User errors
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidToken   = errors.New("activation token is invalid or already used")
	ErrAuthentication = errors.New("authentication failed")
	ErrForbidden      = errors.New("forbidden")

	// Delivery errors
	ErrEmailDelivery = errors.New("activation e-mail could not be delivered")

	// General errors
	ErrInternalError = errors.New("internal server error")
)

// Update guard failures. Each one is an ErrForbidden.
var (
	ErrNoCredentials      = fmt.Errorf("%w: no credentials supplied", ErrForbidden)
	ErrUnknownCredentials = fmt.Errorf("%w: credentials do not resolve to a user", ErrForbidden)
	ErrNotOwner           = fmt.Errorf("%w: credentials belong to another user", ErrForbidden)
	ErrInactiveAccount    = fmt.Errorf("%w: %w", ErrForbidden, domain.ErrUserInactive)
	ErrPasswordMismatch   = fmt.Errorf("%w: password does not match", ErrForbidden)
)

// ValidationError carries the per-field failures of a rejected payload.
type ValidationError struct {
	Failures validation.Failures
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Field+": "+f.Key)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// newValidationError builds a ValidationError for a single field.
func newValidationError(field, key string) *ValidationError {
	return &ValidationError{Failures: validation.Failures{{Field: field, Key: key}}}
}
