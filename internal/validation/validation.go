// Package validation holds the registration rule table.
// Fields are checked in a fixed order and each field reports only its first failing rule.
package validation

import (
	"context"
	"errors"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Message keys reported for failing rules.
const (
	KeyUsernameNull    = "username_null"
	KeyUsernameSize    = "username_size"
	KeyEmailNull       = "email_null"
	KeyEmailInvalid    = "email_invalid"
	KeyEmailInUse      = "email_inuse"
	KeyPasswordNull    = "password_null"
	KeyPasswordSize    = "password_size"
	KeyPasswordPattern = "password_pattern"
)

// Field names, in evaluation order.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

var fieldOrder = []string{FieldUsername, FieldEmail, FieldPassword}

// Registration is a candidate registration payload.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailExists reports whether an address is already registered.
type EmailExists func(ctx context.Context, email string) (bool, error)

// Failure is a single failing field and the message key of its first failing rule.
type Failure struct {
	Field string
	Key   string
}

// Failures is the ordered result of a validation run. Empty means valid.
type Failures []Failure

// Key returns the message key recorded for field, or "".
func (f Failures) Key(field string) string {
	for _, failure := range f {
		if failure.Field == field {
			return failure.Key
		}
	}
	return ""
}

// usernameRules are shared by registration and profile update.
func usernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(KeyUsernameNull),
		validation.RuneLength(4, 32).Error(KeyUsernameSize),
	}
}

// ValidateRegistration runs the rule table against r.
// A failing store lookup is returned as an error, never as a Failure.
func ValidateRegistration(ctx context.Context, r Registration, exists EmailExists) (Failures, error) {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Username, usernameRules()...),
		validation.Field(&r.Email,
			validation.Required.Error(KeyEmailNull),
			is.Email.Error(KeyEmailInvalid),
			validation.By(uniqueEmail(ctx, exists)),
		),
		validation.Field(&r.Password,
			validation.Required.Error(KeyPasswordNull),
			validation.RuneLength(8, 16).Error(KeyPasswordSize),
			validation.By(passwordPattern),
		),
	)
	return collect(err)
}

// ValidateUsername applies the username rules on their own.
func ValidateUsername(username string) Failures {
	err := validation.Validate(username, usernameRules()...)
	if err == nil {
		return nil
	}
	return Failures{{Field: FieldUsername, Key: err.Error()}}
}

// ValidEmail reports whether s is syntactically an e-mail address.
func ValidEmail(s string) bool {
	return s != "" && is.Email.Validate(s) == nil
}

// collect turns an ozzo result into ordered failures.
func collect(err error) (Failures, error) {
	if err == nil {
		return nil, nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return nil, internal.InternalError()
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return nil, err
	}

	failures := make(Failures, 0, len(errs))
	for _, field := range fieldOrder {
		if fe, ok := errs[field]; ok && fe != nil {
			failures = append(failures, Failure{Field: field, Key: fe.Error()})
		}
	}
	return failures, nil
}

func uniqueEmail(ctx context.Context, exists EmailExists) validation.RuleFunc {
	return func(value interface{}) error {
		email, _ := value.(string)
		if email == "" || exists == nil {
			return nil
		}
		taken, err := exists(ctx, email)
		if err != nil {
			return validation.NewInternalError(err)
		}
		if taken {
			return errors.New(KeyEmailInUse)
		}
		return nil
	}
}

// passwordPattern requires at least one lowercase letter, one uppercase letter and one digit.
func passwordPattern(value interface{}) error {
	password, _ := value.(string)
	if password == "" {
		return nil
	}

	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return errors.New(KeyPasswordPattern)
	}
	return nil
}
