// Package domain contains the core business entities for Hoaxify.
// These are pure Go structs with no external dependencies.
package domain

import (
	"time"
)

// User represents a registered account.
// A user is created inactive with an activation token and becomes active
// exactly once, when that token is redeemed.
type User struct {
	// ID is the unique identifier for the user (assigned by the store).
	ID int64 `json:"id"`

	// Username is the display name.
	// Constraints: 4-32 characters.
	Username string `json:"username"`

	// Email is the unique email address for the user, compared exactly as stored.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// Inactive is true until the activation token has been redeemed.
	Inactive bool `json:"-"`

	// ActivationToken is set while the account is inactive and nil afterwards.
	ActivationToken *string `json:"-"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"-"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"-"`
}

// NewUser creates a new, inactive User waiting for activationToken to be redeemed.
func NewUser(username, email, passwordHash, activationToken string) *User {
	now := time.Now().UTC()
	token := activationToken
	return &User{
		Username:        username,
		Email:           email,
		PasswordHash:    passwordHash,
		Inactive:        true,
		ActivationToken: &token,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Activate marks the account active and consumes the activation token.
func (u *User) Activate() {
	u.Inactive = false
	u.ActivationToken = nil
	u.UpdatedAt = time.Now().UTC()
}

// Rename changes the display name. It is the only mutation available to the owner.
func (u *User) Rename(username string) {
	u.Username = username
	u.UpdatedAt = time.Now().UTC()
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return !u.Inactive
}

// View returns the public projection of the user.
func (u *User) View() UserView {
	return UserView{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}

// Summary returns the projection handed back after a successful login.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
	}
}

// UserView is the projection exposed by listing and lookup.
type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserSummary is the projection exposed by authentication.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
