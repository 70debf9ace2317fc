// Package auth handles credentials, login, signup, logout, password recovery
// and the access gate for Warden. Sessions themselves live in the sessions
// plugin; this package decides when to create, resolve, or end them.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User represents a registered Warden user. PasswordHash holds either a
// bcrypt hash or, for accounts that have not logged in since the move to
// bcrypt, the legacy plaintext value.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Profile holds the personal details captured at signup.
type Profile struct {
	UserID    string    `json:"-"`
	Gender    string    `json:"gender"`
	LastName  *string   `json:"lastname"`
	FirstName *string   `json:"firstname"`
	Phone     *string   `json:"phone,omitempty"`
	Mobile    *string   `json:"mobile,omitempty"`
	Language  string    `json:"language"`
	IsActive  bool      `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// DisplayName returns the name used to greet the user in email.
func (p *Profile) DisplayName() string {
	if p.FirstName != nil && *p.FirstName != "" {
		return *p.FirstName
	}
	if p.LastName != nil && *p.LastName != "" {
		return *p.LastName
	}
	return "new user"
}

// Defaults applied to profile fields left empty at signup.
const (
	defaultGender   = "neutre"
	defaultLanguage = "fr"
)

// --- Request DTOs (bound from HTTP requests) ---

// SignupRequest holds the data submitted by the signup form. Phone numbers
// are stored as the country prefix followed by the local number.
type SignupRequest struct {
	Gender          string `json:"gender" validate:"omitempty,oneof=homme femme neutre"`
	LastName        string `json:"lastname" validate:"max=100"`
	FirstName       string `json:"firstname" validate:"max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	PhoneCountry    string `json:"phoneCountry" validate:"omitempty,max=6"`
	Mobile          string `json:"mobile" validate:"omitempty,max=20"`
	MobileCountry   string `json:"mobileCountry" validate:"omitempty,max=6"`
	Language        string `json:"language" validate:"omitempty,max=5"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SendPinRequest starts password recovery for an email address.
type SendPinRequest struct {
	Email string `json:"email" validate:"required"`
}

// VerifyPinRequest exchanges an emailed PIN for a reset token.
type VerifyPinRequest struct {
	Email string `json:"email" validate:"required"`
	Pin   string `json:"pin" validate:"required"`
}

// ResetPasswordRequest sets a new password using a verified reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// --- Service Input DTOs (passed from handler to service) ---

// ClientMeta is request metadata recorded on the session row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// SignupInput is the validated input for creating a new account.
type SignupInput struct {
	Email     string
	Password  string
	Gender    string
	LastName  string
	FirstName string
	Phone     string
	Mobile    string
	Language  string
	Client    ClientMeta
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
	Client   ClientMeta
}

// ResetInput is the validated input for the final recovery step.
type ResetInput struct {
	Handle      string
	NewPassword string
	Client      ClientMeta
}

// --- Service results ---

// AuthResult is returned by every operation that logs the user in.
type AuthResult struct {
	Token     string
	User      *User
	Profile   *Profile
	LastLogin time.Time
}

// --- Response DTOs ---

// UserResponse is the public view of the authenticated user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	LastLogin time.Time `json:"lastLogin"`
	Profile   *Profile  `json:"profile,omitempty"`
}

// AuthResponse is the body returned by login, signup and password reset.
type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// MeResponse is the body returned by GET /api/auth/me.
type MeResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user,omitempty"`
}

// MessageResponse is a plain success acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyPinResponse carries the reset token returned for a valid PIN.
type VerifyPinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}
