package authgate

import (
	"errors"
	"fmt"
)

// Domain error sentinels. Handlers map these to HTTP statuses; callers test
// with errors.Is.
var (
	ErrEmailExists        = errors.New("email already registered")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrUnverifiedAccount  = errors.New("account not verified")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// ErrDuplicateKey is returned by PrincipalStore.InsertUnique when a
	// uniqueness invariant would be violated.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Error codes rendered in client-facing JSON error bodies
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeEmailExists     = "email_exists"
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeInvalidCode     = "invalid_code"
	ErrCodeAlreadyVerified = "already_verified"
	ErrCodeUnverified      = "account_unverified"
	ErrCodeUpstreamFailed  = "upstream_failed"
)

// AuthError is a client-correctable validation failure with enough structure
// for a client to highlight the offending field.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a new AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// UpstreamError wraps a failure of an external dependency (email delivery,
// media upload, provider userinfo). Whether it fails the enclosing operation
// depends on the dependency: email send failures surface, photo uploads do not.
type UpstreamError struct {
	Dependency string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream failure: %v", e.Dependency, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
