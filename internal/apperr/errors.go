// Package apperr holds the error taxonomy shared by every layer.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Auth error codes, shared by the hub wire format and the client.
const (
	AuthInvalidCredential = "invalid-credential"
	AuthEmailInUse        = "email-already-in-use"
	AuthWeakPassword      = "weak-password"
	AuthInvalidEmail      = "invalid-email"
	AuthNetwork           = "network-request-failed"
	AuthUnknown           = "unknown"
)

// AuthError is the only error class surfaced verbatim to the user.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError classifies code into a user-facing message. signIn selects the
// wording for credential failures.
func NewAuthError(code string, signIn bool) *AuthError {
	msg := "An error occurred."
	switch code {
	case AuthInvalidCredential:
		if signIn {
			msg = "Incorrect email or password. If you are new, please Create an Account first."
		} else {
			msg = "Could not create account with these credentials."
		}
	case AuthEmailInUse:
		msg = "This email is already registered. Please Sign In instead."
	case AuthWeakPassword:
		msg = "Password should be at least 6 characters."
	case AuthInvalidEmail:
		msg = "Please enter a valid email address."
	case AuthNetwork:
		msg = "Network error. Please check your internet connection."
	default:
		code = AuthUnknown
	}
	return &AuthError{Code: code, Message: msg}
}

// AsAuth unwraps err into an *AuthError.
func AsAuth(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
