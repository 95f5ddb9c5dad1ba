package identity

import "errors"

// Code classifies a sign-in failure the way hosted identity providers do.
type Code string

const (
	CodeInvalidEmail    Code = "invalid-email"
	CodeUserDisabled    Code = "user-disabled"
	CodeUserNotFound    Code = "user-not-found"
	CodeWrongPassword   Code = "wrong-password"
	CodeTooManyRequests Code = "too-many-requests"
	CodeInvalidToken    Code = "invalid-token"
	CodeUnknown         Code = "unknown"
)

// Error is a provider error carrying its classification.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth/" + string(e.Code)
	}
	return "auth/" + string(e.Code) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *Error) Message() string { return Humanize(e.Code) }

// CodeOf returns the classification of err, CodeUnknown when it has none.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeUnknown
}

// Humanize maps a provider code to a user-facing message. User-not-found and
// wrong-password share a message so sign-in does not reveal which accounts
// exist.
func Humanize(code Code) string {
	switch code {
	case CodeInvalidEmail:
		return "Invalid email format."
	case CodeUserDisabled:
		return "This user has been disabled."
	case CodeUserNotFound, CodeWrongPassword:
		return "Incorrect email or password."
	case CodeTooManyRequests:
		return "Too many attempts. Please try again later."
	case CodeInvalidToken:
		return "Your session has expired. Please sign in again."
	}
	return "Login failed. Please check your credentials."
}
