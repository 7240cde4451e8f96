package backend

import (
	"fmt"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// ErrorCode is the code a backend attaches to a credential failure.
type ErrorCode string

const (
	CodeInvalidEmail  ErrorCode = "invalid-email"
	CodeUserNotFound  ErrorCode = "user-not-found"
	CodeWrongPassword ErrorCode = "wrong-password"
)

// CodedError is a credential failure. It matches the corresponding
// internal/errors sentinel with errors.Is.
type CodedError struct {
	Code    ErrorCode
	Message string
}

// NewCodedError builds a CodedError.
func NewCodedError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

func (e *CodedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth/%s", e.Code)
	}
	return fmt.Sprintf("auth/%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	switch e.Code {
	case CodeInvalidEmail:
		return autherrors.ErrInvalidEmail
	case CodeUserNotFound:
		return autherrors.ErrUserNotFound
	case CodeWrongPassword:
		return autherrors.ErrWrongPassword
	}
	return nil
}
