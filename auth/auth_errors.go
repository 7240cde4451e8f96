package auth

import (
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// User-facing messages
const (
	MsgInvalidEmail     = "Please enter a valid email address."
	MsgUserNotFound     = "No account found with that email address."
	MsgWrongPassword    = "Incorrect password. Please try again."
	MsgBootstrapTimeout = "Loading is taking longer than expected. Please try again."
	MsgProfileMissing   = "Your profile could not be found. Please contact support."
	MsgConnection       = "We could not reach the server. Check your connection and try again."
	MsgSessionEnded     = "Your session has ended. Please sign in again."
	MsgUnexpected       = "Something went wrong. Please try again."
)

// UserMessage maps err to text that can be shown to the user. It returns
// "" for a nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case autherrors.Is(err, autherrors.ErrInvalidEmail):
		return MsgInvalidEmail
	case autherrors.Is(err, autherrors.ErrUserNotFound):
		return MsgUserNotFound
	case autherrors.Is(err, autherrors.ErrWrongPassword):
		return MsgWrongPassword
	}

	switch autherrors.Classify(err) {
	case autherrors.KindBootstrapTimeout:
		return MsgBootstrapTimeout
	case autherrors.KindProfileMissing:
		return MsgProfileMissing
	case autherrors.KindTransient:
		return MsgConnection
	case autherrors.KindUnauthenticated:
		return MsgSessionEnded
	}
	return MsgUnexpected
}
