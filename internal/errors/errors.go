package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session subsystem
var (
	// Credential errors: reported to the user, never retried
	ErrInvalidEmail  = errors.New("invalid email")
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")

	// Transient refresh errors: retried by the retry policy
	ErrRefreshFailed    = errors.New("session refresh failed")
	ErrRefreshExhausted = errors.New("session refresh retries exhausted")
	ErrOffline          = errors.New("offline")

	// Bootstrap errors
	ErrBootstrapTimeout = errors.New("session restore timed out")

	// Identity errors
	ErrProfileMissing = errors.New("profile not found for user")
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)

// Kind groups errors by how they are handled.
type Kind int

const (
	KindUnknown Kind = iota
	KindCredential
	KindTransient
	KindBootstrapTimeout
	KindProfileMissing
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindTransient:
		return "transient"
	case KindBootstrapTimeout:
		return "bootstrap_timeout"
	case KindProfileMissing:
		return "profile_missing"
	case KindUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Classify returns the handling Kind for err.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case Is(err, ErrInvalidEmail), Is(err, ErrUserNotFound), Is(err, ErrWrongPassword):
		return KindCredential
	case Is(err, ErrRefreshFailed), Is(err, ErrRefreshExhausted), Is(err, ErrOffline):
		return KindTransient
	case Is(err, ErrBootstrapTimeout):
		return KindBootstrapTimeout
	case Is(err, ErrProfileMissing):
		return KindProfileMissing
	case Is(err, ErrNoSession), Is(err, ErrSessionExpired):
		return KindUnauthenticated
	}
	return KindUnknown
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
