// Package backend describes the remote auth and profile services as the
// small capability surface the session components consume.
package backend

import (
	"context"
	"net/mail"
	"strings"

	"github.com/jrsteele09/go-auth-session/authmodel"
)

// AuthEvent names a change reported by OnAuthStateChange.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthChange is delivered to OnAuthStateChange callbacks. Session is nil
// for EventSignedOut.
type AuthChange struct {
	Event   AuthEvent
	Session *authmodel.Session
}

// AuthBackend is the remote authentication service.
type AuthBackend interface {
	// GetSession returns the persisted session, or nil when there is none.
	GetSession(ctx context.Context) (*authmodel.Session, error)
	RefreshSession(ctx context.Context) (*authmodel.Session, error)
	// SignInWithPassword fails with a *CodedError for credential problems.
	SignInWithPassword(ctx context.Context, email, password string) (*authmodel.User, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(callback func(AuthChange)) (unsubscribe func())
}

// ProfileBackend is the remote profile table.
type ProfileBackend interface {
	// GetProfileByUserID returns nil, nil when the user has no profile.
	GetProfileByUserID(ctx context.Context, userID string) (*authmodel.Profile, error)
}

// ValidEmail reports whether email is a bare address.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}
