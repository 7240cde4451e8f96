package authmodel

import "time"

// Role is the discriminant carried by a Profile that gates which route
// subtree a signed in user can reach.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// Session is the access credential held by one tab.
// It is replaced wholesale on every refresh, never mutated in place.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session is still usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && s.ExpiresAt.After(now)
}

// TimeUntilExpiry returns the remaining lifetime; negative once expired.
func (s *Session) TimeUntilExpiry(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Clone returns a copy that callers are free to keep.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// User is the identity returned by the auth backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Profile is the role-bearing identity record of a user.
type Profile struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// AuthState describes who is signed in within one tab.
// Build it with NewAuthState or LoggedOut so that IsAuthenticated always
// equals (User != nil && Profile != nil).
type AuthState struct {
	User            *User    `json:"user"`
	Profile         *Profile `json:"profile"`
	IsAuthenticated bool     `json:"is_authenticated"`
}

// NewAuthState returns an AuthState for the given identity.
func NewAuthState(user *User, profile *Profile) AuthState {
	return AuthState{
		User:            user,
		Profile:         profile,
		IsAuthenticated: user != nil && profile != nil,
	}
}

// LoggedOut returns the unauthenticated AuthState.
func LoggedOut() AuthState {
	return AuthState{}
}

// Role returns the profile role, or "" when there is no profile.
func (a AuthState) Role() Role {
	if a.Profile == nil {
		return ""
	}
	return a.Profile.Role
}
