package authmodel_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/stretchr/testify/require"
)

func TestNewAuthStateInvariant(t *testing.T) {
	user := &authmodel.User{ID: "u1"}
	profile := &authmodel.Profile{ID: "p1", UserID: "u1", Role: authmodel.RoleChild}

	require.False(t, authmodel.NewAuthState(nil, nil).IsAuthenticated)
	require.False(t, authmodel.NewAuthState(user, nil).IsAuthenticated)
	require.False(t, authmodel.NewAuthState(nil, profile).IsAuthenticated)

	state := authmodel.NewAuthState(user, profile)
	require.True(t, state.IsAuthenticated)
	require.Equal(t, authmodel.RoleChild, state.Role())
	require.Equal(t, authmodel.Role(""), authmodel.LoggedOut().Role())
}

func TestSessionValidity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &authmodel.Session{AccessToken: "a", UserID: "u1", ExpiresAt: now.Add(10 * time.Minute)}

	require.True(t, s.Valid(now))
	require.Equal(t, 10*time.Minute, s.TimeUntilExpiry(now))
	require.False(t, s.Valid(now.Add(10*time.Minute)))

	var missing *authmodel.Session
	require.False(t, missing.Valid(now))
	require.Nil(t, missing.Clone())

	c := s.Clone()
	c.AccessToken = "b"
	require.Equal(t, "a", s.AccessToken)
}
