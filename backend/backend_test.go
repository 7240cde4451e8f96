package backend_test

import (
	"errors"
	"testing"

	"github.com/jrsteele09/go-auth-session/backend"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestValidEmail(t *testing.T) {
	for _, email := range []string{"parent@example.com", "a.b@school.org"} {
		require.True(t, backend.ValidEmail(email), email)
	}
	for _, email := range []string{"", "not-an-email", "Bob <bob@example.com>", "bob@localhost", " x@y.com"} {
		require.False(t, backend.ValidEmail(email), email)
	}
}

func TestCodedErrorMatchesSentinels(t *testing.T) {
	err := error(backend.NewCodedError(backend.CodeWrongPassword, ""))
	require.True(t, errors.Is(err, autherrors.ErrWrongPassword))
	require.EqualError(t, err, "auth/wrong-password")

	var coded *backend.CodedError
	require.True(t, errors.As(err, &coded))
	require.Equal(t, backend.CodeWrongPassword, coded.Code)

	require.True(t, errors.Is(backend.NewCodedError(backend.CodeUserNotFound, "x"), autherrors.ErrUserNotFound))
	require.True(t, errors.Is(backend.NewCodedError(backend.CodeInvalidEmail, "x"), autherrors.ErrInvalidEmail))
}

func TestListeners(t *testing.T) {
	var l backend.Listeners
	var got []backend.AuthEvent
	remove := l.Add(func(c backend.AuthChange) { got = append(got, c.Event) })
	l.Add(func(c backend.AuthChange) { got = append(got, "second") })

	l.Emit(backend.AuthChange{Event: backend.EventSignedIn})
	remove()
	l.Emit(backend.AuthChange{Event: backend.EventSignedOut})

	require.Equal(t, []backend.AuthEvent{backend.EventSignedIn, "second", "second"}, got)
}
