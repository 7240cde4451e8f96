package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jrsteele09/go-auth-session/backend"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	require.Empty(t, UserMessage(nil))
	require.Equal(t, MsgInvalidEmail, UserMessage(backend.NewCodedError(backend.CodeInvalidEmail, "bad email")))
	require.Equal(t, MsgUserNotFound, UserMessage(pkgerrors.Wrap(autherrors.ErrUserNotFound, "sign in")))
	require.Equal(t, MsgWrongPassword, UserMessage(fmt.Errorf("x: %w", autherrors.ErrWrongPassword)))
	require.Equal(t, MsgBootstrapTimeout, UserMessage(autherrors.ErrBootstrapTimeout))
	require.Equal(t, MsgProfileMissing, UserMessage(autherrors.ErrProfileMissing))
	require.Equal(t, MsgConnection, UserMessage(autherrors.ErrRefreshExhausted))
	require.Equal(t, MsgSessionEnded, UserMessage(autherrors.ErrSessionExpired))
	require.Equal(t, MsgUnexpected, UserMessage(errors.New("boom")))
}
