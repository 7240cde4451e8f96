package notify_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/jrsteele09/go-auth-session/notify/notifyfake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestLogNotifierWritesLevel(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	notify.NewLogNotifier().Notify(notify.Notification{
		Kind:    notify.KindReloginRequired,
		Level:   notify.Error,
		Message: "Please sign in again",
	})

	require.Contains(t, buf.String(), `"level":"error"`)
	require.Contains(t, buf.String(), `"kind":"session.relogin_required"`)
	require.Contains(t, buf.String(), "Please sign in again")
}

func TestRecorderCounts(t *testing.T) {
	r := notifyfake.NewRecorder()
	var n notify.Notifier = r
	n.Notify(notify.Notification{Kind: notify.KindExpiryWarning})
	n.Notify(notify.Notification{Kind: notify.KindExpiryWarning})
	n.Notify(notify.Notification{Kind: notify.KindSessionExpired})

	require.Equal(t, 2, r.Count(notify.KindExpiryWarning))
	require.Len(t, r.All(), 3)

	var got []notify.Kind
	notify.Func(func(x notify.Notification) { got = append(got, x.Kind) }).Notify(notify.Notification{Kind: notify.KindSignedOut})
	require.Equal(t, []notify.Kind{notify.KindSignedOut}, got)
}
