// Package notify carries user-facing notifications (toasts) out of the
// session components.
package notify

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the severity shown to the user.
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Kind identifies a notification so that front ends can replace or
// dismiss it.
type Kind string

const (
	KindExpiryWarning   Kind = "session.expiry_warning"
	KindReloginRequired Kind = "session.relogin_required"
	KindSessionExpired  Kind = "session.expired"
	KindSignInFailed    Kind = "auth.sign_in_failed"
	KindBootstrapFailed Kind = "auth.bootstrap_failed"
	KindSignedOut       Kind = "auth.signed_out"
)

// Notification is one toast.
type Notification struct {
	Kind        Kind
	Level       Level
	Message     string
	Dismissable bool
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a zerolog logger. It is the
// notifier of headless tabs.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a LogNotifier on the global logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.Logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(notification Notification) {
	event := n.logger.Info()
	switch notification.Level {
	case Warning:
		event = n.logger.Warn()
	case Error:
		event = n.logger.Error()
	}
	event.Str("kind", string(notification.Kind)).
		Bool("dismissable", notification.Dismissable).
		Msg(notification.Message)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }
