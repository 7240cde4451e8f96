package tab

import (
	"sync"

	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/rs/zerolog"
)

const inboxSize = 20

// Inbox keeps a tab's most recent notifications and logs each one.
type Inbox struct {
	mu     sync.Mutex
	items  []notify.Notification
	logger zerolog.Logger
}

// NewInbox returns an empty Inbox.
func NewInbox(logger zerolog.Logger) *Inbox {
	return &Inbox{logger: logger.With().Str("component", "notify").Logger()}
}

func (i *Inbox) Notify(n notify.Notification) {
	i.logger.Info().Str("kind", string(n.Kind)).Str("level", string(n.Level)).Msg(n.Message)
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, n)
	if len(i.items) > inboxSize {
		i.items = i.items[len(i.items)-inboxSize:]
	}
}

// Items returns the kept notifications, oldest first.
func (i *Inbox) Items() []notify.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]notify.Notification(nil), i.items...)
}

// Dismiss removes dismissable notifications of kind.
func (i *Inbox) Dismiss(kind notify.Kind) {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.items[:0]
	for _, n := range i.items {
		if n.Kind == kind && n.Dismissable {
			continue
		}
		kept = append(kept, n)
	}
	i.items = kept
}
