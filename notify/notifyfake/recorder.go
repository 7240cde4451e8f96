package notifyfake

import (
	"sync"

	"github.com/jrsteele09/go-auth-session/notify"
)

var _ notify.Notifier = (*Recorder)(nil)

// Recorder keeps every notification for assertions.
type Recorder struct {
	mu   sync.Mutex
	seen []notify.Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.seen...)
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.seen {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
