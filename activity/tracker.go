// Package activity records when the user last interacted with a tab.
package activity

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/clock"
)

// EventKind is the kind of interaction that was observed.
type EventKind string

const (
	Pointer  EventKind = "pointer"
	Keyboard EventKind = "keyboard"
	Touch    EventKind = "touch"
	Scroll   EventKind = "scroll"
)

// Tracked are the interactions that count as activity.
var Tracked = []EventKind{Pointer, Keyboard, Touch, Scroll}

// Tracker holds the last interaction time. The zero value is not usable;
// use New.
type Tracker struct {
	mu         sync.RWMutex
	clock      clock.Clock
	lastActive time.Time
	lastKind   EventKind
}

// New returns a Tracker that treats construction time as the last activity.
func New(c clock.Clock) *Tracker {
	return &Tracker{clock: c, lastActive: c.Now()}
}

// Record notes an interaction of the given kind. Unknown kinds are ignored.
func (t *Tracker) Record(kind EventKind) {
	if !isTracked(kind) {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.lastActive) {
		t.lastActive = now
	}
	t.lastKind = kind
}

// LastActive returns the time of the last recorded interaction.
func (t *Tracker) LastActive() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastActive
}

// LastKind returns the kind of the last recorded interaction, or "".
func (t *Tracker) LastKind() EventKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastKind
}

// IdleFor returns how long the tab has gone without interaction.
func (t *Tracker) IdleFor() time.Duration {
	return t.clock.Now().Sub(t.LastActive())
}

func isTracked(kind EventKind) bool {
	for _, k := range Tracked {
		if k == kind {
			return true
		}
	}
	return false
}
