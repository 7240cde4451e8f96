// Package connectivity tracks online/offline transitions.
package connectivity

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Listener is told about each transition, never about repeats.
type Listener func(online bool)

// Monitor holds the current connectivity flag.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]Listener
	nextID    int
	logger    zerolog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New returns a Monitor that starts in the given state.
func New(online bool, options ...Option) *Monitor {
	m := &Monitor{
		online:    online,
		listeners: make(map[int]Listener),
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "connectivity").Logger()
	return m
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// IsOffline reports !IsOnline().
func (m *Monitor) IsOffline() bool {
	return !m.IsOnline()
}

// SetOnline records a platform online/offline event. Listeners run
// synchronously, in registration order, only when the state changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Bool("online", online).Msg("Connectivity changed")
	for _, l := range listeners {
		l(online)
	}
}

// Subscribe registers l and returns a function that removes it.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Monitor) snapshotLocked() []Listener {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}
