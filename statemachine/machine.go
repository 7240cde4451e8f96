// Package statemachine is a small finite-state machine with an explicit
// transition table, independent of any UI binding.
package statemachine

import (
	"fmt"
	"sort"
	"sync"
)

// Rule allows Event to move the machine from any state in From to To.
// An empty From matches every state.
type Rule[S comparable, E comparable] struct {
	Event E
	From  []S
	To    S
}

// Listener observes a state change. It is called outside the machine's
// lock, so it may read State or Dispatch.
type Listener[S comparable, E comparable] func(from S, event E, to S)

// InvalidTransitionError is returned by Dispatch when no rule matches.
type InvalidTransitionError[S comparable, E comparable] struct {
	State S
	Event E
}

func (e *InvalidTransitionError[S, E]) Error() string {
	return fmt.Sprintf("statemachine: no transition for event %v in state %v", e.Event, e.State)
}

// Machine holds the current state and the transition table.
type Machine[S comparable, E comparable] struct {
	mu        sync.Mutex
	state     S
	table     map[S]map[E]S
	anyState  map[E]S
	listeners map[int]Listener[S, E]
	nextID    int
}

// New returns a Machine in state initial governed by rules. Specific
// From rules take precedence over wildcard rules for the same event.
func New[S comparable, E comparable](initial S, rules ...Rule[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		state:     initial,
		table:     make(map[S]map[E]S),
		anyState:  make(map[E]S),
		listeners: make(map[int]Listener[S, E]),
	}
	for _, r := range rules {
		if len(r.From) == 0 {
			m.anyState[r.Event] = r.To
			continue
		}
		for _, from := range r.From {
			if m.table[from] == nil {
				m.table[from] = make(map[E]S)
			}
			m.table[from][r.Event] = r.To
		}
	}
	return m
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event is accepted in the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.targetLocked(event)
	return ok
}

// Dispatch applies event and returns the resulting state. Listeners are
// notified only when the state actually changes.
func (m *Machine[S, E]) Dispatch(event E) (S, error) {
	m.mu.Lock()
	from := m.state
	to, ok := m.targetLocked(event)
	if !ok {
		m.mu.Unlock()
		return from, &InvalidTransitionError[S, E]{State: from, Event: event}
	}
	m.state = to
	listeners := m.snapshotLocked()
	m.mu.Unlock()

	if from != to {
		for _, l := range listeners {
			l(from, event, to)
		}
	}
	return to, nil
}

// Subscribe registers l and returns a function that removes it.
func (m *Machine[S, E]) Subscribe(l Listener[S, E]) func() {
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

func (m *Machine[S, E]) targetLocked(event E) (S, bool) {
	if to, ok := m.table[m.state][event]; ok {
		return to, true
	}
	to, ok := m.anyState[event]
	return to, ok
}

func (m *Machine[S, E]) snapshotLocked() []Listener[S, E] {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids) // registration order
	out := make([]Listener[S, E], 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}
