package backend

import (
	"sort"
	"sync"
)

// Listeners is the OnAuthStateChange registry shared by implementations.
// The zero value is ready to use.
type Listeners struct {
	mu        sync.Mutex
	callbacks map[int]func(AuthChange)
	nextID    int
}

// Add registers callback and returns its unsubscribe function.
func (l *Listeners) Add(callback func(AuthChange)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.callbacks == nil {
		l.callbacks = make(map[int]func(AuthChange))
	}
	id := l.nextID
	l.nextID++
	l.callbacks[id] = callback
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.callbacks, id)
	}
}

// Emit calls every callback, in registration order, outside the lock.
func (l *Listeners) Emit(change AuthChange) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.callbacks))
	for id := range l.callbacks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(AuthChange), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, l.callbacks[id])
	}
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(change)
	}
}
