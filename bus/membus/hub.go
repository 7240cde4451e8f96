// Package membus connects tabs that live in one process.
package membus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/bus"
	"github.com/rs/zerolog/log"
)

const queueSize = 64

// deliveryTimeout bounds how long Send waits on a listener whose queue
// is full. After it the message is dropped for that listener only.
const deliveryTimeout = time.Second

// ErrClosed is returned by Send and Listen after Close.
var ErrClosed = errors.New("membus: transport closed")

var _ bus.Transport = (*Transport)(nil)

// Hub routes payloads between transports that share a channel name.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[int]*listener
	nextID   int
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[int]*listener)}
}

// Transport returns a new endpoint on channel.
func (h *Hub) Transport(channel string) *Transport {
	return &Transport{hub: h, channel: channel}
}

type listener struct {
	queue   chan []byte
	stopped chan struct{}
	done    chan struct{}
}

func (h *Hub) add(channel string, deliver func([]byte)) func() {
	l := &listener{
		queue:   make(chan []byte, queueSize),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		for {
			select {
			case payload := <-l.queue:
				deliver(payload)
			case <-l.stopped:
				return
			}
		}
	}()

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[int]*listener)
	}
	h.channels[channel][id] = l
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.channels[channel], id)
			h.mu.Unlock()
			close(l.stopped)
			<-l.done
		})
	}
}

func (h *Hub) broadcast(channel string, payload []byte) {
	h.mu.Lock()
	listeners := make([]*listener, 0, len(h.channels[channel]))
	for _, l := range h.channels[channel] {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l.enqueue(channel, append([]byte(nil), payload...))
	}
}

func (l *listener) enqueue(channel string, msg []byte) {
	select {
	case l.queue <- msg:
		return
	case <-l.stopped:
		return
	default:
	}

	timer := time.NewTimer(deliveryTimeout)
	defer timer.Stop()
	select {
	case l.queue <- msg:
	case <-l.stopped:
	case <-timer.C:
		log.Warn().Str("channel", channel).Dur("waited", deliveryTimeout).Msg("Listener queue full, dropping message")
	}
}

// Transport is one tab's endpoint on a Hub channel.
type Transport struct {
	hub     *Hub
	channel string

	mu     sync.Mutex
	stops  []func()
	closed bool
}

func (t *Transport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	t.hub.broadcast(t.channel, payload)
	return nil
}

func (t *Transport) Listen(deliver func([]byte)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	stop := t.hub.add(t.channel, deliver)
	t.stops = append(t.stops, stop)
	return stop, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stops := t.stops
	t.stops = nil
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return nil
}
