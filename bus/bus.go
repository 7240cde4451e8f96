// Package bus broadcasts sign-in and sign-out signals between tabs of the
// same origin. Messages carry no identity; receivers re-read the truth
// from the backend.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MessageType is the kind of sync signal.
type MessageType string

const (
	SignIn  MessageType = "signIn"
	SignOut MessageType = "signOut"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == SignIn || t == SignOut
}

// Message is the wire form of a sync signal.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	TabID     string      `json:"tabId"`
}

// Time returns the send time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Handler receives messages from other tabs.
type Handler func(Message)

// Transport moves raw payloads between tabs on one channel.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	// Listen delivers every payload sent on the channel, including the
	// caller's own. The returned func stops delivery.
	Listen(deliver func([]byte)) (stop func(), err error)
	Close() error
}

// NoopTransport drops everything. It stands in when no cross-tab
// primitive is available.
type NoopTransport struct{}

func (NoopTransport) Send(context.Context, []byte) error { return nil }

func (NoopTransport) Listen(func([]byte)) (func(), error) { return func() {}, nil }

func (NoopTransport) Close() error { return nil }

// Bus is one tab's endpoint.
type Bus struct {
	transport Transport
	tabID     string
	clock     clock.Clock
	logger    zerolog.Logger

	mu         sync.Mutex
	handlers   map[int]Handler
	nextID     int
	stopListen func()
	closed     bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock sets the clock used for message timestamps.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) { b.clock = c }
}

// WithTabID overrides the generated tab identity.
func WithTabID(id string) Option {
	return func(b *Bus) { b.tabID = id }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New returns a Bus on transport. A nil transport, or one that cannot
// listen, leaves the bus in degraded mode where publish and subscribe
// are silent no-ops.
func New(transport Transport, options ...Option) *Bus {
	b := &Bus{
		transport: transport,
		tabID:     uuid.New().String(),
		clock:     clock.Real(),
		logger:    log.Logger,
		handlers:  make(map[int]Handler),
	}
	for _, opt := range options {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "cross_tab_bus").Str("tab_id", b.tabID).Logger()

	if b.transport == nil {
		b.logger.Warn().Msg("No cross-tab transport, tabs will not sync")
		b.transport = NoopTransport{}
	}
	stop, err := b.transport.Listen(b.deliver)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Cross-tab transport unavailable, tabs will not sync")
		_ = b.transport.Close()
		b.transport = NoopTransport{}
		stop = func() {}
	}
	b.stopListen = stop
	return b
}

// TabID returns this tab's identity.
func (b *Bus) TabID() string {
	return b.tabID
}

// Publish broadcasts t to other tabs. Delivery is best effort: transport
// failures are logged and never returned.
func (b *Bus) Publish(ctx context.Context, t MessageType) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	payload, err := json.Marshal(Message{Type: t, Timestamp: b.clock.Now().UnixMilli(), TabID: b.tabID})
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to encode sync message")
		return
	}
	if err := b.transport.Send(ctx, payload); err != nil {
		b.logger.Warn().Err(err).Str("type", string(t)).Msg("Failed to publish sync message")
		return
	}
	b.logger.Debug().Str("type", string(t)).Msg("Published sync message")
}

// Subscribe registers h for messages from other tabs and returns a func
// that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
		})
	}
}

// Close stops listening and releases the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = make(map[int]Handler)
	stop := b.stopListen
	b.mu.Unlock()

	stop()
	return b.transport.Close()
}

var errMalformed = errors.New("malformed sync message")

// Decode parses a payload, rejecting unknown types and missing tab ids.
func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, errors.Join(errMalformed, err)
	}
	if !msg.Type.Valid() || msg.TabID == "" {
		return Message{}, errMalformed
	}
	return msg, nil
}

func (b *Bus) deliver(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		b.logger.Debug().Err(err).Msg("Dropped sync message")
		return
	}
	if msg.TabID == b.tabID {
		return
	}

	b.mu.Lock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
