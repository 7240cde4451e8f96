package amqpbus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/bus"
	"github.com/jrsteele09/go-auth-session/bus/amqpbus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

// fakeChannel emulates a broker with one fanout exchange.
type fakeChannel struct {
	mu        sync.Mutex
	exchanges map[string]string
	queues    int
	bindings  map[string]string // queue -> exchange
	consumers map[string]chan amqp.Delivery
	byQueue   map[string]string // consumer tag -> queue
	published []amqp.Publishing
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges: make(map[string]string),
		bindings:  make(map[string]string),
		consumers: make(map[string]chan amqp.Delivery),
		byQueue:   make(map[string]string),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues++
	return amqp.Queue{Name: fmt.Sprintf("amq.gen-%d", f.queues)}, nil
}

func (f *fakeChannel) QueueBind(name, _, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exchanges[exchange]; !ok {
		return errors.New("no such exchange")
	}
	f.bindings[name] = exchange
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan amqp.Delivery, 16)
	f.consumers[consumer] = ch
	f.byQueue[consumer] = queue
	return ch, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	for tag, ch := range f.consumers {
		if f.bindings[f.byQueue[tag]] == exchange {
			ch <- amqp.Delivery{Body: msg.Body}
		}
	}
	return nil
}

func (f *fakeChannel) Cancel(consumer string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.consumers[consumer]; ok {
		close(ch)
		delete(f.consumers, consumer)
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestFanoutBetweenTabs(t *testing.T) {
	ch := newFakeChannel()
	ta, err := amqpbus.New(ch, "auth-sync")
	require.NoError(t, err)
	tb, err := amqpbus.New(ch, "auth-sync")
	require.NoError(t, err)
	require.Equal(t, amqp.ExchangeFanout, ch.exchanges["auth-sync"])

	a := bus.New(ta, bus.WithTabID("a"))
	b := bus.New(tb, bus.WithTabID("b"))

	received := make(chan bus.Message, 1)
	b.Subscribe(func(m bus.Message) { received <- m })
	a.Subscribe(func(bus.Message) { t.Error("sender must not see its own message") })

	a.Publish(context.Background(), bus.SignOut)
	select {
	case m := <-received:
		require.Equal(t, bus.SignOut, m.Type)
		require.Equal(t, "a", m.TabID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	require.Equal(t, "application/json", ch.published[0].ContentType)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	require.True(t, ch.closed)
	require.Empty(t, ch.consumers)
}

func TestListenAfterClose(t *testing.T) {
	tr, err := amqpbus.New(newFakeChannel(), "x")
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	_, err = tr.Listen(func([]byte) {})
	require.Error(t, err)
}
