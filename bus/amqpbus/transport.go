// Package amqpbus carries cross-tab signals over a RabbitMQ fanout
// exchange. Each listener binds its own exclusive, auto-deleted queue so
// every tab sees every message.
package amqpbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/bus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var _ bus.Transport = (*Transport)(nil)

// Channel is the subset of *amqp.Channel the transport uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Transport publishes to and consumes from one fanout exchange.
type Transport struct {
	ch       Channel
	exchange string
	conn     *amqp.Connection

	mu     sync.Mutex
	stops  []func()
	closed bool
}

// Dial connects to url and declares exchange.
func Dial(url, exchange string) (*Transport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("[amqpbus Dial] failed to connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("[amqpbus Dial] failed to open channel: %w", err)
	}
	t, err := New(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	t.conn = conn
	return t, nil
}

// New declares exchange on ch and returns a Transport using it.
func New(ch Channel, exchange string) (*Transport, error) {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		false, // durable
		true,  // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("[amqpbus New] failed to declare exchange %s: %w", exchange, err)
	}
	return &Transport{ch: ch, exchange: exchange}, nil
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	return t.ch.PublishWithContext(
		ctx,
		t.exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         payload,
		},
	)
}

func (t *Transport) Listen(deliver func([]byte)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("[amqpbus Listen] transport closed")
	}

	q, err := t.ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("[amqpbus Listen] failed to declare queue: %w", err)
	}
	if err := t.ch.QueueBind(q.Name, "", t.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("[amqpbus Listen] failed to bind queue %s: %w", q.Name, err)
	}

	tag := uuid.New().String()
	deliveries, err := t.ch.Consume(
		q.Name,
		tag,
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("[amqpbus Listen] failed to consume %s: %w", q.Name, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range deliveries {
			deliver(d.Body)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := t.ch.Cancel(tag, false); err != nil {
				log.Warn().Err(err).Str("consumer", tag).Msg("Failed to cancel consumer")
			}
			<-done
		})
	}
	t.stops = append(t.stops, stop)
	return stop, nil
}

// Close cancels listeners and closes the channel, and the connection
// when the transport dialled it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stops := t.stops
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	if err := t.ch.Close(); err != nil {
		return err
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
