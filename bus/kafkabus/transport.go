// Package kafkabus carries cross-tab signals over a Kafka topic. Every
// listener reads the topic from its latest offset without a consumer
// group, so each tab sees every message sent after it started.
package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/bus"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const readErrorBackoff = 500 * time.Millisecond

var _ bus.Transport = (*Transport)(nil)

// Writer is the subset of *kafka.Writer the transport uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the subset of *kafka.Reader the transport uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Transport writes to and reads from one topic.
type Transport struct {
	writer    Writer
	newReader func() Reader

	mu     sync.Mutex
	stops  []func()
	closed bool
}

// New returns a Transport for topic on brokers.
func New(brokers []string, topic string) *Transport {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	newReader := func() Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    1e6,
			MaxWait:     250 * time.Millisecond,
		})
	}
	return NewWithClients(writer, newReader)
}

// NewWithClients builds a Transport on injected clients.
func NewWithClients(writer Writer, newReader func() Reader) *Transport {
	return &Transport{writer: writer, newReader: newReader}
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	if err := t.writer.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
		return fmt.Errorf("[kafkabus Send] %w", err)
	}
	return nil
}

func (t *Transport) Listen(deliver func([]byte)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("[kafkabus Listen] transport closed")
	}

	reader := t.newReader()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			m, err := reader.ReadMessage(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read sync message")
				select {
				case <-ctx.Done():
					return
				case <-time.After(readErrorBackoff):
				}
				continue
			}
			deliver(m.Value)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			if err := reader.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close kafka reader")
			}
		})
	}
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
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return t.writer.Close()
}
