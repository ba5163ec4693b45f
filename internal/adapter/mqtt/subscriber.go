package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber buffers messages from one topic filter and hands them out in
// batches. It implements pipeline.BatchExtractor.
type Subscriber struct {
	client        Client
	topic         string
	messages      chan domain.RawMessage
	flushInterval time.Duration
	logger        *slog.Logger
	dropped       atomic.Int64
}

// Subscribe registers a QoS 1 subscription on topic. Messages arriving while
// the buffer is full are dropped and counted.
func Subscribe(client Client, topic string, buffer int, flushInterval time.Duration, logger *slog.Logger) (*Subscriber, error) {
	s := &Subscriber{
		client:        client,
		topic:         topic,
		messages:      make(chan domain.RawMessage, max(buffer, 1)),
		flushInterval: flushInterval,
		logger:        logger.With("component", "mqtt-subscriber", "topic", topic),
	}
	if err := wait(client.Subscribe(topic, 1, s.handle), connectTimeout, "subscribe "+topic); err != nil {
		return nil, err
	}
	s.logger.Info("subscribed")
	return s, nil
}

func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	raw := domain.RawMessage{
		Value:     msg.Payload(),
		Topic:     msg.Topic(),
		Offset:    int64(msg.MessageID()),
		Timestamp: time.Now(),
	}
	select {
	case s.messages <- raw:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("buffer full, dropping message", "dropped_total", n)
		}
	}
}

// Dropped returns how many messages were discarded because the buffer was
// full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// ExtractBatch collects up to batchSize buffered messages, returning a
// partial batch when the flush interval elapses.
func (s *Subscriber) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error) {
	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	batch := make([]domain.RawMessage, 0, batchSize)
	for len(batch) < batchSize {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-timer.C:
			return batch, nil
		case raw := <-s.messages:
			batch = append(batch, raw)
		}
	}
	return batch, nil
}

// Close removes the subscription.
func (s *Subscriber) Close() error {
	return wait(s.client.Unsubscribe(s.topic), publishTimeout, "unsubscribe "+s.topic)
}
