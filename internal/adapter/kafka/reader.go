package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/config"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/retry"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrNoTopics is returned when no topic matches the subscription pattern
// within the retry budget.
var ErrNoTopics = errors.New("no topics match pattern")

// defaultRefreshInterval is how often a pattern reader looks for new device
// topics.
const defaultRefreshInterval = 30 * time.Second

// Reader consumes messages from one or more Kafka topics as part of a
// consumer group. It implements pipeline.BatchExtractor.
type Reader struct {
	brokers       []string
	groupID       string
	flushInterval time.Duration
	logger        *slog.Logger

	// pattern is nil for fixed-topic readers.
	pattern         *regexp.Regexp
	refreshInterval time.Duration
	lastRefresh     time.Time
	listTopics      func(ctx context.Context) ([]string, error)

	mu     sync.Mutex
	topics []string
	reader *kafkago.Reader
}

// NewReader creates a consumer-group reader for a single topic.
func NewReader(cfg *config.Config, topic string, logger *slog.Logger) *Reader {
	r := &Reader{
		brokers:       cfg.KafkaBrokers,
		groupID:       cfg.KafkaGroupID,
		flushInterval: cfg.BatchFlushInterval,
		logger:        logger.With("component", "kafka-reader", "topic", topic),
	}
	r.topics = []string{topic}
	r.reader = r.newKafkaReader(r.topics)
	return r
}

// NewPatternReader discovers every topic matching pattern and subscribes the
// group to all of them. Discovery retries with backoff until at least one
// topic exists; new topics are picked up every refresh interval.
func NewPatternReader(ctx context.Context, cfg *config.Config, pattern string, logger *slog.Logger) (*Reader, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile topic pattern %q: %w", pattern, err)
	}
	r := &Reader{
		brokers:         cfg.KafkaBrokers,
		groupID:         cfg.KafkaGroupID,
		flushInterval:   cfg.BatchFlushInterval,
		logger:          logger.With("component", "kafka-reader", "pattern", pattern),
		pattern:         re,
		refreshInterval: defaultRefreshInterval,
	}
	r.listTopics = r.brokerTopics

	var topics []string
	err = retry.Do(ctx, retry.DefaultPolicy(cfg.ConnectMaxRetries), r.logger, "topic discovery", func(ctx context.Context) error {
		found, err := r.discover(ctx)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return ErrNoTopics
		}
		topics = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover topics %q: %w", pattern, err)
	}

	r.topics = topics
	r.reader = r.newKafkaReader(topics)
	r.lastRefresh = time.Now()
	r.logger.Info("subscribed to topics", "count", len(topics))
	return r, nil
}

func (r *Reader) newKafkaReader(topics []string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     r.brokers,
		GroupID:     r.groupID,
		GroupTopics: topics,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

// Topics returns the topics currently subscribed.
func (r *Reader) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.topics)
}

// ExtractBatch fetches up to batchSize messages, returning early when the
// flush interval elapses with a partial batch.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error) {
	r.maybeRefresh(ctx)

	r.mu.Lock()
	reader := r.reader
	r.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]domain.RawMessage, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := reader.FetchMessage(flushCtx)
		if err != nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return batch, nil
			}
			if len(batch) > 0 {
				r.logger.Warn("fetch failed mid-batch, returning partial batch", "error", err, "size", len(batch))
				return batch, nil
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}
		raw := mapMessageToRawMessage(msg)
		raw.Commit = func(ctx context.Context) error {
			return reader.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

// maybeRefresh re-runs discovery and swaps the underlying reader when the
// matching topic set has grown.
func (r *Reader) maybeRefresh(ctx context.Context) {
	if r.pattern == nil || time.Since(r.lastRefresh) < r.refreshInterval {
		return
	}
	r.lastRefresh = time.Now()

	found, err := r.discover(ctx)
	if err != nil {
		r.logger.Warn("topic refresh failed", "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(found) == 0 || slices.Equal(found, r.topics) {
		return
	}
	old := r.reader
	r.topics = found
	r.reader = r.newKafkaReader(found)
	if err := old.Close(); err != nil {
		r.logger.Warn("close previous reader", "error", err)
	}
	r.logger.Info("topic set changed, resubscribed", "count", len(found))
}

// discover returns the sorted topics matching the pattern.
func (r *Reader) discover(ctx context.Context) ([]string, error) {
	all, err := r.listTopics(ctx)
	if err != nil {
		return nil, err
	}
	return matchTopics(r.pattern, all), nil
}

func (r *Reader) brokerTopics(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, broker := range r.brokers {
		topics, err := listBrokerTopics(ctx, broker)
		if err == nil {
			return topics, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func listBrokerTopics(ctx context.Context, broker string) ([]string, error) {
	conn, err := kafkago.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", broker, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("read partitions from %s: %w", broker, err)
	}
	topics := make([]string, 0, len(partitions))
	for _, p := range partitions {
		topics = append(topics, p.Topic)
	}
	return topics, nil
}

// matchTopics filters, sorts and de-duplicates topics against re.
func matchTopics(re *regexp.Regexp, topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if re.MatchString(t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reader.Close()
}

// mapMessageToRawMessage converts a kafka-go message into the transport
// agnostic form.
func mapMessageToRawMessage(msg kafkago.Message) domain.RawMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawMessage{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
