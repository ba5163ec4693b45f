// Package pipeline runs the extract-transform-load loop that feeds broker
// messages into the fusion engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
)

// ErrFeedUnavailable is returned by Run once extraction or loading has
// failed more times in a row than the configured ceiling.
var ErrFeedUnavailable = errors.New("feed unavailable")

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer converts a raw message into a domain value.
type Transformer[T any] interface {
	Transform(ctx context.Context, raw domain.RawMessage) (T, error)
}

// BatchLoader hands transformed values to their destination.
type BatchLoader[T any] interface {
	LoadBatch(ctx context.Context, items []T) error
}

// Option configures a Pipeline.
type Option func(*settings)

type settings struct {
	maxFailures    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// WithMaxFailures sets how many consecutive extract or load failures are
// tolerated before Run gives up with ErrFeedUnavailable.
func WithMaxFailures(n int) Option { return func(s *settings) { s.maxFailures = n } }

// WithBackoff sets the retry delay bounds.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(s *settings) {
		s.initialBackoff = initial
		s.maxBackoff = maxDelay
	}
}

// Pipeline orchestrates the extract-transform-load loop for one feed.
type Pipeline[T any] struct {
	feed        string
	extractor   BatchExtractor
	transformer Transformer[T]
	loader      BatchLoader[T]
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	maxFailures int
	backoff     *backoff.ExponentialBackOff
	failures    int
}

// New creates a Pipeline for feed with the given stages and observability.
func New[T any](feed string, e BatchExtractor, t Transformer[T], l BatchLoader[T], logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline[T] {
	s := settings{maxFailures: 5, initialBackoff: 200 * time.Millisecond, maxBackoff: 5 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Pipeline[T]{
		feed:        feed,
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger.With("feed", feed),
		metrics:     metrics,
		batchSize:   batchSize,
		maxFailures: s.maxFailures,
		backoff:     b,
	}
}

// CheckReadiness returns nil if the pipeline has loaded at least one message,
// or an error describing why the service is not yet ready.
func (p *Pipeline[T]) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("%s pipeline has not loaded any messages yet", p.feed)
	}
	return nil
}

// Ready reports whether at least one message has been loaded.
func (p *Pipeline[T]) Ready() bool { return p.ready.Load() }

// Run executes the batch loop until the context is cancelled or the feed is
// declared unavailable.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "max_failures", p.maxFailures)
	p.metrics.PipelineRunning.WithLabelValues(p.feed).Set(1)
	defer p.metrics.PipelineRunning.WithLabelValues(p.feed).Set(0)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if err := p.processBatch(ctx); err != nil {
			if errors.Is(err, ErrFeedUnavailable) {
				p.metrics.FeedUnavailable.WithLabelValues(p.feed).Set(1)
				p.logger.Error("feed unavailable, giving up", "failures", p.failures)
				return fmt.Errorf("%s: %w", p.feed, err)
			}
			return nil
		}
	}
}

// errStop signals a clean stop after context cancellation.
var errStop = errors.New("stop")

// processBatch runs one extract-transform-load cycle.
func (p *Pipeline[T]) processBatch(ctx context.Context) error {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return errStop
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx)
	}

	if len(rawBatch) == 0 {
		if ctx.Err() != nil {
			return errStop
		}
		return nil
	}

	p.metrics.MessagesConsumed.WithLabelValues(p.feed).Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	loaded, err := p.transformAndLoad(ctx, rawBatch)
	if err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", loaded)
		return p.backoffOrStop(ctx)
	}
	p.resetFailures()

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return nil
}

// transformAndLoad transforms each message in the batch, loads the successes,
// and commits offsets. Messages that fail to transform are committed and
// dropped. On a load error the count is the size of the failed batch.
func (p *Pipeline[T]) transformAndLoad(ctx context.Context, rawBatch []domain.RawMessage) (int, error) {
	outBatch := make([]T, 0, len(rawBatch))
	successfulRaws := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.WithLabelValues(p.feed).Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, out)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, nil
	}

	if err := p.loader.LoadBatch(ctx, outBatch); err != nil {
		return len(outBatch), err
	}

	p.metrics.MessagesLoaded.WithLabelValues(p.feed).Add(float64(len(outBatch)))

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), nil
}

// backoffOrStop records a failure and sleeps for the next backoff interval.
// It returns ErrFeedUnavailable once the ceiling is exceeded and errStop if
// the context ends while waiting.
func (p *Pipeline[T]) backoffOrStop(ctx context.Context) error {
	if ctx.Err() != nil {
		return errStop
	}
	p.failures++
	if p.failures > p.maxFailures {
		return ErrFeedUnavailable
	}
	if !sleepWithContext(ctx, p.backoff.NextBackOff()) {
		return errStop
	}
	return nil
}

func (p *Pipeline[T]) resetFailures() {
	if p.failures > 0 {
		p.logger.Info("feed recovered", "failures", p.failures)
	}
	p.failures = 0
	p.backoff.Reset()
	p.metrics.FeedUnavailable.WithLabelValues(p.feed).Set(0)
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline[T]) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
