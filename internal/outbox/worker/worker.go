// Package worker relays outbox entries to Kafka.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"regwatch/internal/outbox/metrics"
	"regwatch/internal/outbox/models"
	"regwatch/internal/platform/kafka"
	"regwatch/pkg/platform/circuit"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks regwatch/internal/outbox/worker Publisher

// ErrCircuitOpen is returned by RelayOnce while the broker is considered down.
var ErrCircuitOpen = errors.New("outbox relay circuit open")

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

type Store interface {
	ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.Entry) error) (int, error)
	Pending(ctx context.Context) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

type Worker struct {
	store        Store
	publisher    Publisher
	breaker      *circuit.Breaker
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Worker)

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(store Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = circuit.New("outbox")
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run relays on every tick until ctx is cancelled. Each tick drains full
// batches so a backlog clears without waiting for further ticks.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "outbox relay started",
		"poll_interval", w.pollInterval.String(),
		"batch_size", w.batchSize,
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.RelayOnce(ctx)
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
			}
			break
		}
		if n < w.batchSize {
			break
		}
	}
	w.refreshPending(ctx)
}

// RelayOnce publishes at most one batch and returns how many entries were
// marked published.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		if w.metrics != nil {
			w.metrics.IncrementSkipped()
		}
		return 0, ErrCircuitOpen
	}

	n, err := w.store.ProcessBatch(ctx, w.batchSize, func(ctx context.Context, entries []models.Entry) error {
		return w.publisher.Publish(ctx, toMessages(entries))
	})
	if err != nil {
		w.recordFailure(ctx)
		return 0, fmt.Errorf("relay outbox batch: %w", err)
	}
	if n > 0 {
		w.recordSuccess(ctx)
		if w.metrics != nil {
			w.metrics.AddPublished(n)
		}
	}
	return n, nil
}

func (w *Worker) recordFailure(ctx context.Context) {
	if w.metrics != nil {
		w.metrics.IncrementPublishErrors()
	}
	_, change := w.breaker.RecordFailure()
	if change.Opened {
		w.logger.ErrorContext(ctx, "outbox relay circuit opened", "breaker", w.breaker.Name())
		if w.metrics != nil {
			w.metrics.SetCircuitOpen(true)
		}
	}
}

func (w *Worker) recordSuccess(ctx context.Context) {
	_, change := w.breaker.RecordSuccess()
	if change.Closed {
		w.logger.InfoContext(ctx, "outbox relay circuit closed", "breaker", w.breaker.Name())
		if w.metrics != nil {
			w.metrics.SetCircuitOpen(false)
		}
	}
}

func (w *Worker) refreshPending(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	n, err := w.store.Pending(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to count pending outbox entries", "error", err)
		return
	}
	w.metrics.SetPending(n)
}

func toMessages(entries []models.Entry) []kafka.Message {
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"outbox_id":      e.ID.String(),
				"event_type":     e.EventType,
				"aggregate_type": e.AggregateType,
			},
		}
	}
	return msgs
}
