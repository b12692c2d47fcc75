// Package publisher emits audit events to a store, either inline or through
// a bounded background buffer.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "regwatch/pkg/domain"
	audit "regwatch/pkg/platform/audit"
)

// Publisher captures structured audit events. In sync mode Emit writes
// through to the store, so a store that joins the caller's transaction makes
// the event atomic with the write. In async mode events are buffered and a
// full buffer drops the event rather than blocking the caller.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer  chan audit.Event
	wg      sync.WaitGroup
	closeMu sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event, stamping Timestamp and Category when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.buffer <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"domain_id", event.DomainID.String(),
		)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	return p.store.ListByDomain(ctx, domainID)
}

// Close drains buffered events. Safe to call more than once.
func (p *Publisher) Close() {
	p.closeMu.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		// Detached from the emitting request; it may already be finished.
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"domain_id", event.DomainID.String(),
				"error", err,
			)
		}
	}
}
