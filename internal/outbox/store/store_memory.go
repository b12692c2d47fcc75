package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"regwatch/internal/outbox/models"
)

// InMemory is an outbox for tests and single-process runs. The whole store
// is locked while a batch is processed.
type InMemory struct {
	mu      sync.Mutex
	entries []*models.Entry
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{now: time.Now}
}

// Add appends an unpublished entry, filling ID and CreatedAt when unset.
func (s *InMemory) Add(_ context.Context, e models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.PublishedAt = nil
	s.entries = append(s.entries, &e)
	return nil
}

func (s *InMemory) ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.Entry) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []*models.Entry
	for _, e := range s.entries {
		if len(claimed) == limit {
			break
		}
		if !e.Published() {
			claimed = append(claimed, e)
		}
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	batch := make([]models.Entry, len(claimed))
	for i, e := range claimed {
		batch[i] = *e
	}
	err := fn(ctx, batch)
	now := s.now()
	for _, e := range claimed {
		e.Attempts++
		if err == nil {
			publishedAt := now
			e.PublishedAt = &publishedAt
		}
	}
	if err != nil {
		return 0, err
	}
	return len(claimed), nil
}

func (s *InMemory) Pending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.Published() {
			n++
		}
	}
	return n, nil
}

// All returns copies of every entry in insertion order.
func (s *InMemory) All() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}
