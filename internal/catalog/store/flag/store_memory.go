package flag

import (
	"context"
	"sort"
	"sync"

	"regwatch/internal/catalog/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
)

// InMemory holds the flag catalog.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.FlagID]*models.Flag
	byName map[id.FlagName]id.FlagID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.FlagID]*models.Flag),
		byName: make(map[id.FlagName]id.FlagID),
	}
}

func (s *InMemory) CreateIfNameAvailable(_ context.Context, f *models.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[f.Name]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *f
	s.byID[f.ID] = &clone
	s.byName[f.Name] = f.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, flagID id.FlagID) (*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.byID[flagID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *f
	return &clone, nil
}

func (s *InMemory) FindByName(_ context.Context, name id.FlagName) (*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flagID, ok := s.byName[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[flagID]
	return &clone, nil
}

// List returns flags ordered by name.
func (s *InMemory) List(_ context.Context) ([]*models.Flag, error) {
	s.mu.RLock()
	out := make([]*models.Flag, 0, len(s.byID))
	for _, f := range s.byID {
		clone := *f
		out = append(out, &clone)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
