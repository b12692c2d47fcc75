package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"regwatch/internal/catalog/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
)

// InMemory keeps catalog domains in maps guarded by a RWMutex.
// Returned values are copies; callers cannot mutate store state.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.DomainID]*models.Domain
	byFQDN map[string]id.DomainID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.DomainID]*models.Domain),
		byFQDN: make(map[string]id.DomainID),
	}
}

// CreateIfNameAvailable inserts the domain unless (name, tld) is taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fqdn := d.FQDN()
	if _, exists := s.byFQDN[fqdn]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *d
	s.byID[d.ID] = &clone
	s.byFQDN[fqdn] = d.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, domainID id.DomainID) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[domainID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

func (s *InMemory) FindByFQDN(_ context.Context, name, tld string) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domainID, ok := s.byFQDN[name+"."+tld]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[domainID]
	return &clone, nil
}

// List returns all domains ordered by FQDN.
func (s *InMemory) List(_ context.Context) ([]*models.Domain, error) {
	s.mu.RLock()
	out := make([]*models.Domain, 0, len(s.byID))
	for _, d := range s.byID {
		clone := *d
		out = append(out, &clone)
	}
	s.mu.RUnlock()

	sortByFQDN(out)
	return out, nil
}

// ListByIDs returns the domains that exist among ids, ordered by FQDN.
// Unknown ids are skipped.
func (s *InMemory) ListByIDs(_ context.Context, ids []id.DomainID) ([]*models.Domain, error) {
	s.mu.RLock()
	out := make([]*models.Domain, 0, len(ids))
	seen := make(map[id.DomainID]struct{}, len(ids))
	for _, domainID := range ids {
		if _, dup := seen[domainID]; dup {
			continue
		}
		seen[domainID] = struct{}{}
		if d, ok := s.byID[domainID]; ok {
			clone := *d
			out = append(out, &clone)
		}
	}
	s.mu.RUnlock()

	sortByFQDN(out)
	return out, nil
}

// UpdateSnapshot overwrites the denormalized snapshot fields.
func (s *InMemory) UpdateSnapshot(_ context.Context, domainID id.DomainID, snapshot models.Snapshot, now time.Time) (*models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[domainID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d.ApplySnapshot(snapshot, now)
	clone := *d
	return &clone, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func sortByFQDN(domains []*models.Domain) {
	sort.Slice(domains, func(i, j int) bool {
		return domains[i].FQDN() < domains[j].FQDN()
	})
}
