// Package store persists the append-only transition log.
//
// Stores do not enforce the registration alternation rule; the service does
// that under a per-domain lock before calling AppendRegistration.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"regwatch/internal/lifecycle/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
	"regwatch/pkg/requestcontext"
)

type flagKey struct {
	domain id.DomainID
	flag   id.FlagID
}

// InMemory keeps per-domain and per-(domain, flag) slices sorted by
// (timestamp, seq). The last element of each slice is the latest pointer.
// Readers get copies taken under the read lock.
type InMemory struct {
	mu      sync.RWMutex
	nextSeq models.Seq

	registrations map[id.DomainID][]models.RegistrationTransition
	flags         map[flagKey][]models.FlagTransition
	// flagSets holds only set_to=true transitions, the ones the resolver ranks.
	flagSets map[flagKey][]models.FlagTransition
	// domainFlags lists flags with history per domain, in first-seen order.
	domainFlags map[id.DomainID][]id.FlagID
}

func NewInMemory() *InMemory {
	return &InMemory{
		registrations: make(map[id.DomainID][]models.RegistrationTransition),
		flags:         make(map[flagKey][]models.FlagTransition),
		flagSets:      make(map[flagKey][]models.FlagTransition),
		domainFlags:   make(map[id.DomainID][]id.FlagID),
	}
}

// AppendRegistration assigns Seq and RecordedAt and stores t.
func (s *InMemory) AppendRegistration(ctx context.Context, t *models.RegistrationTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	t.Seq = s.nextSeq
	t.RecordedAt = requestcontext.Now(ctx)
	s.registrations[t.DomainID] = insertRegistration(s.registrations[t.DomainID], *t)
	return nil
}

func (s *InMemory) LatestRegistration(_ context.Context, domainID id.DomainID) (*models.RegistrationTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.registrations[domainID]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (s *InMemory) RegistrationHistory(_ context.Context, domainID id.DomainID) ([]models.RegistrationTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RegistrationTransition{}, s.registrations[domainID]...), nil
}

// RegistrationAsOf returns the latest transition with timestamp <= at.
func (s *InMemory) RegistrationAsOf(_ context.Context, domainID id.DomainID, at time.Time) (*models.RegistrationTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return registrationAsOf(s.registrations[domainID], at)
}

func (s *InMemory) RegistrationAsOfBatch(_ context.Context, ids []id.DomainID, at time.Time) (map[id.DomainID]models.RegistrationTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DomainID]models.RegistrationTransition, len(ids))
	for _, domainID := range ids {
		if t, err := registrationAsOf(s.registrations[domainID], at); err == nil {
			out[domainID] = *t
		}
	}
	return out, nil
}

func (s *InMemory) CountRegistrations(_ context.Context, domainID id.DomainID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registrations[domainID]), nil
}

// AppendFlag assigns Seq and RecordedAt and stores t.
func (s *InMemory) AppendFlag(ctx context.Context, t *models.FlagTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	t.Seq = s.nextSeq
	t.RecordedAt = requestcontext.Now(ctx)

	key := flagKey{domain: t.DomainID, flag: t.FlagID}
	if len(s.flags[key]) == 0 {
		s.domainFlags[t.DomainID] = append(s.domainFlags[t.DomainID], t.FlagID)
	}
	s.flags[key] = insertFlag(s.flags[key], *t)
	if t.SetTo {
		s.flagSets[key] = insertFlag(s.flagSets[key], *t)
	}
	return nil
}

func (s *InMemory) LatestFlag(_ context.Context, domainID id.DomainID, flagID id.FlagID) (*models.FlagTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.flags[flagKey{domain: domainID, flag: flagID}]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (s *InMemory) FlagHistory(_ context.Context, domainID id.DomainID, flagID id.FlagID) ([]models.FlagTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FlagTransition{}, s.flags[flagKey{domain: domainID, flag: flagID}]...), nil
}

// DomainFlagHistory returns every flag transition for a domain in
// (timestamp, seq) order.
func (s *InMemory) DomainFlagHistory(_ context.Context, domainID id.DomainID) ([]models.FlagTransition, error) {
	s.mu.RLock()
	var out []models.FlagTransition
	for _, flagID := range s.domainFlags[domainID] {
		out = append(out, s.flags[flagKey{domain: domainID, flag: flagID}]...)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if out == nil {
		out = []models.FlagTransition{}
	}
	return out, nil
}

// LatestFlagSetAsOf returns the latest set_to=true transition with
// timestamp <= at.
func (s *InMemory) LatestFlagSetAsOf(_ context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (*models.FlagTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return flagAsOf(s.flagSets[flagKey{domain: domainID, flag: flagID}], at)
}

func (s *InMemory) LatestFlagSetAsOfBatch(_ context.Context, ids []id.DomainID, flagID id.FlagID, at time.Time) (map[id.DomainID]models.FlagTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DomainID]models.FlagTransition, len(ids))
	for _, domainID := range ids {
		if t, err := flagAsOf(s.flagSets[flagKey{domain: domainID, flag: flagID}], at); err == nil {
			out[domainID] = *t
		}
	}
	return out, nil
}

func (s *InMemory) HasFlagSet(_ context.Context, domainID id.DomainID, flagID id.FlagID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flagSets[flagKey{domain: domainID, flag: flagID}]) > 0, nil
}

// DomainsWithFlagSet lists domains that have at least one set_to=true
// transition for flagID.
func (s *InMemory) DomainsWithFlagSet(_ context.Context, flagID id.FlagID) ([]id.DomainID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []id.DomainID{}
	for key, sets := range s.flagSets {
		if key.flag == flagID && len(sets) > 0 {
			out = append(out, key.domain)
		}
	}
	return out, nil
}

// insertRegistration keeps history sorted. A new transition always has the
// highest seq, so it goes after every entry with an equal or earlier
// timestamp.
func insertRegistration(history []models.RegistrationTransition, t models.RegistrationTransition) []models.RegistrationTransition {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].OccurredAt.After(t.OccurredAt)
	})
	history = append(history, models.RegistrationTransition{})
	copy(history[i+1:], history[i:])
	history[i] = t
	return history
}

func insertFlag(history []models.FlagTransition, t models.FlagTransition) []models.FlagTransition {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].OccurredAt.After(t.OccurredAt)
	})
	history = append(history, models.FlagTransition{})
	copy(history[i+1:], history[i:])
	history[i] = t
	return history
}

func registrationAsOf(history []models.RegistrationTransition, at time.Time) (*models.RegistrationTransition, error) {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].OccurredAt.After(at)
	})
	if i == 0 {
		return nil, sentinel.ErrNotFound
	}
	t := history[i-1]
	return &t, nil
}

func flagAsOf(history []models.FlagTransition, at time.Time) (*models.FlagTransition, error) {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].OccurredAt.After(at)
	})
	if i == 0 {
		return nil, sentinel.ErrNotFound
	}
	t := history[i-1]
	return &t, nil
}
