package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regwatch/internal/lifecycle/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
)

type TransitionStoreSuite struct {
	suite.Suite
	store    *InMemory
	ctx      context.Context
	domainID id.DomainID
	flagID   id.FlagID
}

func (s *TransitionStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.domainID = id.NewDomainID()
	s.flagID = id.NewFlagID()
}

func TestTransitionStoreSuite(t *testing.T) {
	suite.Run(t, new(TransitionStoreSuite))
}

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func (s *TransitionStoreSuite) appendRegistration(at time.Time, state models.RegistrationState) *models.RegistrationTransition {
	t, err := models.NewRegistrationTransition(s.domainID, at, state)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendRegistration(s.ctx, t))
	return t
}

func (s *TransitionStoreSuite) appendFlag(at time.Time, setTo bool, validUntil *time.Time) *models.FlagTransition {
	t, err := models.NewFlagTransition(s.domainID, s.flagID, at, setTo, validUntil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendFlag(s.ctx, t))
	return t
}

func (s *TransitionStoreSuite) TestRegistrationHistory() {
	s.Run("empty domain has no latest", func() {
		_, err := s.store.LatestRegistration(s.ctx, s.domainID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		history, err := s.store.RegistrationHistory(s.ctx, s.domainID)
		s.Require().NoError(err)
		s.Empty(history)
	})

	s.Run("appends assign increasing seq and keep timestamp order", func() {
		first := s.appendRegistration(base.Add(2*time.Hour), models.StateRegistered)
		second := s.appendRegistration(base, models.StateUnregistered)
		s.Greater(second.Seq, first.Seq)

		history, err := s.store.RegistrationHistory(s.ctx, s.domainID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(second.Seq, history[0].Seq, "earlier timestamp sorts first")

		latest, err := s.store.LatestRegistration(s.ctx, s.domainID)
		s.Require().NoError(err)
		s.Equal(first.Seq, latest.Seq)

		n, err := s.store.CountRegistrations(s.ctx, s.domainID)
		s.Require().NoError(err)
		s.Equal(2, n)
	})
}

func (s *TransitionStoreSuite) TestRegistrationTiesOrderedBySeq() {
	a := s.appendRegistration(base, models.StateRegistered)
	b := s.appendRegistration(base, models.StateUnregistered)

	latest, err := s.store.LatestRegistration(s.ctx, s.domainID)
	s.Require().NoError(err)
	s.Equal(b.Seq, latest.Seq)

	asOf, err := s.store.RegistrationAsOf(s.ctx, s.domainID, base)
	s.Require().NoError(err)
	s.Equal(b.Seq, asOf.Seq)
	s.NotEqual(a.Seq, asOf.Seq)
}

func (s *TransitionStoreSuite) TestRegistrationAsOf() {
	s.appendRegistration(base, models.StateRegistered)
	s.appendRegistration(base.Add(24*time.Hour), models.StateUnregistered)

	_, err := s.store.RegistrationAsOf(s.ctx, s.domainID, base.Add(-time.Second))
	s.ErrorIs(err, sentinel.ErrNotFound)

	t, err := s.store.RegistrationAsOf(s.ctx, s.domainID, base.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(models.StateRegistered, t.NewState)

	other := id.NewDomainID()
	batch, err := s.store.RegistrationAsOfBatch(s.ctx, []id.DomainID{s.domainID, other}, base.Add(48*time.Hour))
	s.Require().NoError(err)
	s.Len(batch, 1)
	s.Equal(models.StateUnregistered, batch[s.domainID].NewState)
}

func (s *TransitionStoreSuite) TestFlagIndexes() {
	until := base.Add(time.Hour)
	set := s.appendFlag(base, true, &until)
	cleared := s.appendFlag(base.Add(2*time.Hour), false, nil)

	s.Run("latest covers both kinds", func() {
		latest, err := s.store.LatestFlag(s.ctx, s.domainID, s.flagID)
		s.Require().NoError(err)
		s.Equal(cleared.Seq, latest.Seq)
	})

	s.Run("set index ignores set_to=false", func() {
		latestSet, err := s.store.LatestFlagSetAsOf(s.ctx, s.domainID, s.flagID, base.Add(3*time.Hour))
		s.Require().NoError(err)
		s.Equal(set.Seq, latestSet.Seq)

		_, err = s.store.LatestFlagSetAsOf(s.ctx, s.domainID, s.flagID, base.Add(-time.Minute))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("ever set and domain lookup", func() {
		ok, err := s.store.HasFlagSet(s.ctx, s.domainID, s.flagID)
		s.Require().NoError(err)
		s.True(ok)

		domains, err := s.store.DomainsWithFlagSet(s.ctx, s.flagID)
		s.Require().NoError(err)
		s.Equal([]id.DomainID{s.domainID}, domains)

		domains, err = s.store.DomainsWithFlagSet(s.ctx, id.NewFlagID())
		s.Require().NoError(err)
		s.Empty(domains)
	})

	s.Run("batch lookup", func() {
		batch, err := s.store.LatestFlagSetAsOfBatch(s.ctx, []id.DomainID{s.domainID, id.NewDomainID()}, s.flagID, base.Add(time.Minute))
		s.Require().NoError(err)
		s.Len(batch, 1)
		s.Equal(set.Seq, batch[s.domainID].Seq)
	})
}

func (s *TransitionStoreSuite) TestDomainFlagHistoryMergesFlags() {
	other := id.NewFlagID()
	s.appendFlag(base.Add(time.Hour), true, nil)
	t, err := models.NewFlagTransition(s.domainID, other, base, true, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendFlag(s.ctx, t))

	history, err := s.store.DomainFlagHistory(s.ctx, s.domainID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(other, history[0].FlagID)
	s.Equal(s.flagID, history[1].FlagID)
}

func (s *TransitionStoreSuite) TestReadersGetCopies() {
	s.appendRegistration(base, models.StateRegistered)

	history, err := s.store.RegistrationHistory(s.ctx, s.domainID)
	s.Require().NoError(err)
	history[0].NewState = models.StateUnregistered

	latest, err := s.store.LatestRegistration(s.ctx, s.domainID)
	s.Require().NoError(err)
	s.Equal(models.StateRegistered, latest.NewState)
}

func (s *TransitionStoreSuite) TestConcurrentAppendsAssignUniqueSeq() {
	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, _ := models.NewFlagTransition(s.domainID, s.flagID, base.Add(time.Duration(i)*time.Minute), i%2 == 0, nil)
			_ = s.store.AppendFlag(s.ctx, t)
		}()
	}
	wg.Wait()

	history, err := s.store.FlagHistory(s.ctx, s.domainID, s.flagID)
	s.Require().NoError(err)
	s.Require().Len(history, writers)
	seen := make(map[models.Seq]bool, writers)
	for i, t := range history {
		s.False(seen[t.Seq], "duplicate seq %d", t.Seq)
		seen[t.Seq] = true
		if i > 0 {
			s.False(t.Before(history[i-1]), "history must stay sorted")
		}
	}
}
