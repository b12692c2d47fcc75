//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	catalogmodels "regwatch/internal/catalog/models"
	catalogservice "regwatch/internal/catalog/service"
	domainstore "regwatch/internal/catalog/store/domain"
	flagstore "regwatch/internal/catalog/store/flag"
	"regwatch/internal/lifecycle/models"
	"regwatch/internal/lifecycle/service"
	"regwatch/internal/lifecycle/store"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	auditpostgres "regwatch/pkg/platform/audit/store/postgres"
	"regwatch/pkg/platform/audit/publisher"
	"regwatch/pkg/platform/sentinel"
	"regwatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	catalog  *catalogservice.Service
	domain   *catalogmodels.Domain
	expired  *catalogmodels.Flag
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.catalog = catalogservice.New(domainstore.NewPostgres(s.postgres.DB), flagstore.NewPostgres(s.postgres.DB))
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "outbox", "audit_events", "flag_transitions", "registration_transitions", "domains", "flags")
	s.Require().NoError(err)

	flags, err := s.catalog.EnsureFlags(ctx)
	s.Require().NoError(err)
	s.expired = flags[id.FlagExpired]
	s.domain, err = s.catalog.RegisterFQDN(ctx, "example.com")
	s.Require().NoError(err)
}

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func (s *PostgresStoreSuite) appendRegistration(at time.Time, state models.RegistrationState) *models.RegistrationTransition {
	t, err := models.NewRegistrationTransition(s.domain.ID, at, state)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendRegistration(context.Background(), t))
	return t
}

func (s *PostgresStoreSuite) TestRegistrationOrderingAndTies() {
	ctx := context.Background()
	first := s.appendRegistration(base, models.StateRegistered)
	second := s.appendRegistration(base, models.StateUnregistered)
	s.Greater(second.Seq, first.Seq)
	s.False(second.RecordedAt.IsZero())

	latest, err := s.store.LatestRegistration(ctx, s.domain.ID)
	s.Require().NoError(err)
	s.Equal(second.Seq, latest.Seq)

	_, err = s.store.RegistrationAsOf(ctx, s.domain.ID, base.Add(-time.Second))
	s.ErrorIs(err, sentinel.ErrNotFound)

	batch, err := s.store.RegistrationAsOfBatch(ctx, []id.DomainID{s.domain.ID, id.NewDomainID()}, base)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(models.StateUnregistered, batch[s.domain.ID].NewState)

	n, err := s.store.CountRegistrations(ctx, s.domain.ID)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *PostgresStoreSuite) TestFlagSetIndex() {
	ctx := context.Background()
	until := base.Add(time.Hour)
	set, err := models.NewFlagTransition(s.domain.ID, s.expired.ID, base, true, &until)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendFlag(ctx, set))
	cleared, err := models.NewFlagTransition(s.domain.ID, s.expired.ID, base.Add(2*time.Hour), false, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendFlag(ctx, cleared))

	latestSet, err := s.store.LatestFlagSetAsOf(ctx, s.domain.ID, s.expired.ID, base.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Equal(set.Seq, latestSet.Seq)
	s.Require().NotNil(latestSet.ValidUntil)
	s.True(latestSet.ValidUntil.Equal(until))

	latest, err := s.store.LatestFlag(ctx, s.domain.ID, s.expired.ID)
	s.Require().NoError(err)
	s.Equal(cleared.Seq, latest.Seq)
	s.Nil(latest.ValidUntil)

	ok, err := s.store.HasFlagSet(ctx, s.domain.ID, s.expired.ID)
	s.Require().NoError(err)
	s.True(ok)

	ids, err := s.store.DomainsWithFlagSet(ctx, s.expired.ID)
	s.Require().NoError(err)
	s.Equal([]id.DomainID{s.domain.ID}, ids)

	history, err := s.store.DomainFlagHistory(ctx, s.domain.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
}

// TestConcurrentSubmissions_AdvisoryLock drives the enforcer through the
// advisory lock: exactly one writer may move the domain to unregistered.
func (s *PostgresStoreSuite) TestConcurrentSubmissions_AdvisoryLock() {
	ctx := context.Background()
	auditStore := auditpostgres.New(s.postgres.DB)
	svc := service.New(s.store, s.catalog,
		service.WithTx(store.NewAdvisoryLockTx(s.postgres.DB, 10*time.Second)),
		service.WithAuditPublisher(publisher.NewPublisher(auditStore)),
	)
	_, err := svc.SubmitRegistration(ctx, s.domain.ID, base, models.StateRegistered)
	s.Require().NoError(err)

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, duplicateCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitRegistration(ctx, s.domain.ID, base.Add(time.Hour), models.StateUnregistered)
			switch {
			case err == nil:
				successCount.Add(1)
			case dErrors.HasCode(err, dErrors.CodeDuplicateState):
				duplicateCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one submission should succeed")
	s.Equal(int32(goroutines-1), duplicateCount.Load())

	n, err := s.store.CountRegistrations(ctx, s.domain.ID)
	s.Require().NoError(err)
	s.Equal(2, n)

	events, err := auditStore.ListByDomain(ctx, s.domain.ID)
	s.Require().NoError(err)
	s.Len(events, 1+goroutines, "every accepted and rejected submission is audited")

	var pending int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	s.Equal(1+goroutines, pending)
}

func (s *PostgresStoreSuite) TestLockKeyIsStable() {
	s.Equal(store.LockKey(s.domain.ID), store.LockKey(s.domain.ID))
	s.NotEqual(store.LockKey(s.domain.ID), store.LockKey(id.NewDomainID()))
}
