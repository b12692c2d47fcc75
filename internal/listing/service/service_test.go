package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	catalogmodels "regwatch/internal/catalog/models"
	catalogservice "regwatch/internal/catalog/service"
	domainstore "regwatch/internal/catalog/store/domain"
	flagstore "regwatch/internal/catalog/store/flag"
	lifecycleservice "regwatch/internal/lifecycle/service"
	"regwatch/internal/lifecycle/store"
	listingmetrics "regwatch/internal/listing/metrics"
	"regwatch/internal/listing/snapshot"
	"regwatch/internal/seed"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

var october = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

type ListingServiceSuite struct {
	suite.Suite
	ctx      context.Context
	catalog  *catalogservice.Service
	metrics  *listingmetrics.Metrics
	snapshot *snapshot.Cache
	service  *Service
}

func TestListingServiceSuite(t *testing.T) {
	suite.Run(t, new(ListingServiceSuite))
}

func (s *ListingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.metrics = listingmetrics.NewWithRegisterer(prometheus.NewRegistry())

	s.catalog = catalogservice.New(domainstore.NewInMemory(), flagstore.NewInMemory())
	lifecycle := lifecycleservice.New(store.NewInMemory(), s.catalog)
	s.snapshot = snapshot.New(snapshot.NewMemoryBackend(time.Minute), s.catalog,
		snapshot.WithLogger(logger), snapshot.WithMetrics(s.metrics))
	s.service = New(s.catalog, lifecycle, s.snapshot, WithLogger(logger), WithMetrics(s.metrics))

	s.Require().NoError(seed.Load(s.ctx, s.catalog, lifecycle, logger))
}

func (s *ListingServiceSuite) TestCachedSnapshot() {
	fqdns, err := s.service.CachedSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"dualflag.net", "example.com", "overlapdomain.com"}, fqdns)
	s.Equal(float64(3), testutil.ToFloat64(s.metrics.QueryResult.WithLabelValues("snapshot")))
}

func (s *ListingServiceSuite) TestCachedSnapshot_InvalidatedByCatalogWrite() {
	_, err := s.service.CachedSnapshot(s.ctx)
	s.Require().NoError(err)

	d, err := s.catalog.ResolveFQDN(s.ctx, "testdomain.org")
	s.Require().NoError(err)
	_, err = s.catalog.SetSnapshot(s.ctx, d.ID, catalogmodels.Snapshot{IsRegistered: true, ClearStatus: true})
	s.Require().NoError(err)

	fqdns, err := s.service.CachedSnapshot(s.ctx)
	s.Require().NoError(err)
	s.NotContains(fqdns, "testdomain.org", "catalog without an invalidator serves the cached listing")

	s.Require().NoError(s.snapshot.Invalidate(s.ctx))
	fqdns, err = s.service.CachedSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Contains(fqdns, "testdomain.org")
}

// overlapdomain.com drops out because its EXPIRED flag still resolves active.
func (s *ListingServiceSuite) TestDerivedCurrent() {
	fqdns, err := s.service.DerivedCurrent(s.ctx, october)
	s.Require().NoError(err)
	s.Equal([]string{"dualflag.net", "example.com", "testdomain.org"}, fqdns)

	fqdns, err = s.service.DerivedCurrent(s.ctx, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal([]string{"overlapdomain.com", "testdomain.org"}, fqdns)
}

func (s *ListingServiceSuite) TestEverOccurred() {
	fqdns, err := s.service.EverOccurred(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"dualflag.net"}, fqdns)
}

func (s *ListingServiceSuite) TestSnapshotDrift() {
	drift, err := s.service.SnapshotDrift(s.ctx, october)
	s.Require().NoError(err)
	s.Equal([]Drift{{FQDN: "example.com", CachedRegistered: true, LogRegistered: false}}, drift)

	drift, err = s.service.SnapshotDrift(s.ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().Len(drift, 1)
	s.Equal("overlapdomain.com", drift[0].FQDN)
}

type failingLifecycle struct{}

func (failingLifecycle) RegisteredBatch(context.Context, []id.DomainID, time.Time) (map[id.DomainID]bool, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "store down")
}

func (failingLifecycle) FlagActiveBatch(context.Context, []id.DomainID, id.FlagID, time.Time) (map[id.DomainID]bool, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "store down")
}

func (failingLifecycle) DomainsEverFlagged(context.Context, id.FlagID) ([]id.DomainID, error) {
	return nil, errors.New("store down")
}

func (s *ListingServiceSuite) TestLifecycleFailuresPropagate() {
	svc := New(s.catalog, failingLifecycle{}, s.snapshot)

	_, err := svc.DerivedCurrent(s.ctx, october)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	_, err = svc.EverOccurred(s.ctx)
	s.Error(err)
	_, err = svc.SnapshotDrift(s.ctx, october)
	s.Error(err)
}
