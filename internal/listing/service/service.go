// Package service answers the three domain listings plus a drift report.
//
// The cached-snapshot listing reads the operator-maintained catalog fields.
// The derived listings resolve the transition log. The two sources are never
// merged; SnapshotDrift reports where they disagree.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	catalogmodels "regwatch/internal/catalog/models"
	listingmetrics "regwatch/internal/listing/metrics"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	"regwatch/pkg/platform/strings"
	"regwatch/pkg/requestcontext"
)

type Catalog interface {
	ListDomains(ctx context.Context) ([]*catalogmodels.Domain, error)
	ListDomainsByIDs(ctx context.Context, ids []id.DomainID) ([]*catalogmodels.Domain, error)
	FlagByName(ctx context.Context, name id.FlagName) (*catalogmodels.Flag, error)
}

type Lifecycle interface {
	RegisteredBatch(ctx context.Context, ids []id.DomainID, at time.Time) (map[id.DomainID]bool, error)
	FlagActiveBatch(ctx context.Context, ids []id.DomainID, flagID id.FlagID, at time.Time) (map[id.DomainID]bool, error)
	DomainsEverFlagged(ctx context.Context, flagID id.FlagID) ([]id.DomainID, error)
}

// Snapshot serves the cached-snapshot listing.
type Snapshot interface {
	FQDNs(ctx context.Context) ([]string, error)
}

// Drift is one domain whose cached registration flag disagrees with the log.
type Drift struct {
	FQDN             string `json:"fqdn"`
	CachedRegistered bool   `json:"cached_registered"`
	LogRegistered    bool   `json:"log_registered"`
}

type Service struct {
	catalog   Catalog
	lifecycle Lifecycle
	snapshot  Snapshot
	logger    *slog.Logger
	metrics   *listingmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *listingmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(catalog Catalog, lifecycle Lifecycle, snapshot Snapshot, opts ...Option) *Service {
	s := &Service{catalog: catalog, lifecycle: lifecycle, snapshot: snapshot}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CachedSnapshot lists domains whose cached is_registered and clear_status
// are both true.
func (s *Service) CachedSnapshot(ctx context.Context) ([]string, error) {
	fqdns, err := s.snapshot.FQDNs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot listing")
	}
	s.observe("snapshot", fqdns)
	return fqdns, nil
}

// DerivedCurrent lists domains whose cached is_registered is true and whose
// EXPIRED flag does not resolve active at at. A zero at means now.
func (s *Service) DerivedCurrent(ctx context.Context, at time.Time) ([]string, error) {
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	domains, err := s.catalog.ListDomains(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	expired, err := s.catalog.FlagByName(ctx, id.FlagExpired)
	if err != nil {
		return nil, err
	}

	registered := make([]*catalogmodels.Domain, 0, len(domains))
	ids := make([]id.DomainID, 0, len(domains))
	for _, d := range domains {
		if d.IsRegistered {
			registered = append(registered, d)
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		s.observe("current", nil)
		return []string{}, nil
	}

	active, err := s.lifecycle.FlagActiveBatch(ctx, ids, expired.ID, at)
	if err != nil {
		return nil, err
	}
	fqdns := make([]string, 0, len(registered))
	for _, d := range registered {
		if !active[d.ID] {
			fqdns = append(fqdns, d.FQDN())
		}
	}
	fqdns = strings.SortedUnique(fqdns)
	s.observe("current", fqdns)
	return fqdns, nil
}

// EverOccurred lists domains for which both EXPIRED and OUTZONE have ever
// been set true.
func (s *Service) EverOccurred(ctx context.Context) ([]string, error) {
	expired, err := s.catalog.FlagByName(ctx, id.FlagExpired)
	if err != nil {
		return nil, err
	}
	outzone, err := s.catalog.FlagByName(ctx, id.FlagOutzone)
	if err != nil {
		return nil, err
	}

	var expiredIDs, outzoneIDs []id.DomainID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expiredIDs, err = s.lifecycle.DomainsEverFlagged(gctx, expired.ID)
		return err
	})
	g.Go(func() error {
		var err error
		outzoneIDs, err = s.lifecycle.DomainsEverFlagged(gctx, outzone.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	both := intersect(expiredIDs, outzoneIDs)
	if len(both) == 0 {
		s.observe("ever_occurred", nil)
		return []string{}, nil
	}
	domains, err := s.catalog.ListDomainsByIDs(ctx, both)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	fqdns := make([]string, 0, len(domains))
	for _, d := range domains {
		fqdns = append(fqdns, d.FQDN())
	}
	fqdns = strings.SortedUnique(fqdns)
	s.observe("ever_occurred", fqdns)
	return fqdns, nil
}

// SnapshotDrift lists domains whose cached is_registered differs from the
// registration state the log resolves at at, sorted by FQDN.
func (s *Service) SnapshotDrift(ctx context.Context, at time.Time) ([]Drift, error) {
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	domains, err := s.catalog.ListDomains(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	ids := make([]id.DomainID, 0, len(domains))
	for _, d := range domains {
		ids = append(ids, d.ID)
	}
	resolved, err := s.lifecycle.RegisteredBatch(ctx, ids, at)
	if err != nil {
		return nil, err
	}

	drift := []Drift{}
	for _, d := range domains {
		if logRegistered := resolved[d.ID]; logRegistered != d.IsRegistered {
			drift = append(drift, Drift{
				FQDN:             d.FQDN(),
				CachedRegistered: d.IsRegistered,
				LogRegistered:    logRegistered,
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].FQDN < drift[j].FQDN })
	if s.metrics != nil {
		s.metrics.ObserveResult("drift", len(drift))
	}
	if len(drift) > 0 {
		s.logger.InfoContext(ctx, "snapshot drift detected",
			"domains", len(drift),
			"at", at,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return drift, nil
}

func (s *Service) observe(listing string, fqdns []string) {
	if s.metrics != nil {
		s.metrics.ObserveResult(listing, len(fqdns))
	}
}

func intersect(a, b []id.DomainID) []id.DomainID {
	inA := make(map[id.DomainID]struct{}, len(a))
	for _, domainID := range a {
		inA[domainID] = struct{}{}
	}
	out := make([]id.DomainID, 0, len(b))
	for _, domainID := range b {
		if _, ok := inA[domainID]; ok {
			out = append(out, domainID)
			delete(inA, domainID)
		}
	}
	return out
}
