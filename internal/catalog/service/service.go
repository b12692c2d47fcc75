package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	catalogmetrics "regwatch/internal/catalog/metrics"
	"regwatch/internal/catalog/models"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	audit "regwatch/pkg/platform/audit"
	"regwatch/pkg/platform/sentinel"
	"regwatch/pkg/requestcontext"
)

type DomainStore interface {
	CreateIfNameAvailable(ctx context.Context, d *models.Domain) error
	FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	FindByFQDN(ctx context.Context, name, tld string) (*models.Domain, error)
	List(ctx context.Context) ([]*models.Domain, error)
	ListByIDs(ctx context.Context, ids []id.DomainID) ([]*models.Domain, error)
	UpdateSnapshot(ctx context.Context, domainID id.DomainID, snapshot models.Snapshot, now time.Time) (*models.Domain, error)
}

type FlagStore interface {
	CreateIfNameAvailable(ctx context.Context, f *models.Flag) error
	FindByID(ctx context.Context, flagID id.FlagID) (*models.Flag, error)
	FindByName(ctx context.Context, name id.FlagName) (*models.Flag, error)
	List(ctx context.Context) ([]*models.Flag, error)
}

// SnapshotInvalidator drops cached snapshot listings after the operator
// fields of a domain change.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the catalog collaborator: lookup tables for domains and flags.
type Service struct {
	domains        DomainStore
	flags          FlagStore
	invalidator    SnapshotInvalidator
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *catalogmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *catalogmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSnapshotInvalidator(inv SnapshotInvalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func New(domains DomainStore, flags FlagStore, opts ...Option) *Service {
	s := &Service{domains: domains, flags: flags}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RegisterDomain adds name.tld to the catalog. The snapshot fields start false.
func (s *Service) RegisterDomain(ctx context.Context, name, tld string) (*models.Domain, error) {
	d, err := models.NewDomain(id.NewDomainID(), name, tld, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	if err := s.domains.CreateIfNameAvailable(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "domain already exists in catalog")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create domain")
	}

	s.emit(ctx, audit.Event{
		DomainID: d.ID,
		Subject:  d.FQDN(),
		Action:   string(audit.EventDomainRegistered),
	})
	if s.metrics != nil {
		s.metrics.IncrementDomainsRegistered()
	}
	return d, nil
}

// RegisterFQDN splits fqdn on its last dot and registers it.
func (s *Service) RegisterFQDN(ctx context.Context, fqdn string) (*models.Domain, error) {
	name, tld, err := models.SplitFQDN(fqdn)
	if err != nil {
		return nil, err
	}
	return s.RegisterDomain(ctx, name, tld)
}

func (s *Service) GetDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapNotFound(err, "domain")
	}
	return d, nil
}

// ResolveFQDN looks a domain up by its fully qualified name.
func (s *Service) ResolveFQDN(ctx context.Context, fqdn string) (*models.Domain, error) {
	name, tld, err := models.SplitFQDN(fqdn)
	if err != nil {
		return nil, err
	}
	d, err := s.domains.FindByFQDN(ctx, name, tld)
	if err != nil {
		return nil, wrapNotFound(err, "domain")
	}
	return d, nil
}

func (s *Service) ListDomains(ctx context.Context) ([]*models.Domain, error) {
	domains, err := s.domains.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return domains, nil
}

func (s *Service) ListDomainsByIDs(ctx context.Context, ids []id.DomainID) ([]*models.Domain, error) {
	domains, err := s.domains.ListByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return domains, nil
}

// SetSnapshot overwrites the operator-maintained fields and invalidates the
// snapshot listing cache. An invalidation failure is logged, not returned:
// the catalog write has already happened.
func (s *Service) SetSnapshot(ctx context.Context, domainID id.DomainID, snapshot models.Snapshot) (*models.Domain, error) {
	d, err := s.domains.UpdateSnapshot(ctx, domainID, snapshot, requestcontext.Now(ctx))
	if err != nil {
		return nil, wrapNotFound(err, "domain")
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate snapshot cache",
				"domain_id", domainID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	s.emit(ctx, audit.Event{
		DomainID: d.ID,
		Subject:  d.FQDN(),
		Action:   string(audit.EventSnapshotUpdated),
		Decision: "is_registered=" + strconv.FormatBool(d.IsRegistered) + ",clear_status=" + strconv.FormatBool(d.ClearStatus),
	})
	if s.metrics != nil {
		s.metrics.IncrementSnapshotUpdates()
	}
	return d, nil
}

func (s *Service) GetFlag(ctx context.Context, flagID id.FlagID) (*models.Flag, error) {
	f, err := s.flags.FindByID(ctx, flagID)
	if err != nil {
		return nil, wrapNotFound(err, "flag")
	}
	return f, nil
}

func (s *Service) FlagByName(ctx context.Context, name id.FlagName) (*models.Flag, error) {
	f, err := s.flags.FindByName(ctx, name)
	if err != nil {
		return nil, wrapNotFound(err, "flag")
	}
	return f, nil
}

func (s *Service) ListFlags(ctx context.Context) ([]*models.Flag, error) {
	flags, err := s.flags.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flags")
	}
	return flags, nil
}

// EnsureFlags installs every catalog flag that is not present yet and
// returns the full catalog keyed by name.
func (s *Service) EnsureFlags(ctx context.Context) (map[id.FlagName]*models.Flag, error) {
	out := make(map[id.FlagName]*models.Flag, len(id.CatalogFlagNames()))
	for _, name := range id.CatalogFlagNames() {
		f, err := s.flags.FindByName(ctx, name)
		if err == nil {
			out[name] = f
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load flag")
		}

		f = &models.Flag{ID: id.NewFlagID(), Name: name}
		if err := s.flags.CreateIfNameAvailable(ctx, f); err != nil {
			if !errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create flag")
			}
			// Lost a race with another installer; read the winner.
			if f, err = s.flags.FindByName(ctx, name); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load flag")
			}
		}
		out[name] = f
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"domain_id", event.DomainID.String(),
		"subject", event.Subject,
		"request_id", event.RequestID,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
