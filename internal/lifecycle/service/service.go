// Package service hosts the invariant enforcer and the effective-state
// resolver for the transition log.
//
// Writes validate against the catalog, then check and append under a
// RegistrationTx. Reads resolve the log on demand and never consult the
// catalog's denormalized snapshot fields.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalogmodels "regwatch/internal/catalog/models"
	lifecyclemetrics "regwatch/internal/lifecycle/metrics"
	"regwatch/internal/lifecycle/models"
	"regwatch/internal/lifecycle/resolve"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	audit "regwatch/pkg/platform/audit"
	"regwatch/pkg/platform/sentinel"
	"regwatch/pkg/requestcontext"
)

const tracerName = "regwatch/lifecycle"

type Store interface {
	AppendRegistration(ctx context.Context, t *models.RegistrationTransition) error
	LatestRegistration(ctx context.Context, domainID id.DomainID) (*models.RegistrationTransition, error)
	RegistrationHistory(ctx context.Context, domainID id.DomainID) ([]models.RegistrationTransition, error)
	RegistrationAsOf(ctx context.Context, domainID id.DomainID, at time.Time) (*models.RegistrationTransition, error)
	RegistrationAsOfBatch(ctx context.Context, ids []id.DomainID, at time.Time) (map[id.DomainID]models.RegistrationTransition, error)
	CountRegistrations(ctx context.Context, domainID id.DomainID) (int, error)

	AppendFlag(ctx context.Context, t *models.FlagTransition) error
	FlagHistory(ctx context.Context, domainID id.DomainID, flagID id.FlagID) ([]models.FlagTransition, error)
	DomainFlagHistory(ctx context.Context, domainID id.DomainID) ([]models.FlagTransition, error)
	LatestFlagSetAsOf(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (*models.FlagTransition, error)
	LatestFlagSetAsOfBatch(ctx context.Context, ids []id.DomainID, flagID id.FlagID, at time.Time) (map[id.DomainID]models.FlagTransition, error)
	HasFlagSet(ctx context.Context, domainID id.DomainID, flagID id.FlagID) (bool, error)
	DomainsWithFlagSet(ctx context.Context, flagID id.FlagID) ([]id.DomainID, error)
}

// Catalog resolves the identifiers transitions refer to. Implementations
// return CodeNotFound for unknown ids.
type Catalog interface {
	GetDomain(ctx context.Context, domainID id.DomainID) (*catalogmodels.Domain, error)
	GetFlag(ctx context.Context, flagID id.FlagID) (*catalogmodels.Flag, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var errOutOfOrder = errors.New("registration transition precedes latest")

// Service is the enforcer and resolver over one transition store.
type Service struct {
	store          Store
	catalog        Catalog
	tx             RegistrationTx
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *lifecyclemetrics.Metrics
	tracer         trace.Tracer
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

func WithMetrics(m *lifecyclemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx replaces the default in-memory sharded lock.
func WithTx(tx RegistrationTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, catalog Catalog, opts ...Option) *Service {
	s := &Service{store: store, catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// SubmitRegistration appends a registration transition when newState differs
// from the domain's latest state. A repeat of the latest state fails with
// CodeDuplicateState and writes nothing. A timestamp earlier than the latest
// registration fails with CodeInvalidInput.
func (s *Service) SubmitRegistration(ctx context.Context, domainID id.DomainID, at time.Time, newState models.RegistrationState) (*models.RegistrationTransition, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.submit_registration",
		trace.WithAttributes(
			attribute.String("domain_id", domainID.String()),
			attribute.String("new_state", string(newState)),
		))
	defer span.End()
	start := time.Now()

	t, err := s.submitRegistration(ctx, domainID, at, newState)
	if s.metrics != nil {
		s.metrics.ObserveSubmit("registration", start)
	}
	endSpan(span, err)
	return t, err
}

func (s *Service) submitRegistration(ctx context.Context, domainID id.DomainID, at time.Time, newState models.RegistrationState) (*models.RegistrationTransition, error) {
	t, err := models.NewRegistrationTransition(domainID, at, newState)
	if err != nil {
		return nil, err
	}
	domain, err := s.catalog.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithDomainLock(ctx, domainID, func(ctx context.Context) error {
		latest, err := s.store.LatestRegistration(ctx, domainID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read latest registration")
		}
		if latest != nil {
			if !latest.NewState.CanTransitionTo(t.NewState) {
				return dErrors.New(dErrors.CodeDuplicateState,
					"domain is already "+string(latest.NewState))
			}
			if t.OccurredAt.Before(latest.OccurredAt) {
				return dErrors.Wrap(errOutOfOrder, dErrors.CodeInvalidInput,
					"registration out of order: latest is at "+latest.OccurredAt.Format(time.RFC3339))
			}
		}
		// The in-memory tx cannot roll back, so the audit event goes first.
		if err := s.emitInTx(ctx, audit.Event{
			DomainID:    domainID,
			Subject:     domain.FQDN(),
			Action:      string(audit.EventTransitionRecorded),
			Decision:    string(t.NewState),
			EffectiveAt: t.OccurredAt,
		}); err != nil {
			return err
		}
		if err := s.store.AppendRegistration(ctx, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append registration")
		}
		return nil
	})
	if err != nil {
		s.recordRejection(ctx, domain, t, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRecorded("registration")
	}
	return t, nil
}

// SubmitFlag appends a flag transition. Flags carry no alternation rule:
// repeating the same set_to is accepted.
func (s *Service) SubmitFlag(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time, setTo bool, validUntil *time.Time) (*models.FlagTransition, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.submit_flag",
		trace.WithAttributes(
			attribute.String("domain_id", domainID.String()),
			attribute.String("flag_id", flagID.String()),
			attribute.Bool("set_to", setTo),
		))
	defer span.End()
	start := time.Now()

	t, err := s.submitFlag(ctx, domainID, flagID, at, setTo, validUntil)
	if s.metrics != nil {
		s.metrics.ObserveSubmit("flag", start)
	}
	endSpan(span, err)
	return t, err
}

func (s *Service) submitFlag(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time, setTo bool, validUntil *time.Time) (*models.FlagTransition, error) {
	t, err := models.NewFlagTransition(domainID, flagID, at, setTo, validUntil)
	if err != nil {
		return nil, err
	}
	domain, err := s.catalog.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	flag, err := s.catalog.GetFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}

	err = s.tx.Run(ctx, func(ctx context.Context) error {
		if err := s.emitInTx(ctx, audit.Event{
			DomainID:    domainID,
			FlagID:      flagID,
			Subject:     domain.FQDN(),
			Action:      string(audit.EventFlagRecorded),
			Decision:    string(flag.Name) + "=" + strconv.FormatBool(setTo),
			EffectiveAt: t.OccurredAt,
		}); err != nil {
			return err
		}
		if err := s.store.AppendFlag(ctx, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append flag transition")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRecorded("flag")
	}
	return t, nil
}

// RegisteredAt resolves the registration state of domainID at the instant
// at. A domain without registration history is unregistered.
func (s *Service) RegisteredAt(ctx context.Context, domainID id.DomainID, at time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.registered_at",
		trace.WithAttributes(attribute.String("domain_id", domainID.String())))
	defer span.End()

	registered, err := s.registeredAt(ctx, domainID, s.instant(ctx, at))
	endSpan(span, err)
	return registered, err
}

func (s *Service) registeredAt(ctx context.Context, domainID id.DomainID, at time.Time) (bool, error) {
	if _, err := s.catalog.GetDomain(ctx, domainID); err != nil {
		return false, err
	}
	latest, err := s.store.RegistrationAsOf(ctx, domainID, at)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve registration")
	}
	s.countResolution("registration")
	return resolve.RegistrationFromLatest(latest) == models.StateRegistered, nil
}

// FlagActiveAt resolves whether flagID is active for domainID at at. Only
// set_to=true transitions are ranked; a later set_to=false record does not
// end an unbounded window.
func (s *Service) FlagActiveAt(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.flag_active_at",
		trace.WithAttributes(
			attribute.String("domain_id", domainID.String()),
			attribute.String("flag_id", flagID.String()),
		))
	defer span.End()

	active, err := s.flagActiveAt(ctx, domainID, flagID, s.instant(ctx, at))
	endSpan(span, err)
	return active, err
}

func (s *Service) flagActiveAt(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (bool, error) {
	if err := s.checkReferences(ctx, domainID, flagID); err != nil {
		return false, err
	}
	latestSet, err := s.store.LatestFlagSetAsOf(ctx, domainID, flagID, at)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve flag")
	}
	s.countResolution("flag_active")
	return resolve.FlagActiveFromLatestSet(latestSet, at), nil
}

// EverFlagTrue reports whether flagID was ever set true for domainID.
func (s *Service) EverFlagTrue(ctx context.Context, domainID id.DomainID, flagID id.FlagID) (bool, error) {
	if err := s.checkReferences(ctx, domainID, flagID); err != nil {
		return false, err
	}
	ok, err := s.store.HasFlagSet(ctx, domainID, flagID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read flag history")
	}
	s.countResolution("ever_true")
	return ok, nil
}

// Timeline returns the domain's registration and flag transitions merged in
// timestamp order.
func (s *Service) Timeline(ctx context.Context, domainID id.DomainID) ([]models.TimelineEntry, error) {
	if _, err := s.catalog.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}
	regs, err := s.store.RegistrationHistory(ctx, domainID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration history")
	}
	flags, err := s.store.DomainFlagHistory(ctx, domainID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read flag history")
	}
	return resolve.Timeline(regs, flags), nil
}

// RegistrationHistory returns the registration transitions of a domain in
// timestamp order.
func (s *Service) RegistrationHistory(ctx context.Context, domainID id.DomainID) ([]models.RegistrationTransition, error) {
	if _, err := s.catalog.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}
	history, err := s.store.RegistrationHistory(ctx, domainID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration history")
	}
	return history, nil
}

// RegisteredBatch resolves registration for many domains at once. Unknown
// ids resolve to false; callers pass ids taken from the catalog.
func (s *Service) RegisteredBatch(ctx context.Context, ids []id.DomainID, at time.Time) (map[id.DomainID]bool, error) {
	latest, err := s.store.RegistrationAsOfBatch(ctx, ids, s.instant(ctx, at))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve registrations")
	}
	out := make(map[id.DomainID]bool, len(ids))
	for _, domainID := range ids {
		t, ok := latest[domainID]
		out[domainID] = ok && t.NewState == models.StateRegistered
	}
	s.countResolution("registration_batch")
	return out, nil
}

// FlagActiveBatch resolves one flag for many domains at the same instant.
func (s *Service) FlagActiveBatch(ctx context.Context, ids []id.DomainID, flagID id.FlagID, at time.Time) (map[id.DomainID]bool, error) {
	at = s.instant(ctx, at)
	latest, err := s.store.LatestFlagSetAsOfBatch(ctx, ids, flagID, at)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve flags")
	}
	out := make(map[id.DomainID]bool, len(ids))
	for _, domainID := range ids {
		var set *models.FlagTransition
		if t, ok := latest[domainID]; ok {
			set = &t
		}
		out[domainID] = resolve.FlagActiveFromLatestSet(set, at)
	}
	s.countResolution("flag_active_batch")
	return out, nil
}

// DomainsEverFlagged lists domains with at least one set_to=true transition
// for flagID.
func (s *Service) DomainsEverFlagged(ctx context.Context, flagID id.FlagID) ([]id.DomainID, error) {
	ids, err := s.store.DomainsWithFlagSet(ctx, flagID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flagged domains")
	}
	return ids, nil
}

func (s *Service) checkReferences(ctx context.Context, domainID id.DomainID, flagID id.FlagID) error {
	if _, err := s.catalog.GetDomain(ctx, domainID); err != nil {
		return err
	}
	_, err := s.catalog.GetFlag(ctx, flagID)
	return err
}

// instant defaults a zero query time to the request clock.
func (s *Service) instant(ctx context.Context, at time.Time) time.Time {
	if at.IsZero() {
		return requestcontext.Now(ctx)
	}
	return at.UTC()
}

func (s *Service) countResolution(query string) {
	if s.metrics != nil {
		s.metrics.IncrementResolution(query)
	}
}

// recordRejection audits refused registrations. It runs after the lock
// scope so the rejection is kept even though the transaction rolled back.
func (s *Service) recordRejection(ctx context.Context, domain *catalogmodels.Domain, t *models.RegistrationTransition, err error) {
	var action audit.AuditEvent
	var reason string
	switch {
	case dErrors.HasCode(err, dErrors.CodeDuplicateState):
		action, reason = audit.EventDuplicateStateRejected, "duplicate_state"
	case errors.Is(err, errOutOfOrder):
		action, reason = audit.EventOutOfOrderRejected, "out_of_order"
	default:
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementRejected(reason)
	}
	event := audit.Event{
		DomainID:    domain.ID,
		Subject:     domain.FQDN(),
		Action:      string(action),
		Decision:    string(t.NewState),
		Reason:      dErrors.MessageOf(err),
		EffectiveAt: t.OccurredAt,
	}
	if emitErr := s.emitInTx(ctx, event); emitErr != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event.Action, "error", emitErr)
	}
}

// emitInTx logs and publishes event. The publisher writes through the
// context's transaction when one is present. Callers emit before appending,
// so a failure leaves the log untouched in either store.
func (s *Service) emitInTx(ctx context.Context, event audit.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"domain_id", event.DomainID.String(),
		"subject", event.Subject,
		"decision", event.Decision,
		"effective_at", event.EffectiveAt,
		"request_id", event.RequestID,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
