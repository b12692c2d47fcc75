// Package audit records what happened to the catalog and the transition log.
//
// Events are emitted by services after a write is accepted or rejected. The
// PostgreSQL store writes them to an outbox table in the same transaction
// as the write; the outbox worker forwards them to Kafka.
package audit

import (
	"context"
	"time"

	id "regwatch/pkg/domain"
)

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryLifecycle covers accepted transitions. These are the
	// authoritative change feed of the log and are never sampled.
	CategoryLifecycle EventCategory = "lifecycle"

	// CategoryCatalog covers catalog maintenance: domains registered,
	// snapshot fields changed.
	CategoryCatalog EventCategory = "catalog"

	// CategoryRejection covers writes refused by the invariant enforcer.
	CategoryRejection EventCategory = "rejection"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	DomainID  id.DomainID
	// FlagID is set for flag transitions only.
	FlagID id.FlagID
	// Subject is the human-readable domain, e.g. "example.com".
	Subject string
	Action  string
	// Decision is the state written (or refused): "registered",
	// "unregistered", "true", "false".
	Decision string
	Reason   string
	// EffectiveAt is the transition timestamp, distinct from when the event
	// was recorded.
	EffectiveAt time.Time
	RequestID   string
	ActorID     string
}

// AuditEvent names an action.
type AuditEvent string

const (
	EventDomainRegistered       AuditEvent = "domain_registered"
	EventSnapshotUpdated        AuditEvent = "snapshot_updated"
	EventTransitionRecorded     AuditEvent = "transition_recorded"
	EventFlagRecorded           AuditEvent = "flag_recorded"
	EventDuplicateStateRejected AuditEvent = "duplicate_state_rejected"
	EventOutOfOrderRejected     AuditEvent = "out_of_order_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDomainRegistered:       CategoryCatalog,
	EventSnapshotUpdated:        CategoryCatalog,
	EventTransitionRecorded:     CategoryLifecycle,
	EventFlagRecorded:           CategoryLifecycle,
	EventDuplicateStateRejected: CategoryRejection,
	EventOutOfOrderRejected:     CategoryRejection,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryCatalog.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryCatalog
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDomain(ctx context.Context, domainID id.DomainID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
