package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	id "regwatch/pkg/domain"
	audit "regwatch/pkg/platform/audit"
	txcontext "regwatch/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store. Each event is written to audit_events for
// querying and to the outbox for Kafka publishing. Both inserts join the
// caller's transaction when one is present in the context.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	DomainID    string `json:"domain_id,omitempty"`
	FlagID      string `json:"flag_id,omitempty"`
	Subject     string `json:"subject"`
	Action      string `json:"action"`
	Decision    string `json:"decision,omitempty"`
	Reason      string `json:"reason,omitempty"`
	EffectiveAt string `json:"effective_at,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.DomainID.IsNil() {
		payload.DomainID = event.DomainID.String()
	}
	if !event.FlagID.IsNil() {
		payload.FlagID = event.FlagID.String()
	}
	if !event.EffectiveAt.IsZero() {
		payload.EffectiveAt = event.EffectiveAt.UTC().Format(time.RFC3339Nano)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	exec := txcontext.ExecutorFrom(ctx, s.db)

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, timestamp, domain_id, flag_id, subject, action,
			decision, reason, effective_at, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		eventID,
		string(category),
		event.Timestamp,
		nullableUUID(uuid.UUID(event.DomainID)),
		nullableUUID(uuid.UUID(event.FlagID)),
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		nullableTime(event.EffectiveAt),
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.DomainID.IsNil() {
		aggregateType = "domain"
		aggregateID = event.DomainID.String()
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *Store) ListByDomain(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, domain_id, flag_id, subject, action,
			   decision, reason, effective_at, request_id, actor_id
		FROM audit_events
		WHERE domain_id = $1
		ORDER BY timestamp ASC, id ASC
	`, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, domain_id, flag_id, subject, action,
			   decision, reason, effective_at, request_id, actor_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category    string
			event       audit.Event
			domainID    *uuid.UUID
			flagID      *uuid.UUID
			effectiveAt sql.NullTime
		)

		err := rows.Scan(
			&category,
			&event.Timestamp,
			&domainID,
			&flagID,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&effectiveAt,
			&event.RequestID,
			&event.ActorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if domainID != nil {
			event.DomainID = id.DomainID(*domainID)
		}
		if flagID != nil {
			event.FlagID = id.FlagID(*flagID)
		}
		if effectiveAt.Valid {
			event.EffectiveAt = effectiveAt.Time
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
