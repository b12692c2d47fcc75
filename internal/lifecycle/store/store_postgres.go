package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"regwatch/internal/lifecycle/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
	txcontext "regwatch/pkg/platform/tx"
)

const (
	registrationColumns = `seq, domain_id, occurred_at, new_state, recorded_at`
	flagColumns         = `seq, domain_id, flag_id, occurred_at, set_to, valid_until, recorded_at`
)

// PostgresStore persists transitions in registration_transitions and
// flag_transitions. Every method runs on the transaction in ctx when one
// is present, so reads made under the registration lock see the same
// snapshot as the append that follows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

func (s *PostgresStore) AppendRegistration(ctx context.Context, t *models.RegistrationTransition) error {
	err := s.exec(ctx).QueryRowContext(ctx, `
		INSERT INTO registration_transitions (domain_id, occurred_at, new_state)
		VALUES ($1, $2, $3)
		RETURNING seq, recorded_at
	`, uuid.UUID(t.DomainID), t.OccurredAt, string(t.NewState)).Scan(&t.Seq, &t.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert registration transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestRegistration(ctx context.Context, domainID id.DomainID) (*models.RegistrationTransition, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registration_transitions
		WHERE domain_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, uuid.UUID(domainID))
	return oneRegistration(row, "find latest registration")
}

func (s *PostgresStore) RegistrationHistory(ctx context.Context, domainID id.DomainID) ([]models.RegistrationTransition, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registration_transitions
		WHERE domain_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("query registration history: %w", err)
	}
	defer rows.Close()

	out := []models.RegistrationTransition{}
	for rows.Next() {
		t, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration transition: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RegistrationAsOf(ctx context.Context, domainID id.DomainID, at time.Time) (*models.RegistrationTransition, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registration_transitions
		WHERE domain_id = $1 AND occurred_at <= $2
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, uuid.UUID(domainID), at)
	return oneRegistration(row, "find registration as of")
}

func (s *PostgresStore) RegistrationAsOfBatch(ctx context.Context, ids []id.DomainID, at time.Time) (map[id.DomainID]models.RegistrationTransition, error) {
	out := make(map[id.DomainID]models.RegistrationTransition, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT DISTINCT ON (domain_id) `+registrationColumns+`
		FROM registration_transitions
		WHERE domain_id = ANY($1::uuid[]) AND occurred_at <= $2
		ORDER BY domain_id, occurred_at DESC, seq DESC
	`, pq.Array(domainIDStrings(ids)), at)
	if err != nil {
		return nil, fmt.Errorf("query registrations as of: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration transition: %w", err)
		}
		out[t.DomainID] = *t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations as of: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountRegistrations(ctx context.Context, domainID id.DomainID) (int, error) {
	var n int
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registration_transitions WHERE domain_id = $1`, uuid.UUID(domainID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registration transitions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AppendFlag(ctx context.Context, t *models.FlagTransition) error {
	err := s.exec(ctx).QueryRowContext(ctx, `
		INSERT INTO flag_transitions (domain_id, flag_id, occurred_at, set_to, valid_until)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, recorded_at
	`, uuid.UUID(t.DomainID), uuid.UUID(t.FlagID), t.OccurredAt, t.SetTo, nullTime(t.ValidUntil)).Scan(&t.Seq, &t.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert flag transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestFlag(ctx context.Context, domainID id.DomainID, flagID id.FlagID) (*models.FlagTransition, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+flagColumns+`
		FROM flag_transitions
		WHERE domain_id = $1 AND flag_id = $2
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, uuid.UUID(domainID), uuid.UUID(flagID))
	return oneFlag(row, "find latest flag transition")
}

func (s *PostgresStore) FlagHistory(ctx context.Context, domainID id.DomainID, flagID id.FlagID) ([]models.FlagTransition, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+flagColumns+`
		FROM flag_transitions
		WHERE domain_id = $1 AND flag_id = $2
		ORDER BY occurred_at ASC, seq ASC
	`, uuid.UUID(domainID), uuid.UUID(flagID))
	if err != nil {
		return nil, fmt.Errorf("query flag history: %w", err)
	}
	defer rows.Close()
	return scanFlags(rows)
}

func (s *PostgresStore) DomainFlagHistory(ctx context.Context, domainID id.DomainID) ([]models.FlagTransition, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+flagColumns+`
		FROM flag_transitions
		WHERE domain_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("query domain flag history: %w", err)
	}
	defer rows.Close()
	return scanFlags(rows)
}

func (s *PostgresStore) LatestFlagSetAsOf(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (*models.FlagTransition, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+flagColumns+`
		FROM flag_transitions
		WHERE domain_id = $1 AND flag_id = $2 AND set_to AND occurred_at <= $3
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, uuid.UUID(domainID), uuid.UUID(flagID), at)
	return oneFlag(row, "find latest flag set as of")
}

func (s *PostgresStore) LatestFlagSetAsOfBatch(ctx context.Context, ids []id.DomainID, flagID id.FlagID, at time.Time) (map[id.DomainID]models.FlagTransition, error) {
	out := make(map[id.DomainID]models.FlagTransition, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT DISTINCT ON (domain_id) `+flagColumns+`
		FROM flag_transitions
		WHERE domain_id = ANY($1::uuid[]) AND flag_id = $2 AND set_to AND occurred_at <= $3
		ORDER BY domain_id, occurred_at DESC, seq DESC
	`, pq.Array(domainIDStrings(ids)), uuid.UUID(flagID), at)
	if err != nil {
		return nil, fmt.Errorf("query flag sets as of: %w", err)
	}
	defer rows.Close()

	flags, err := scanFlags(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range flags {
		out[t.DomainID] = t
	}
	return out, nil
}

func (s *PostgresStore) HasFlagSet(ctx context.Context, domainID id.DomainID, flagID id.FlagID) (bool, error) {
	var exists bool
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM flag_transitions WHERE domain_id = $1 AND flag_id = $2 AND set_to
		)
	`, uuid.UUID(domainID), uuid.UUID(flagID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check flag set: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) DomainsWithFlagSet(ctx context.Context, flagID id.FlagID) ([]id.DomainID, error) {
	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT DISTINCT domain_id FROM flag_transitions WHERE flag_id = $1 AND set_to`, uuid.UUID(flagID))
	if err != nil {
		return nil, fmt.Errorf("query domains with flag set: %w", err)
	}
	defer rows.Close()

	out := []id.DomainID{}
	for rows.Next() {
		var domainID uuid.UUID
		if err := rows.Scan(&domainID); err != nil {
			return nil, fmt.Errorf("scan domain id: %w", err)
		}
		out = append(out, id.DomainID(domainID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains with flag set: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.RegistrationTransition, error) {
	var (
		t        models.RegistrationTransition
		domainID uuid.UUID
		state    string
	)
	if err := row.Scan(&t.Seq, &domainID, &t.OccurredAt, &state, &t.RecordedAt); err != nil {
		return nil, err
	}
	t.DomainID = id.DomainID(domainID)
	t.NewState = models.RegistrationState(state)
	t.OccurredAt = t.OccurredAt.UTC()
	return &t, nil
}

func oneRegistration(row *sql.Row, op string) (*models.RegistrationTransition, error) {
	t, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func scanFlag(row rowScanner) (*models.FlagTransition, error) {
	var (
		t          models.FlagTransition
		domainID   uuid.UUID
		flagID     uuid.UUID
		validUntil sql.NullTime
	)
	if err := row.Scan(&t.Seq, &domainID, &flagID, &t.OccurredAt, &t.SetTo, &validUntil, &t.RecordedAt); err != nil {
		return nil, err
	}
	t.DomainID = id.DomainID(domainID)
	t.FlagID = id.FlagID(flagID)
	t.OccurredAt = t.OccurredAt.UTC()
	if validUntil.Valid {
		until := validUntil.Time.UTC()
		t.ValidUntil = &until
	}
	return &t, nil
}

func oneFlag(row *sql.Row, op string) (*models.FlagTransition, error) {
	t, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func scanFlags(rows *sql.Rows) ([]models.FlagTransition, error) {
	out := []models.FlagTransition{}
	for rows.Next() {
		t, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flag transition: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flag transitions: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func domainIDStrings(ids []id.DomainID) []string {
	out := make([]string, len(ids))
	for i, domainID := range ids {
		out[i] = domainID.String()
	}
	return out
}
