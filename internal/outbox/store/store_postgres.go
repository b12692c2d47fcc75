package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"regwatch/internal/outbox/models"
)

// PostgresStore relays rows written by the audit store. Batches are claimed
// with FOR UPDATE SKIP LOCKED so several relays can run against one database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ProcessBatch claims up to limit unpublished entries in creation order and
// hands them to fn inside one transaction. Entries are marked published when
// fn succeeds; otherwise only their attempt counter moves and fn's error is
// returned.
func (s *PostgresStore) ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.Entry) error) (n int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entries, err := claim(ctx, tx, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, tx.Commit()
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.String()
	}

	if fnErr := fn(ctx, entries); fnErr != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET attempts = attempts + 1 WHERE id = ANY($1::uuid[])`,
			pq.Array(ids)); err != nil {
			return 0, errors.Join(fnErr, fmt.Errorf("record outbox attempt: %w", err))
		}
		if err := tx.Commit(); err != nil {
			return 0, errors.Join(fnErr, fmt.Errorf("commit outbox attempt: %w", err))
		}
		return 0, fnErr
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = $2, attempts = attempts + 1 WHERE id = ANY($1::uuid[])`,
		pq.Array(ids), time.Now()); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return len(entries), nil
}

// Pending counts entries not yet published.
func (s *PostgresStore) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}

func claim(ctx context.Context, tx *sql.Tx, limit int) ([]models.Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, published_at, attempts
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var (
			e           models.Entry
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType,
			&e.Payload, &e.CreatedAt, &publishedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if publishedAt.Valid {
			e.PublishedAt = &publishedAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox batch: %w", err)
	}
	return entries, nil
}
