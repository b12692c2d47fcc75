package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"regwatch/internal/catalog/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
	txcontext "regwatch/pkg/platform/tx"
)

const uniqueViolation = "23505"

const domainColumns = `id, name, tld, is_registered, clear_status, created_at, updated_at`

// PostgresStore persists catalog domains in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIfNameAvailable relies on the unique (name, tld) index; a concurrent
// insert of the same name yields sentinel.ErrAlreadyUsed.
func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, d *models.Domain) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO domains (`+domainColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(d.ID), d.Name, d.TLD, d.IsRegistered, d.ClearStatus, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, uuid.UUID(domainID))
	d, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find domain by id: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindByFQDN(ctx context.Context, name, tld string) (*models.Domain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name = $1 AND tld = $2`, name, tld)
	d, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find domain by fqdn: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains ORDER BY (name || '.' || tld) COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) ListByIDs(ctx context.Context, ids []id.DomainID) ([]*models.Domain, error) {
	if len(ids) == 0 {
		return []*models.Domain{}, nil
	}
	raw := make([]string, len(ids))
	for i, domainID := range ids {
		raw[i] = domainID.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = ANY($1::uuid[]) ORDER BY (name || '.' || tld) COLLATE "C"`,
		pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("list domains by ids: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) UpdateSnapshot(ctx context.Context, domainID id.DomainID, snapshot models.Snapshot, now time.Time) (*models.Domain, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		UPDATE domains
		SET is_registered = $2, clear_status = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+domainColumns,
		uuid.UUID(domainID), snapshot.IsRegistered, snapshot.ClearStatus, now)
	d, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update domain snapshot: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM domains`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count domains: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*models.Domain, error) {
	var (
		d        models.Domain
		domainID uuid.UUID
	)
	if err := row.Scan(&domainID, &d.Name, &d.TLD, &d.IsRegistered, &d.ClearStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DomainID(domainID)
	return &d, nil
}

func scanDomains(rows *sql.Rows) ([]*models.Domain, error) {
	out := []*models.Domain{}
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}
