package flag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"regwatch/internal/catalog/models"
	id "regwatch/pkg/domain"
	"regwatch/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists the flag catalog in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, f *models.Flag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flags (id, name) VALUES ($1, $2)`, uuid.UUID(f.ID), string(f.Name))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, flagID id.FlagID) (*models.Flag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM flags WHERE id = $1`, uuid.UUID(flagID))
	f, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flag by id: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name id.FlagName) (*models.Flag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM flags WHERE name = $1`, string(name))
	f, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flag by name: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Flag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM flags ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	out := []*models.Flag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*models.Flag, error) {
	var (
		flagID uuid.UUID
		name   string
	)
	if err := row.Scan(&flagID, &name); err != nil {
		return nil, err
	}
	return &models.Flag{ID: id.FlagID(flagID), Name: id.FlagName(name)}, nil
}
