package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	txcontext "regwatch/pkg/platform/tx"
)

const defaultLockTimeout = 5 * time.Second

// AdvisoryLockTx serializes registration writers per domain with a
// transaction-scoped PostgreSQL advisory lock. The lock is released on
// commit or rollback.
type AdvisoryLockTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewAdvisoryLockTx(db *sql.DB, timeout time.Duration) *AdvisoryLockTx {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &AdvisoryLockTx{db: db, timeout: timeout}
}

// WithDomainLock runs fn inside a transaction holding the advisory lock for
// domainID. fn receives a context carrying the transaction.
func (t *AdvisoryLockTx) WithDomainLock(ctx context.Context, domainID id.DomainID, fn func(ctx context.Context) error) error {
	return t.run(ctx, func(txCtx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(txCtx, `SELECT pg_advisory_xact_lock($1)`, LockKey(domainID)); err != nil {
			if ctxErr := txCtx.Err(); ctxErr != nil {
				return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "timed out waiting for domain lock")
			}
			return fmt.Errorf("acquire domain lock: %w", err)
		}
		return fn(txCtx)
	})
}

// Run executes fn in a plain transaction with no advisory lock.
func (t *AdvisoryLockTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, func(txCtx context.Context, _ *sql.Tx) error {
		return fn(txCtx)
	})
}

func (t *AdvisoryLockTx) run(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockKey maps a domain id onto the bigint advisory lock space.
func LockKey(domainID id.DomainID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(domainID[:])
	return int64(h.Sum64())
}
