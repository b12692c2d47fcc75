package service

import (
	"context"
	"hash/fnv"
	"time"

	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

// RegistrationTx is the mutual-exclusion boundary around check-then-append.
// WithDomainLock serializes callers that share a domain; Run only provides
// a transaction (PostgreSQL) or nothing (memory).
type RegistrationTx interface {
	WithDomainLock(ctx context.Context, domainID id.DomainID, fn func(ctx context.Context) error) error
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// numRegistrationShards spreads domains over independent locks so writers to
// unrelated domains rarely contend.
const numRegistrationShards = 128

const defaultRegistrationTxTimeout = 5 * time.Second

// ShardedTx is the in-memory RegistrationTx. Each shard is a one-slot
// channel so a waiting writer gives up when its context ends.
type ShardedTx struct {
	shards  [numRegistrationShards]chan struct{}
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultRegistrationTxTimeout
	}
	t := &ShardedTx{timeout: timeout}
	for i := range t.shards {
		t.shards[i] = make(chan struct{}, 1)
	}
	return t
}

func (t *ShardedTx) WithDomainLock(ctx context.Context, domainID id.DomainID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.shards[selectShard(domainID)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for domain lock")
	}
	defer func() { <-shard }()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// Run takes no lock; in-memory appends are already atomic.
func (t *ShardedTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func selectShard(domainID id.DomainID) int {
	h := fnv.New32a()
	_, _ = h.Write(domainID[:])
	return int(h.Sum32() % numRegistrationShards)
}
