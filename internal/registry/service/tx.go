package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"certregistry/internal/registry/identity"
	dErrors "certregistry/pkg/domain-errors"
	txcontext "certregistry/pkg/platform/tx"
)

// StoreTx is the unit of work around a registry mutation and its audit event.
// Mutations for the same identity never run concurrently inside it.
type StoreTx interface {
	RunInTx(ctx context.Context, key identity.Identity, fn func(ctx context.Context) error) error
}

// Operations on different identities mostly land on different shards, so
// unrelated mutations rarely contend.
const numIdentityShards = 128

const defaultTxTimeout = 5 * time.Second

// shardedStoreTx serializes mutations per identity with a fixed set of
// mutexes. It is the unit of work for the memory and redis backends.
type shardedStoreTx struct {
	shards  [numIdentityShards]sync.Mutex
	timeout time.Duration
}

// NewShardedStoreTx returns an in-process StoreTx. timeout bounds callers that
// arrive without a deadline; zero means the default of five seconds.
func NewShardedStoreTx(timeout time.Duration) StoreTx {
	return &shardedStoreTx{timeout: timeout}
}

func (t *shardedStoreTx) RunInTx(ctx context.Context, key identity.Identity, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	// The wait for the shard may have outlived the caller.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// shardFor hashes the identity with FNV-1a.
func shardFor(key identity.Identity) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range key {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return int(h % numIdentityShards)
}

// sqlStoreTx opens a database transaction and carries it in the context, so
// the certificate store and the outbox commit or roll back together.
// Per-identity ordering comes from the row lock taken by the store.
type sqlStoreTx struct {
	db *sql.DB
}

func NewSQLStoreTx(db *sql.DB) StoreTx {
	return &sqlStoreTx{db: db}
}

func (t *sqlStoreTx) RunInTx(ctx context.Context, _ identity.Identity, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, t.db, fn)
}
