package postgres

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager for Postgres (pgx).
// It begins a transaction, invokes the callback, and commits/rolls back.
// The tx handle is passed to the callback as pgx.Tx.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err // rollback in defer
	}
	return tx.Commit(ctx)
}

// WithUserLock serializes read-modify-write sequences for one user by taking
// pg_advisory_xact_lock on a hash of the user id inside the transaction. The
// lock releases with the transaction; other users are unaffected.
func (m *TxManager) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	return m.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		pgtx := tx.(pgx.Tx)
		if _, err := pgtx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID)); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}
