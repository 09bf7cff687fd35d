package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle passed through repository calls. The
// concrete type is infra-defined (pgx.Tx for Postgres). Repositories MUST
// gracefully accept NoTX (non-transactional path).
type Tx interface{}

// NoTX selects the non-transactional path.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the handle via tx. Keeping the handle opaque means use-case
// interfaces stay free of storage types while repositories can still run
// SELECT ... FOR UPDATE or advisory locks against the same transaction.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error

	// WithUserLock runs fn inside a transaction holding the per-user
	// advisory lock, serializing read-modify-write sequences for one user
	// without blocking any other user.
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error
}
