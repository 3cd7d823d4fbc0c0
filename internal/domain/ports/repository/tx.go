package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle threaded through repository calls.
// Repositories must gracefully accept nil (non-transactional path).
type Tx interface{}

// NoTX marks the non-transactional path explicitly at call sites.
var NoTX Tx

// TransactionManager executes a function inside a database transaction,
// passing the tx handle via the Tx argument. The concrete type is
// infra-defined (pgx.Tx for Postgres). Keep this interface small.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
