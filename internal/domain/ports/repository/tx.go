package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Repository methods accept a `tx Tx` executor so use cases can compose
// multi-row status changes atomically without leaking driver types through
// their own interfaces. The concrete type of `tx` is infra-defined
// (pgx.Tx for Postgres); repositories MUST gracefully accept nil
// (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
