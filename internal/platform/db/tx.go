package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBTxKey   contextKey = "db_tx"
	DBConnKey contextKey = "db_conn"
)

// TxFromContext retrieves the transaction bound to the context, if any.
// Repositories check this before falling back to their pool so that a
// multi-record write sequence joins the caller's transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ContextWithTx binds a transaction to the context.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// ConnFromContext retrieves a dedicated connection bound to the context,
// if any. Used when a caller needs several statements on the same
// connection without a transaction.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	c, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return c
}

// ContextWithConn binds a dedicated connection to the context.
func ContextWithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// TxRunner runs fn inside a transaction. Everything written through the
// returned context commits together or not at all.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner is the pgx-backed TxRunner used in production.
type PoolTxRunner struct {
	pool *pgxpool.Pool
}

func NewPoolTxRunner(pool *pgxpool.Pool) *PoolTxRunner {
	return &PoolTxRunner{pool: pool}
}

// WithTx begins a transaction, binds it to the context, and runs fn.
// An error from fn rolls the transaction back; serialization and lock
// contention errors are translated so callers can decide to retry.
func (r *PoolTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsSerializationError reports whether err is a Postgres serialization
// failure or lock-contention error that is safe to retry.
func IsSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected, 55P03 lock_not_available
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
