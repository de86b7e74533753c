package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	// DBConnKey carries a dedicated *pgxpool.Conn through a request context.
	DBConnKey contextKey = "db_conn"
	// DBTxKey carries an open pgx.Tx through a request context so that
	// repositories called within the transaction join it transparently.
	DBTxKey contextKey = "db_tx"
)

// ConnFromContext retrieves a dedicated database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves an open transaction from context.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction and returns a derived context carrying it.
// Repositories that consult TxFromContext will execute inside the
// transaction. The caller owns Commit/Rollback on the returned tx.
// If the context already carries a transaction, that transaction and the
// original context are returned unchanged so nested calls share one unit
// of work.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return ctx, tx, nil
	}

	var tx pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		tx, err = conn.Begin(ctx)
	} else {
		tx, err = pool.Begin(ctx)
	}
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}

	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. When the context already carries a
// transaction, fn joins it and commit/rollback is left to the outer owner.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	joined := TxFromContext(ctx) != nil

	txCtx, tx, err := WithTx(ctx, pool)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if !joined {
			_ = tx.Rollback(ctx)
		}
		return err
	}

	if joined {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
