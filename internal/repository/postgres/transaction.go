package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxFn runs inside one transaction; ctx carries the transaction so
// GetExecutor(ctx, pool) resolves to it automatically.
type TxFn func(ctx context.Context) error

// TransactionManager runs a TxFn inside a single pgx transaction;
// repository methods called with the ctx handed to fn join it through
// GetExecutor. Neither the Request Pipeline nor the Migration
// Orchestrator runs its calls through one.
type TransactionManager struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTransactionManager returns a TransactionManager over pool.
func NewTransactionManager(pool *pgxpool.Pool, logger *slog.Logger) *TransactionManager {
	return &TransactionManager{pool: pool, logger: logger}
}

// ExecTx begins a transaction, stores it in ctx via SetTx, runs fn, and
// commits on success. The deferred rollback is a no-op once committed.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn TxFn) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			if tm.logger != nil {
				tm.logger.Warn("transaction rollback failed", "error", err)
			}
		}
	}()

	if err := fn(SetTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
