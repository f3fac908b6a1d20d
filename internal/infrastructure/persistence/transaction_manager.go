package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQL/TiDB lock conflicts worth a retry
const (
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

type txContextKey struct{}

// Executor is the subset of *sql.DB and *sql.Tx used by repositories
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager runs units of work in a transaction carried on the
// context. Lock conflicts restart the whole unit.
type TransactionManager struct {
	db       *sql.DB
	attempts int
	backoff  time.Duration
}

// NewTransactionManager creates a TransactionManager making up to three
// attempts per unit of work
func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db, attempts: 3, backoff: 100 * time.Millisecond}
}

// WithTransaction executes fn within a transaction on the ctx passed to fn.
// A nested call joins the outer transaction. fn is rolled back when it
// returns an error or panics, and is run again from the start on a
// deadlock, so it must not have effects outside the transaction.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ExtractTx(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt < tm.attempts; attempt++ {
		if attempt > 0 {
			wait := tm.backoff << uint(attempt-1)
			zap.L().Warn("🔁 Retrying transaction after lock conflict", zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = tm.run(ctx, fn); err == nil || !isDeadlock(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", tm.attempts, err)
}

func (tm *TransactionManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(InjectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InjectTx stores tx on ctx
func InjectTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// ExtractTx returns the transaction on ctx, if any
func ExtractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executor returns the transaction on ctx, or db
func executor(ctx context.Context, db *sql.DB) Executor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return db
}

func isDeadlock(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTimeout
	}
	// TiDB reports some write conflicts only in the message
	return strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
