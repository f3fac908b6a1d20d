package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		assert.NotNil(t, ExtractTx(ctx))
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		outer := ExtractTx(ctx)
		return tm.WithTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, outer, ExtractTx(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.Panics(t, func() {
		_ = tm.WithTransaction(context.Background(), func(ctx context.Context) error { panic("bad") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RetriesDeadlocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tm := NewTransactionManager(db)
	tm.backoff = time.Millisecond

	attempts := 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("failed to insert cell: %w", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error { return errors.New("syntax") })
	assert.EqualError(t, err, "syntax")

	attempts = 0
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		attempts++
		return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, isDeadlock(&mysql.MySQLError{Number: 1213}))
	assert.True(t, isDeadlock(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1205})))
	assert.True(t, isDeadlock(errors.New("[tikv:9007]Write conflict, txnStartTS is stale, deadlock")))
	assert.False(t, isDeadlock(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isDeadlock(errors.New("Error 1205")))
	assert.False(t, isDeadlock(nil))
}
