package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

// fakeGuardianDB embeds DB so only the methods the guardian touches need
// implementations.
type fakeGuardianDB struct {
	DB
	pingErrs []error // consumed per PingContext call; nil entries succeed
	pings    int
	tx       Tx
	txErr    error
}

func (f *fakeGuardianDB) PingContext(ctx context.Context) error {
	var err error
	if f.pings < len(f.pingErrs) {
		err = f.pingErrs[f.pings]
	}
	f.pings++
	return err
}

func (f *fakeGuardianDB) GetTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.tx, nil
}

type fakeGuardianTx struct {
	open        bool
	rolledBack  bool
	rollbackErr error
}

func (f *fakeGuardianTx) IsOpen() bool { return f.open }

func (f *fakeGuardianTx) Commit(ctx context.Context) error {
	f.open = false
	return nil
}

func (f *fakeGuardianTx) Rollback(ctx context.Context) error {
	if f.rollbackErr != nil {
		return f.rollbackErr
	}
	f.rolledBack = true
	f.open = false
	return nil
}

func (f *fakeGuardianTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (f *fakeGuardianTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (f *fakeGuardianTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (f *fakeGuardianTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func TestGuardian(t *testing.T) {
	ctx := context.Background()

	t.Run("should be a no-op on a healthy session", func(t *testing.T) {
		db := &fakeGuardianDB{}
		guardian := NewGuardian(db, 3, noopLogger())

		err := guardian.EnsureClean(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, db.pings)
	})

	t.Run("should roll back a transaction left open by a failed batch", func(t *testing.T) {
		tx := &fakeGuardianTx{open: true}
		db := &fakeGuardianDB{tx: tx}
		guardian := NewGuardian(db, 3, noopLogger())

		got, err := guardian.Begin(ctx)
		require.NoError(t, err)
		assert.Same(t, tx, got)

		// The batch dies without closing its transaction.
		err = guardian.EnsureClean(ctx)
		require.NoError(t, err)
		assert.True(t, tx.rolledBack)
	})

	t.Run("should hand out a fresh transaction after sweeping the old one", func(t *testing.T) {
		tx := &fakeGuardianTx{open: true}
		db := &fakeGuardianDB{tx: tx}
		guardian := NewGuardian(db, 3, noopLogger())

		_, err := guardian.Begin(ctx)
		require.NoError(t, err)

		_, err = guardian.Begin(ctx)
		require.NoError(t, err)
		assert.True(t, tx.rolledBack)
	})

	t.Run("should recover a broken session once a ping succeeds", func(t *testing.T) {
		db := &fakeGuardianDB{
			pingErrs: []error{errors.New("connection reset"), errors.New("connection reset"), nil},
		}
		guardian := NewGuardian(db, 3, noopLogger())

		err := guardian.EnsureClean(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, db.pings)
	})

	t.Run("should give up after the configured retry count", func(t *testing.T) {
		down := errors.New("connection refused")
		db := &fakeGuardianDB{
			pingErrs: []error{down, down, down},
		}
		guardian := NewGuardian(db, 2, noopLogger())

		err := guardian.EnsureClean(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, down)
		assert.Contains(t, err.Error(), "store unreachable after 2 attempts")
	})

	t.Run("should escalate to recovery when the rollback itself fails", func(t *testing.T) {
		tx := &fakeGuardianTx{open: true, rollbackErr: errors.New("driver: bad connection")}
		db := &fakeGuardianDB{tx: tx}
		guardian := NewGuardian(db, 3, noopLogger())

		_, err := guardian.Begin(ctx)
		require.NoError(t, err)

		err = guardian.EnsureClean(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, db.pings, 2)
	})

	t.Run("should stop retrying when the context is cancelled", func(t *testing.T) {
		down := errors.New("connection refused")
		db := &fakeGuardianDB{
			pingErrs: []error{down, down, down, down},
		}
		guardian := NewGuardian(db, 4, noopLogger())

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := guardian.EnsureClean(cancelCtx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
