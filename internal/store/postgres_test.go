package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher turns a statement into a whitespace-insensitive regex.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateState)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateSent)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewPostgres(t *testing.T) {
	t.Run("ping failure is propagated", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("migration failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateState)).WillReturnError(errors.New("permission denied"))

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		assert.ErrorContains(t, err, "failed to migrate schema")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresState(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row reads as defaults", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLoadState)).WithArgs(stateKey).WillReturnError(pgx.ErrNoRows)

		st, err := s.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, Defaults(), st)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("patch reads then writes the merged document", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLoadState)).WithArgs(stateKey).
			WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow([]byte(`{"sentCount":2,"mode":"auto"}`)))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlSaveState)).
			WithArgs(stateKey, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		st, err := s.Patch(ctx, Patch{SentCount: Ptr(3)})
		require.NoError(t, err)
		assert.Equal(t, 3, st.SentCount)
		assert.Equal(t, ModeAuto, st.Mode)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("read failure leaves state untouched", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLoadState)).WithArgs(stateKey).WillReturnError(errors.New("connection reset"))

		_, err := s.Patch(ctx, Patch{SentCount: Ptr(3)})
		assert.ErrorContains(t, err, "postgres store: load state")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresDedup(t *testing.T) {
	ctx := context.Background()

	t.Run("record commits an upsert", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()
		s.now = func() time.Time { return time.UnixMilli(42) }

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertKey)).WithArgs("k1", int64(42)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.RecordNow(ctx, "k1"))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("import inserts without overwriting", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertKey)).WithArgs("a", int64(1)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertKey)).WithArgs("b", int64(2)).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.Import(ctx, map[string]int64{"b": 2, "a": 1}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("failed write rolls back", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		core, logs := observer.New(zapcore.ErrorLevel)

		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateState)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateSent)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		s, err := NewPostgres(ctx, mockPool, zap.New(core))
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertKey)).WithArgs("k1", pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		err = s.RecordNow(ctx, "k1")
		assert.ErrorContains(t, err, "disk full")
		assert.Zero(t, logs.Len(), "a clean rollback logs nothing")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("has and sent map", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlHasKey)).WithArgs("k1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectKeys)).
			WillReturnRows(pgxmock.NewRows([]string{"key", "sent_at"}).AddRow("k1", int64(10)).AddRow("k2", int64(20)))

		ok, err := s.Has(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)

		m, err := s.SentMap(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"k1": 10, "k2": 20}, m)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("clear all deletes and resets counters", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteKeys)).WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLoadState)).WithArgs(stateKey).
			WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow([]byte(`{"sentCount":9,"currentCandidate":"Jane","status":"Sent"}`)))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlSaveState)).WithArgs(stateKey, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		st, err := s.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.SentCount)
		assert.Equal(t, "-", st.CurrentCandidate)
		assert.Equal(t, StatusStopped, st.Status)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
