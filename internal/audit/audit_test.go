package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"query-orchestrator/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorder_RejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, name := range []string{"", "query_audit; DROP TABLE x", "1audit", "a-b"} {
		_, err := NewRecorder(db, name, time.Second, logger.NewTestLogger(t))
		assert.ErrorIs(t, err, ErrInvalidTable, name)
	}
}

func TestRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO query_audit`).
		WithArgs(
			sqlmock.AnyArg(), // id
			"req-1",
			"both",
			"dependent",
			"ok",
			"",
			[]byte(`["analytics","seo"]`),
			2,
			int64(1500),
			created,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r, err := NewRecorder(db, "query_audit", time.Second, logger.NewTestLogger(t))
	require.NoError(t, err)

	err = r.Record(context.Background(), Entry{
		RequestID:  "req-1",
		Intent:     "both",
		Execution:  "dependent",
		Outcome:    "ok",
		AgentsUsed: []string{"analytics", "seo"},
		Warnings:   2,
		Duration:   1500 * time.Millisecond,
		CreatedAt:  created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Record_SurvivesCancelledCaller(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO query_audit`).WillReturnResult(sqlmock.NewResult(1, 1))

	r, err := NewRecorder(db, "query_audit", time.Second, logger.NewTestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Record(ctx, Entry{RequestID: "req-2", Outcome: "STAGE_TIMEOUT", Stage: "execute-agent"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Record_InsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO query_audit`).WillReturnError(errors.New("connection reset"))

	r, err := NewRecorder(db, "query_audit", time.Second, logger.NewTestLogger(t))
	require.NoError(t, err)

	err = r.Record(context.Background(), Entry{RequestID: "req-3", Outcome: "ok"})
	assert.ErrorIs(t, err, ErrInsertFailed)
}

func TestRecorder_EnsureTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS query_audit`).WillReturnResult(sqlmock.NewResult(0, 0))

	r, err := NewRecorder(db, "query_audit", time.Second, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, r.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
