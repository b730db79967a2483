package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreatesLedgerSchema(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "postgres")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS causal_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS llm_usage").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_causal_runs_snapshot").WillReturnResult(sqlmock.NewResult(0, 0))

	runner := NewRunner()
	require.NoError(t, runner.Run(context.Background(), db))
	assert.Equal(t, "1.0.0", runner.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "postgres")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS causal_runs").WillReturnError(errors.New("permission denied"))

	err = NewRunner().Run(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "causal_runs")
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
