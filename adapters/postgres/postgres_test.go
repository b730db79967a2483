package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AllenThomasDev/causal-webapp/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var runColumns = []string{
	"id", "snapshot_id", "dataset_name", "treatment", "outcome", "confounders",
	"method", "estimate", "partial_identification", "refutations", "elapsed_ms", "created_at",
}

func TestRecordRun(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectExec("INSERT INTO causal_runs").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordRun(context.Background(), &models.RunRecord{
		ID:          uuid.New(),
		SnapshotID:  uuid.New(),
		DatasetName: "lalonde",
		Treatment:   "treat",
		Outcome:     "re78",
		Confounders: pq.StringArray{"age", "educ"},
		Method:      "backdoor.propensity_score_weighting",
		Estimate:    1548.2,
		Refutations: models.JSONBMap{"placebo_treatment_refuter": 12.5},
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsFiltersBySnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	snapshot := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(runColumns).AddRow(
		uuid.New().String(), snapshot.String(), "lalonde", "treat", "re78", "{age,educ}",
		"backdoor.propensity_score_weighting", 1548.2, false, []byte(`{"data_subset_refuter": 1500.1}`), int64(320), created,
	)
	mock.ExpectQuery("WHERE snapshot_id = \\$1").WithArgs(snapshot.String(), 5).WillReturnRows(rows)

	runs, err := repo.ListRuns(context.Background(), snapshot.String(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, snapshot, runs[0].SnapshotID)
	assert.Equal(t, pq.StringArray{"age", "educ"}, runs[0].Confounders)
	assert.InDelta(t, 1500.1, runs[0].Refutations["data_subset_refuter"], 1e-9)
	assert.Equal(t, int64(320), runs[0].ElapsedMillis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsDefaultsLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectQuery("ORDER BY created_at DESC").WithArgs(50).WillReturnRows(sqlmock.NewRows(runColumns))

	runs, err := repo.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsRejectsMalformedSnapshot(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := NewRunRepository(db).ListRuns(context.Background(), "not-a-uuid", 10)
	assert.Error(t, err)
}

func TestRecordUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLLMUsageRepository(db)

	mock.ExpectExec("INSERT INTO llm_usage").WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := uuid.New()
	err := repo.RecordUsage(context.Background(), &models.LLMUsage{
		ID:            uuid.New(),
		SnapshotID:    &snapshot,
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		OperationType: models.OpRoleInference,
		TotalTokens:   120,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUsagePropagatesError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO llm_usage").WillReturnError(errors.New("disk full"))

	err := NewLLMUsageRepository(db).RecordUsage(context.Background(), &models.LLMUsage{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestGetTotalTokens(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLLMUsageRepository(db).(*LLMUsageRepositoryImpl)

	mock.ExpectQuery("GROUP BY operation_type").WillReturnRows(
		sqlmock.NewRows([]string{"operation_type", "total_tokens"}).
			AddRow(models.OpRoleInference, 240).
			AddRow(models.OpResultExplanation, 90),
	)

	totals, err := repo.GetTotalTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.OpRoleInference: 240, models.OpResultExplanation: 90}, totals)
}

func TestEnsureSchemaWrapsFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS causal_runs").WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database migration failed")
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestGetSnapshotUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLLMUsageRepository(db).(*LLMUsageRepositoryImpl)

	snapshot := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "snapshot_id", "provider", "model", "operation_type",
		"prompt_tokens", "completion_tokens", "total_tokens", "created_at",
	}).AddRow(uuid.New().String(), snapshot.String(), "openai", "gpt-4o-mini", models.OpQuestionSynthesis, 80, 40, 120, time.Now())
	mock.ExpectQuery("FROM llm_usage").WithArgs(snapshot.String()).WillReturnRows(rows)

	usages, err := repo.GetSnapshotUsage(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	require.NotNil(t, usages[0].SnapshotID)
	assert.Equal(t, snapshot, *usages[0].SnapshotID)
	assert.Equal(t, 120, usages[0].TotalTokens)
}
