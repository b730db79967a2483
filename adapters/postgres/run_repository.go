package postgres

import (
	"context"

	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// RecordRun stores a run summary
func (r *RunRepositoryImpl) RecordRun(ctx context.Context, run *models.RunRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO causal_runs (
			id, snapshot_id, dataset_name, treatment, outcome, confounders,
			method, estimate, partial_identification, refutations, elapsed_ms, created_at
		) VALUES (
			:id, :snapshot_id, :dataset_name, :treatment, :outcome, :confounders,
			:method, :estimate, :partial_identification, :refutations, :elapsed_ms, :created_at
		)
	`, run)
	return err
}

// ListRuns returns the newest runs first, optionally filtered by snapshot
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, snapshotID string, limit int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []*models.RunRecord
	if snapshotID == "" {
		err := r.db.SelectContext(ctx, &runs, `
			SELECT id, snapshot_id, dataset_name, treatment, outcome, confounders,
			       method, estimate, partial_identification, refutations, elapsed_ms, created_at
			FROM causal_runs
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
		return runs, err
	}

	id, err := uuid.Parse(snapshotID)
	if err != nil {
		return nil, err
	}
	err = r.db.SelectContext(ctx, &runs, `
		SELECT id, snapshot_id, dataset_name, treatment, outcome, confounders,
		       method, estimate, partial_identification, refutations, elapsed_ms, created_at
		FROM causal_runs
		WHERE snapshot_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
	return runs, err
}
