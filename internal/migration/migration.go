package migration

import (
	"context"

	"github.com/AllenThomasDev/causal-webapp/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run ledger schema
type MigrationRunner struct {
	version string
}

var _ Migrator = (*MigrationRunner)(nil)

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every statement is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createCausalRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create causal_runs table")
	}

	if err := r.createLLMUsageTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create llm_usage table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createCausalRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS causal_runs (
			id UUID PRIMARY KEY,
			snapshot_id UUID NOT NULL,
			dataset_name VARCHAR(255) NOT NULL,
			treatment VARCHAR(255) NOT NULL,
			outcome VARCHAR(255) NOT NULL,
			confounders TEXT[] NOT NULL DEFAULT '{}',
			method VARCHAR(100) NOT NULL,
			estimate DOUBLE PRECISION NOT NULL,
			partial_identification BOOLEAN NOT NULL DEFAULT false,
			refutations JSONB,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createLLMUsageTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS llm_usage (
			id UUID PRIMARY KEY,
			snapshot_id UUID,
			provider VARCHAR(50) NOT NULL,
			model VARCHAR(100) NOT NULL,
			operation_type VARCHAR(100) NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_causal_runs_snapshot ON causal_runs(snapshot_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_llm_usage_snapshot ON llm_usage(snapshot_id);
		CREATE INDEX IF NOT EXISTS idx_llm_usage_operation ON llm_usage(operation_type, created_at DESC)
	`)
	return err
}
