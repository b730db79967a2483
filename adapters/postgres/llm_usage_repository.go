package postgres

import (
	"context"

	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LLMUsageRepositoryImpl implements LLMUsageRepository for PostgreSQL
type LLMUsageRepositoryImpl struct {
	db *sqlx.DB
}

// NewLLMUsageRepository creates a new PostgreSQL LLM usage repository
func NewLLMUsageRepository(db *sqlx.DB) ports.LLMUsageRepository {
	return &LLMUsageRepositoryImpl{db: db}
}

// RecordUsage records LLM usage for an API call
func (r *LLMUsageRepositoryImpl) RecordUsage(ctx context.Context, usage *models.LLMUsage) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_usage (
			id, snapshot_id, provider, model, operation_type,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (
			:id, :snapshot_id, :provider, :model, :operation_type,
			:prompt_tokens, :completion_tokens, :total_tokens, :created_at
		)
	`, usage)
	return err
}

// GetSnapshotUsage retrieves the usage records of one snapshot, newest first
func (r *LLMUsageRepositoryImpl) GetSnapshotUsage(ctx context.Context, snapshotID uuid.UUID) ([]*models.LLMUsage, error) {
	var usages []*models.LLMUsage
	err := r.db.SelectContext(ctx, &usages, `
		SELECT id, snapshot_id, provider, model, operation_type,
		       prompt_tokens, completion_tokens, total_tokens, created_at
		FROM llm_usage
		WHERE snapshot_id = $1
		ORDER BY created_at DESC
	`, snapshotID)
	return usages, err
}

// GetTotalTokens returns total token usage per operation type
func (r *LLMUsageRepositoryImpl) GetTotalTokens(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT operation_type, COALESCE(SUM(total_tokens), 0) AS total_tokens
		FROM llm_usage
		GROUP BY operation_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var op string
		var total int
		if err := rows.Scan(&op, &total); err != nil {
			return nil, err
		}
		totals[op] = total
	}
	return totals, rows.Err()
}
