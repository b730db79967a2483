package ports

import (
	"context"

	"github.com/AllenThomasDev/causal-webapp/models"
)

// LLMUsageRepository persists token usage of text-generation calls
type LLMUsageRepository interface {
	RecordUsage(ctx context.Context, usage *models.LLMUsage) error
}

// RunRepository persists pipeline run summaries
type RunRepository interface {
	RecordRun(ctx context.Context, run *models.RunRecord) error
	ListRuns(ctx context.Context, snapshotID string, limit int) ([]*models.RunRecord, error)
}
