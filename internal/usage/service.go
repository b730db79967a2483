package usage

import (
	"context"
	"sync"
	"time"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/google/uuid"
)

type snapshotKey struct{}

// WithSnapshotID tags ctx so recorded usage is attributed to a session snapshot
func WithSnapshotID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, snapshotKey{}, id)
}

// SnapshotIDFrom returns the snapshot tagged by WithSnapshotID
func SnapshotIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(snapshotKey{}).(uuid.UUID)
	return id, ok
}

// Service handles LLM usage tracking and persistence
type Service struct {
	repo      ports.LLMUsageRepository
	logger    *internal.Logger
	baseDelay time.Duration
	wg        sync.WaitGroup
}

var _ ai.CallObserver = (*Service)(nil)

// NewService creates a new usage service
func NewService(repo ports.LLMUsageRepository, logger *internal.Logger) *Service {
	return &Service{repo: repo, logger: internal.OrDefault(logger), baseDelay: 100 * time.Millisecond}
}

// ObserveCall records the usage of a successful collaborator call
func (s *Service) ObserveCall(ctx context.Context, operation string, usage *ports.UsageData, _ time.Duration, err error) {
	if err != nil || usage == nil {
		return
	}
	var snapshotID *uuid.UUID
	if id, ok := SnapshotIDFrom(ctx); ok {
		snapshotID = &id
	}
	_ = s.RecordUsage(snapshotID, operation, usage)
}

// RecordUsage asynchronously records LLM usage for an operation
func (s *Service) RecordUsage(snapshotID *uuid.UUID, operationType string, usage *ports.UsageData) error {
	// Validate usage data
	if usage == nil {
		s.logger.Error("[UsageService] nil usage data provided")
		return nil // Don't fail the caller for tracking issues
	}

	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		s.logger.Error("[UsageService] invalid token counts: %+v", usage)
		return nil
	}

	llmUsage := &models.LLMUsage{
		ID:               uuid.New(),
		SnapshotID:       snapshotID,
		Provider:         usage.Provider,
		Model:            usage.Model,
		OperationType:    operationType,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CreatedAt:        time.Now().UTC(),
	}

	// Async persistence to avoid blocking LLM calls
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.persistWithRetry(llmUsage); err != nil {
			s.logger.Error("[UsageService] failed to persist usage after retries: %v", err)
		}
	}()

	return nil
}

// Flush waits for pending writes
func (s *Service) Flush() {
	s.wg.Wait()
}

// persistWithRetry attempts to persist usage with linear backoff
func (s *Service) persistWithRetry(usage *models.LLMUsage) error {
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = s.repo.RecordUsage(context.Background(), usage); err == nil {
			return nil
		}
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * s.baseDelay)
		}
	}
	return err
}
