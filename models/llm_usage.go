package models

import (
	"time"

	"github.com/google/uuid"
)

// LLMUsage represents a single LLM API call's token usage
type LLMUsage struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	SnapshotID       *uuid.UUID `json:"snapshot_id,omitempty" db:"snapshot_id"`
	Provider         string     `json:"provider" db:"provider"`             // 'openai', ...
	Model            string     `json:"model" db:"model"`                   // 'gpt-4o-mini', ...
	OperationType    string     `json:"operation_type" db:"operation_type"` // see Op* constants
	PromptTokens     int        `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens" db:"total_tokens"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Operation types for categorization
const (
	OpMetadataNormalization = "metadata_normalization"
	OpRoleInference         = "role_inference"
	OpQuestionSynthesis     = "question_synthesis"
	OpResultExplanation     = "result_explanation"
)
