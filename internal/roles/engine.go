package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/models"
)

// Engine proposes outcome, treatment and confounder roles for dataset columns
type Engine struct {
	client *ai.StructuredClient[map[string]interface{}]
	logger *internal.Logger
}

// NewEngine creates a role inference engine backed by the text-generation collaborator
func NewEngine(llm ai.Completer, logger *internal.Logger) *Engine {
	logger = internal.OrDefault(logger)
	return &Engine{client: ai.NewStructuredClient[map[string]interface{}](llm, logger), logger: logger}
}

// Propose asks the collaborator for a role proposal over the given column descriptions.
// The proposal is parsed but not yet checked against a dataset.
func (e *Engine) Propose(ctx context.Context, md causal.Metadata, columns []string) (causal.RoleProposal, error) {
	decoded, err := e.client.GetJSONResponse(ctx, models.OpRoleInference, ai.PromptInferRoles, map[string]string{
		"METADATA": md.String(),
		"COLUMNS":  "- " + strings.Join(columns, "\n- "),
	})
	if err != nil {
		return causal.RoleProposal{}, fmt.Errorf("infer roles: %w", err)
	}

	proposal, err := proposalFrom(*decoded)
	if err != nil {
		e.logger.Warn("[RoleInference] Rejected reply: %v", err)
		return causal.RoleProposal{}, err
	}
	e.logger.Debug("[RoleInference] Proposed treatment=%s outcome=%s confounders=%d",
		proposal.Treatment, proposal.Outcome, len(proposal.Confounders))
	return proposal, nil
}

// InferRoles proposes roles for the columns of ds and validates them
func (e *Engine) InferRoles(ctx context.Context, md causal.Metadata, ds *dataset.Dataset) (causal.RoleAssignment, error) {
	proposal, err := e.Propose(ctx, md, ds.ColumnNames())
	if err != nil {
		return causal.RoleAssignment{}, err
	}
	assignment, err := Validate(proposal, ds)
	if err != nil {
		e.logger.Warn("[RoleInference] Proposal failed validation: %v", err)
		return causal.RoleAssignment{}, err
	}
	e.logger.Info("[RoleInference] Inferred %s", assignment)
	return assignment, nil
}
