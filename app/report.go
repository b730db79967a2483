package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
	"github.com/AllenThomasDev/causal-webapp/internal/explain"
	"github.com/AllenThomasDev/causal-webapp/internal/graph"
	"github.com/AllenThomasDev/causal-webapp/internal/questions"
	"github.com/AllenThomasDev/causal-webapp/internal/refute"
	"github.com/AllenThomasDev/causal-webapp/models"

	"github.com/google/uuid"
)

// Report collects every stage result of one pipeline run
type Report struct {
	SnapshotID       uuid.UUID
	Dataset          string
	Metadata         causal.Metadata
	MetadataErr      error
	Questions        questions.Result
	Roles            causal.RoleAssignment
	Graph            *graph.CausalGraph
	Identification   estimation.IdentificationResult
	Estimate         *estimation.EffectEstimate
	Refutations      []refute.RefutationResult
	RefutationErrors map[causal.RefutationMethod]error
	Explanation      explain.Explanation
	Elapsed          time.Duration
}

// Text renders the report for a terminal
func (r *Report) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dataset: %s (snapshot %s)\n", r.Dataset, r.SnapshotID)
	if r.MetadataErr != nil {
		fmt.Fprintf(&b, "Metadata: unavailable (%v)\n", r.MetadataErr)
	}
	fmt.Fprintf(&b, "Roles: %s\n\n", r.Roles)

	b.WriteString("Suggested questions:\n")
	for i, q := range r.Questions.Questions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
	}
	b.WriteString("\n")

	if r.Graph != nil {
		fmt.Fprintf(&b, "Causal graph: %d nodes, %d edges\n", r.Graph.NodeCount(), r.Graph.EdgeCount())
	}
	b.WriteString(r.Identification.String())
	b.WriteString("\n")

	if r.Estimate != nil {
		b.WriteString(r.Estimate.Summary())
		b.WriteString("\n")
		for _, w := range r.Estimate.Diagnostics.Warnings {
			fmt.Fprintf(&b, "warning: %s\n", w)
		}
	}

	for _, ref := range r.Refutations {
		b.WriteString("\n")
		b.WriteString(ref.Summary())
	}
	for m, err := range r.RefutationErrors {
		fmt.Fprintf(&b, "\nRefute: %s failed: %v\n", refute.Describe(m), err)
	}

	if r.Explanation.Markdown != "" {
		b.WriteString("\n")
		b.WriteString(r.Explanation.Markdown)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCompleted in %v\n", r.Elapsed.Round(time.Millisecond))
	return b.String()
}

// Record converts the report into a ledger row
func (r *Report) Record() *models.RunRecord {
	refutations := make(models.JSONBMap, len(r.Refutations))
	for _, ref := range r.Refutations {
		refutations[string(ref.Method)] = map[string]interface{}{
			"new_effect": ref.NewEffect,
			"p_value":    ref.PValue,
			"robust":     ref.Robust,
		}
	}

	run := &models.RunRecord{
		ID:            core.NewRunID().UUID(),
		SnapshotID:    r.SnapshotID,
		DatasetName:   r.Dataset,
		Treatment:     r.Identification.Treatment,
		Outcome:       r.Identification.Outcome,
		Confounders:   r.Identification.AdjustmentSet,
		PartialIdent:  r.Identification.Partial,
		Refutations:   refutations,
		ElapsedMillis: r.Elapsed.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if r.Estimate != nil {
		run.Method = string(r.Estimate.Method)
		run.Estimate = r.Estimate.Value
	}
	return run
}

// record writes the run to the ledger when one is configured. Ledger failures are logged only.
func (a *Analysis) record(ctx context.Context, report *Report) {
	if a.svc.runs == nil {
		return
	}
	if err := a.svc.runs.RecordRun(ctx, report.Record()); err != nil {
		a.svc.logger.Warn("[Analysis] Failed to record run for snapshot %s: %v", report.SnapshotID, err)
	}
}
