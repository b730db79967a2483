package estimation

import (
	"fmt"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal/graph"
)

// EstimandNonparametricATE is the only estimand type produced
const EstimandNonparametricATE = "nonparametric-ate"

// IdentifyOptions controls identification
type IdentifyOptions struct {
	// ProceedWhenUnidentifiable returns a partial result with warnings instead of ErrUnidentifiable
	ProceedWhenUnidentifiable bool
}

// IdentificationResult is the backdoor adjustment strategy for one graph
type IdentificationResult struct {
	Treatment     string   `json:"treatment"`
	Outcome       string   `json:"outcome"`
	EstimandType  string   `json:"estimand_type"`
	AdjustmentSet []string `json:"adjustment_set"`
	// Excluded lists declared confounders dropped because the treatment causes them
	Excluded []string `json:"excluded,omitempty"`
	Partial  bool     `json:"partial"`
	Warnings []string `json:"warnings,omitempty"`
}

// Estimand renders the target quantity, e.g. d/d[treat](E[re78|age,educ])
func (r IdentificationResult) Estimand() string {
	if len(r.AdjustmentSet) == 0 {
		return fmt.Sprintf("d/d[%s](E[%s])", r.Treatment, r.Outcome)
	}
	return fmt.Sprintf("d/d[%s](E[%s|%s])", r.Treatment, r.Outcome, strings.Join(r.AdjustmentSet, ","))
}

// String renders a short multi-line description
func (r IdentificationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Estimand type: %s\n", r.EstimandType)
	fmt.Fprintf(&b, "Estimand name: backdoor\n")
	fmt.Fprintf(&b, "Estimand expression: %s\n", r.Estimand())
	fmt.Fprintf(&b, "Estimand assumption: unconfoundedness given {%s}\n", strings.Join(r.AdjustmentSet, ", "))
	if r.Partial {
		b.WriteString("Identification is partial:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

// WithAdjustment returns a copy with extra variables appended to the adjustment set
func (r IdentificationResult) WithAdjustment(extra ...string) IdentificationResult {
	out := r
	out.AdjustmentSet = append(append([]string(nil), r.AdjustmentSet...), extra...)
	return out
}

// Identify derives the backdoor adjustment set: the declared confounders that
// are not descendants of the treatment.
func Identify(g *graph.CausalGraph, opts IdentifyOptions) (IdentificationResult, error) {
	roles := g.Roles()
	result := IdentificationResult{
		Treatment:     g.Treatment(),
		Outcome:       g.Outcome(),
		EstimandType:  EstimandNonparametricATE,
		AdjustmentSet: []string{},
	}

	for _, c := range roles.ConfounderNames() {
		if g.IsDescendant(c, g.Treatment()) {
			result.Excluded = append(result.Excluded, c)
			continue
		}
		result.AdjustmentSet = append(result.AdjustmentSet, c)
	}

	if !g.IsDescendant(g.Outcome(), g.Treatment()) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no directed path from %s to %s", g.Treatment(), g.Outcome()))
	}

	if len(result.Excluded) == 0 {
		return result, nil
	}

	if !opts.ProceedWhenUnidentifiable {
		return IdentificationResult{}, fmt.Errorf("%w: confounders caused by %s: %s",
			core.ErrUnidentifiable, g.Treatment(), strings.Join(result.Excluded, ", "))
	}

	result.Partial = true
	for _, c := range result.Excluded {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s is caused by %s and cannot be adjusted for; the estimate may be biased", c, g.Treatment()))
	}
	return result, nil
}
