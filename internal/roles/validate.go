package roles

import (
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// Validate resolves a proposal against the dataset columns. Names are trimmed
// and matched exactly. Every unknown name is reported at once; duplicate
// confounders collapse to their first occurrence.
func Validate(p causal.RoleProposal, ds *dataset.Dataset) (causal.RoleAssignment, error) {
	outcome := strings.TrimSpace(p.Outcome)
	treatment := strings.TrimSpace(p.Treatment)
	if outcome == "" {
		return causal.RoleAssignment{}, core.NewInsufficientRolesError("no outcome column selected")
	}
	if treatment == "" {
		return causal.RoleAssignment{}, core.NewInsufficientRolesError("no treatment column selected")
	}

	confounders := make([]string, 0, len(p.Confounders))
	seen := make(map[string]struct{}, len(p.Confounders))
	for _, c := range p.Confounders {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		confounders = append(confounders, c)
	}

	var unknown []string
	reported := make(map[string]struct{})
	for _, name := range append([]string{outcome, treatment}, confounders...) {
		if ds.Has(name) {
			continue
		}
		if _, ok := reported[name]; ok {
			continue
		}
		reported[name] = struct{}{}
		unknown = append(unknown, name)
	}
	if len(unknown) > 0 {
		return causal.RoleAssignment{}, core.NewUnknownColumnError(unknown)
	}

	if outcome == treatment {
		return causal.RoleAssignment{}, core.NewRoleConflictError(outcome, "outcome", "treatment")
	}
	for _, c := range confounders {
		switch c {
		case outcome:
			return causal.RoleAssignment{}, core.NewRoleConflictError(c, "outcome", "confounder")
		case treatment:
			return causal.RoleAssignment{}, core.NewRoleConflictError(c, "treatment", "confounder")
		}
	}

	assignment := causal.RoleAssignment{
		Outcome:     ref(ds, outcome),
		Treatment:   ref(ds, treatment),
		Confounders: make([]causal.ColumnRef, len(confounders)),
	}
	for i, c := range confounders {
		assignment.Confounders[i] = ref(ds, c)
	}
	return assignment, nil
}

func ref(ds *dataset.Dataset, name string) causal.ColumnRef {
	idx, _ := ds.ColumnIndex(name)
	col, _ := ds.Column(name)
	return causal.ColumnRef{Name: name, Index: idx, Kind: col.Kind}
}
