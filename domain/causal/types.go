package causal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// Metadata holds free-form key-value facts about a dataset. Values may be empty.
type Metadata map[string]string

// Keys returns the metadata keys in sorted order
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether the metadata carries no facts
func (m Metadata) IsEmpty() bool { return len(m) == 0 }

// String renders the metadata as compact JSON with sorted keys
func (m Metadata) String() string {
	if m == nil {
		return "{}"
	}
	raw, err := json.Marshal(map[string]string(m))
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Role is the closed set of parts a column can play in a causal model
type Role int

const (
	RoleOutcome Role = iota + 1
	RoleTreatment
	RoleConfounder
)

func (r Role) String() string {
	switch r {
	case RoleOutcome:
		return "outcome"
	case RoleTreatment:
		return "treatment"
	case RoleConfounder:
		return "confounder"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ColumnRef is a column name that has been resolved against a dataset
type ColumnRef struct {
	Name  string
	Index int
	Kind  dataset.ColumnKind
}

func (c ColumnRef) String() string { return c.Name }

// RoleProposal is the unvalidated output of role inference
type RoleProposal struct {
	Outcome     string
	Treatment   string
	Confounders []string
}

// RoleAssignment is a validated, disjoint assignment of dataset columns to roles.
// Build one with roles.Validate.
type RoleAssignment struct {
	Outcome     ColumnRef
	Treatment   ColumnRef
	Confounders []ColumnRef
}

// ConfounderNames returns the confounder column names in order
func (a RoleAssignment) ConfounderNames() []string {
	out := make([]string, len(a.Confounders))
	for i, c := range a.Confounders {
		out[i] = c.Name
	}
	return out
}

// RoleOf returns the role a column plays, if any
func (a RoleAssignment) RoleOf(name string) (Role, bool) {
	switch name {
	case a.Outcome.Name:
		return RoleOutcome, true
	case a.Treatment.Name:
		return RoleTreatment, true
	}
	for _, c := range a.Confounders {
		if c.Name == name {
			return RoleConfounder, true
		}
	}
	return 0, false
}

// Proposal converts the assignment back into plain names
func (a RoleAssignment) Proposal() RoleProposal {
	return RoleProposal{
		Outcome:     a.Outcome.Name,
		Treatment:   a.Treatment.Name,
		Confounders: a.ConfounderNames(),
	}
}

func (a RoleAssignment) String() string {
	return fmt.Sprintf("treatment=%s outcome=%s confounders=[%s]",
		a.Treatment.Name, a.Outcome.Name, strings.Join(a.ConfounderNames(), ","))
}

// EstimationMethod names an estimator
type EstimationMethod string

const (
	MethodPropensityScoreWeighting EstimationMethod = "backdoor.propensity_score_weighting"
)

// WeightingScheme selects how inverse propensity weights are formed
type WeightingScheme string

const (
	SchemeIPS           WeightingScheme = "ips_weight"
	SchemeIPSStabilized WeightingScheme = "ips_stabilized_weight"
	SchemeIPSNormalized WeightingScheme = "ips_normalized_weight"
)

// ParseWeightingScheme validates a scheme name
func ParseWeightingScheme(s string) (WeightingScheme, error) {
	switch WeightingScheme(strings.TrimSpace(s)) {
	case SchemeIPS:
		return SchemeIPS, nil
	case SchemeIPSStabilized, "":
		return SchemeIPSStabilized, nil
	case SchemeIPSNormalized:
		return SchemeIPSNormalized, nil
	}
	return "", fmt.Errorf("unknown weighting scheme %q", s)
}

// RefutationMethod names a robustness check
type RefutationMethod string

const (
	RefuteRandomCommonCause RefutationMethod = "random_common_cause"
	RefutePlaceboTreatment  RefutationMethod = "placebo_treatment_refuter"
	RefuteDataSubset        RefutationMethod = "data_subset_refuter"
)

// RefutationMethods lists every supported refuter in display order
func RefutationMethods() []RefutationMethod {
	return []RefutationMethod{RefuteRandomCommonCause, RefutePlaceboTreatment, RefuteDataSubset}
}

// ParseRefutationMethod accepts the canonical names plus the short aliases
// "placebo_treatment" and "data_subset".
func ParseRefutationMethod(s string) (RefutationMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RefuteRandomCommonCause):
		return RefuteRandomCommonCause, true
	case string(RefutePlaceboTreatment), "placebo_treatment":
		return RefutePlaceboTreatment, true
	case string(RefuteDataSubset), "data_subset":
		return RefuteDataSubset, true
	}
	return "", false
}

// VarType is the declared type of a confounder in distribution diagnostics
type VarType string

const (
	VarContinuous VarType = "continuous"
	VarDiscrete   VarType = "discrete"
)

// ParseVarType validates a declared variable type
func ParseVarType(s string) (VarType, error) {
	switch VarType(strings.ToLower(strings.TrimSpace(s))) {
	case VarContinuous:
		return VarContinuous, nil
	case VarDiscrete:
		return VarDiscrete, nil
	}
	return "", fmt.Errorf("unknown variable type %q (want continuous or discrete)", s)
}
