package roles

import (
	"fmt"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
)

const replyShape = `{"outcome": s|[s], "treatment": s|[s], "confounders": s|[s,...]}`

// keyAliases maps every accepted reply key onto its role
var keyAliases = map[string]causal.Role{
	"outcome":               causal.RoleOutcome,
	"outcome_variable":      causal.RoleOutcome,
	"treatment":             causal.RoleTreatment,
	"treatment_variable":    causal.RoleTreatment,
	"confounders":           causal.RoleConfounder,
	"confounders_variables": causal.RoleConfounder,
	"confounding_variables": causal.RoleConfounder,
	"common_causes":         causal.RoleConfounder,
}

// ParseProposal decodes a role inference reply. Scalars are coerced to
// one-element lists; outcome and treatment must each name exactly one column.
// A missing confounders key means no confounders.
func ParseProposal(content string) (causal.RoleProposal, error) {
	decoded, err := ai.DecodeJSON[map[string]interface{}](content)
	if err != nil {
		return causal.RoleProposal{}, err
	}
	return proposalFrom(*decoded)
}

func proposalFrom(decoded map[string]interface{}) (causal.RoleProposal, error) {
	if decoded == nil {
		return causal.RoleProposal{}, core.NewMalformedResponseError(replyShape, "reply is null")
	}

	byRole := make(map[causal.Role][]string, 3)
	seenKey := make(map[causal.Role]string, 3)
	for key, value := range decoded {
		role, ok := keyAliases[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		if prev, dup := seenKey[role]; dup {
			return causal.RoleProposal{}, core.NewMalformedResponseError(replyShape,
				fmt.Sprintf("both %q and %q name the %s", prev, key, role))
		}
		seenKey[role] = key

		names, err := asStringList(value)
		if err != nil {
			return causal.RoleProposal{}, core.NewMalformedResponseError(replyShape, fmt.Sprintf("%s: %v", key, err))
		}
		byRole[role] = names
	}

	outcome, err := single(byRole, seenKey, causal.RoleOutcome)
	if err != nil {
		return causal.RoleProposal{}, err
	}
	treatment, err := single(byRole, seenKey, causal.RoleTreatment)
	if err != nil {
		return causal.RoleProposal{}, err
	}

	confounders := byRole[causal.RoleConfounder]
	if confounders == nil {
		confounders = []string{}
	}
	return causal.RoleProposal{Outcome: outcome, Treatment: treatment, Confounders: confounders}, nil
}

func single(byRole map[causal.Role][]string, keys map[causal.Role]string, role causal.Role) (string, error) {
	names, ok := byRole[role]
	if !ok {
		return "", core.NewMalformedResponseError(replyShape, fmt.Sprintf("missing %s", role))
	}
	if len(names) != 1 {
		return "", core.NewMalformedResponseError(replyShape,
			fmt.Sprintf("%s must name exactly one column, got %d", keys[role], len(names)))
	}
	return names[0], nil
}

func asStringList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("value is %T, not a string or list", v)
	}
}
