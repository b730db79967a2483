package estimation

import (
	"math"
	"sort"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"

	"gonum.org/v1/gonum/stat"
)

// LevelShare compares one level of a discrete confounder across arms
type LevelShare struct {
	Level                string  `json:"level"`
	TreatedShare         float64 `json:"treated_share"`
	ControlShare         float64 `json:"control_share"`
	TreatedWeightedShare float64 `json:"treated_weighted_share"`
	ControlWeightedShare float64 `json:"control_weighted_share"`
}

// ArmSummary describes a continuous confounder within one treatment arm.
// Values are sorted ascending and Weights are aligned with them.
type ArmSummary struct {
	N                 int        `json:"n"`
	Mean              float64    `json:"mean"`
	Std               float64    `json:"std"`
	WeightedMean      float64    `json:"weighted_mean"`
	WeightedStd       float64    `json:"weighted_std"`
	Quartiles         [3]float64 `json:"quartiles"`
	WeightedQuartiles [3]float64 `json:"weighted_quartiles"`
	Values            []float64  `json:"values"`
	Weights           []float64  `json:"weights"`
}

// Distribution is the balance diagnostic for one confounder
type Distribution struct {
	Variable     string         `json:"variable"`
	Type         causal.VarType `json:"type"`
	TreatedLevel string         `json:"treated_level"`
	ControlLevel string         `json:"control_level"`
	Levels       []LevelShare   `json:"levels,omitempty"`
	Treated      *ArmSummary    `json:"treated,omitempty"`
	Control      *ArmSummary    `json:"control,omitempty"`
	SMDBefore    float64        `json:"smd_before"`
	SMDAfter     float64        `json:"smd_after"`
	KSBefore     float64        `json:"ks_before"`
	KSAfter      float64        `json:"ks_after"`
}

// ConfounderDistribution compares the treated and control distributions of an
// adjusted variable before and after weighting.
func ConfounderDistribution(est *EffectEstimate, ds *dataset.Dataset, variable string, varType causal.VarType) (Distribution, error) {
	if !contains(est.AdjustmentSet, variable) {
		return Distribution{}, core.NewUnknownColumnError([]string{variable})
	}
	col, ok := ds.Column(variable)
	if !ok {
		return Distribution{}, core.NewUnknownColumnError([]string{variable})
	}

	diag := est.Diagnostics
	if len(diag.Rows) == 0 || len(diag.Rows) != len(diag.Weights) {
		return Distribution{}, core.NewDegenerateWeightsError("estimate carries no weights")
	}
	for _, r := range diag.Rows {
		if r >= col.Len() {
			return Distribution{}, core.NewUnknownColumnError([]string{variable})
		}
	}

	out := Distribution{
		Variable:     variable,
		Type:         varType,
		TreatedLevel: diag.TreatedLevel,
		ControlLevel: diag.ControlLevel,
	}
	sub := selectColumn(col, diag.Rows)

	switch varType {
	case causal.VarDiscrete:
		out.Levels = levelShares(sub, diag.Treated, diag.Weights)
		return out, nil
	case causal.VarContinuous:
		if !col.Kind.IsNumeric() {
			return Distribution{}, core.NewTypeMismatchError(variable, string(causal.VarContinuous), string(col.Kind))
		}
	default:
		return Distribution{}, core.NewTypeMismatchError(variable, string(varType), string(col.Kind))
	}

	out.Treated = armSummary(sub.Values, diag.Treated, diag.Weights, 1)
	out.Control = armSummary(sub.Values, diag.Treated, diag.Weights, 0)
	out.SMDBefore = smd(out.Treated.Mean, out.Control.Mean, out.Treated.Std, out.Control.Std)
	out.SMDAfter = smd(out.Treated.WeightedMean, out.Control.WeightedMean, out.Treated.WeightedStd, out.Control.WeightedStd)
	out.KSBefore = stat.KolmogorovSmirnov(out.Treated.Values, nil, out.Control.Values, nil)
	out.KSAfter = stat.KolmogorovSmirnov(out.Treated.Values, out.Treated.Weights, out.Control.Values, out.Control.Weights)
	return out, nil
}

func levelShares(col *dataset.Column, treated, weights []float64) []LevelShare {
	levels := col.Levels()
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}

	countT := make([]float64, len(levels))
	countC := make([]float64, len(levels))
	weightT := make([]float64, len(levels))
	weightC := make([]float64, len(levels))
	var nT, nC, wT, wC float64
	for i := range treated {
		j := index[col.Label(i)]
		if treated[i] == 1 {
			countT[j]++
			weightT[j] += weights[i]
			nT++
			wT += weights[i]
		} else {
			countC[j]++
			weightC[j] += weights[i]
			nC++
			wC += weights[i]
		}
	}

	out := make([]LevelShare, len(levels))
	for j, l := range levels {
		out[j] = LevelShare{
			Level:                l,
			TreatedShare:         safeDiv(countT[j], nT),
			ControlShare:         safeDiv(countC[j], nC),
			TreatedWeightedShare: safeDiv(weightT[j], wT),
			ControlWeightedShare: safeDiv(weightC[j], wC),
		}
	}
	return out
}

type weightedValue struct {
	value, weight float64
}

// armSummary rescales the arm's weights to sum to its size, so gonum's
// frequency-weight variance stays defined under normalized weights.
func armSummary(values, treated, weights []float64, arm float64) *ArmSummary {
	var pairs []weightedValue
	var total float64
	for i := range values {
		if treated[i] != arm {
			continue
		}
		pairs = append(pairs, weightedValue{values[i], weights[i]})
		total += weights[i]
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].value < pairs[b].value })

	n := len(pairs)
	s := &ArmSummary{N: n, Values: make([]float64, n), Weights: make([]float64, n)}
	for i, p := range pairs {
		s.Values[i] = p.value
		s.Weights[i] = p.weight * float64(n) / total
	}

	s.Mean, s.Std = stat.MeanStdDev(s.Values, nil)
	s.WeightedMean, s.WeightedStd = stat.MeanStdDev(s.Values, s.Weights)
	if n < 2 {
		s.Std, s.WeightedStd = 0, 0
	}
	for q, p := range []float64{0.25, 0.5, 0.75} {
		s.Quartiles[q] = stat.Quantile(p, stat.Empirical, s.Values, nil)
		s.WeightedQuartiles[q] = stat.Quantile(p, stat.Empirical, s.Values, s.Weights)
	}
	return s
}

// smd is the standardized mean difference with a pooled standard deviation
func smd(meanT, meanC, stdT, stdC float64) float64 {
	pooled := math.Sqrt((stdT*stdT + stdC*stdC) / 2)
	if pooled == 0 || math.IsNaN(pooled) {
		return 0
	}
	return (meanT - meanC) / pooled
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
