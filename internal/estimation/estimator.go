package estimation

import (
	"fmt"
	"math"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"

	"gonum.org/v1/gonum/stat"
)

// EstimatorConfig tunes propensity score weighting
type EstimatorConfig struct {
	Scheme                 causal.WeightingScheme
	Clip                   float64
	MinEffectiveSampleSize float64
	MaxClippedFraction     float64
	Ridge                  float64
	MaxIterations          int
	Tolerance              float64
}

// DefaultEstimatorConfig returns stabilized weights with a 1e-3 clip
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Scheme:                 causal.SchemeIPSStabilized,
		Clip:                   1e-3,
		MinEffectiveSampleSize: 2,
		MaxClippedFraction:     0.5,
		Ridge:                  1e-4,
		MaxIterations:          100,
		Tolerance:              1e-8,
	}
}

func (c EstimatorConfig) withDefaults() EstimatorConfig {
	d := DefaultEstimatorConfig()
	if c.Scheme == "" {
		c.Scheme = d.Scheme
	}
	if c.Clip <= 0 || c.Clip >= 0.5 {
		c.Clip = d.Clip
	}
	if c.MinEffectiveSampleSize <= 0 {
		c.MinEffectiveSampleSize = d.MinEffectiveSampleSize
	}
	if c.MaxClippedFraction <= 0 {
		c.MaxClippedFraction = d.MaxClippedFraction
	}
	if c.Ridge <= 0 {
		c.Ridge = d.Ridge
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	return c
}

// WeightingDiagnostics records how the weights were formed
type WeightingDiagnostics struct {
	// Rows are the dataset row indices that survived listwise deletion
	Rows            []int     `json:"-"`
	DroppedRows     int       `json:"dropped_rows"`
	TreatedLevel    string    `json:"treated_level"`
	ControlLevel    string    `json:"control_level"`
	TreatedCount    int       `json:"treated_count"`
	ControlCount    int       `json:"control_count"`
	Treated         []float64 `json:"-"`
	Propensity      []float64 `json:"-"`
	Weights         []float64 `json:"-"`
	ClippedCount    int       `json:"clipped_count"`
	ESSTreated      float64   `json:"ess_treated"`
	ESSControl      float64   `json:"ess_control"`
	Features        []string  `json:"features"`
	DroppedFeatures []string  `json:"dropped_features,omitempty"`
	Iterations      int       `json:"iterations"`
	Converged       bool      `json:"converged"`
	Warnings        []string  `json:"warnings,omitempty"`
}

// EffectEstimate is the average treatment effect with its supporting fit
type EffectEstimate struct {
	Value          float64                 `json:"value"`
	Method         causal.EstimationMethod `json:"method"`
	Scheme         causal.WeightingScheme  `json:"scheme"`
	Treatment      string                  `json:"treatment"`
	Outcome        string                  `json:"outcome"`
	AdjustmentSet  []string                `json:"adjustment_set"`
	Identification IdentificationResult    `json:"identification"`
	Config         EstimatorConfig         `json:"-"`
	Diagnostics    WeightingDiagnostics    `json:"diagnostics"`
	Regression     RegressionSummary       `json:"regression"`
}

// Summary is the statistical summary handed to the explainer
func (e *EffectEstimate) Summary() string {
	return fmt.Sprintf("Estimand: %s\nMethod: %s (%s)\nMean value: %.6f\n\n%s",
		e.Identification.Estimand(), e.Method, e.Scheme, e.Value, e.Regression.Text())
}

// Estimate computes the average treatment effect by propensity score weighting
func Estimate(ident IdentificationResult, ds *dataset.Dataset, cfg EstimatorConfig) (*EffectEstimate, error) {
	cfg = cfg.withDefaults()
	if ident.Treatment == "" || ident.Outcome == "" {
		return nil, core.NewInsufficientRolesError("identification has no treatment or outcome")
	}

	d, err := prepareDesign(ds, ident.Treatment, ident.Outcome, ident.AdjustmentSet)
	if err != nil {
		return nil, err
	}

	diag := WeightingDiagnostics{
		Rows:            d.rows,
		DroppedRows:     d.dropped,
		TreatedLevel:    d.treatedLevel,
		ControlLevel:    d.controlLevel,
		Treated:         d.treated,
		Features:        d.features,
		DroppedFeatures: d.droppedCols,
		Warnings:        append([]string(nil), d.warnings...),
	}
	for _, t := range d.treated {
		if t == 1 {
			diag.TreatedCount++
		} else {
			diag.ControlCount++
		}
	}
	if diag.TreatedCount == 0 || diag.ControlCount == 0 {
		return nil, core.NewDegenerateWeightsError(fmt.Sprintf("treatment arm sizes %d/%d, one arm is empty", diag.TreatedCount, diag.ControlCount))
	}

	fit, err := fitLogit(d.x, d.treated, cfg.Ridge, cfg.MaxIterations, cfg.Tolerance)
	if err != nil {
		return nil, core.NewDegenerateWeightsError(err.Error())
	}
	diag.Iterations, diag.Converged = fit.iterations, fit.converged
	if !fit.converged {
		diag.Warnings = append(diag.Warnings, fmt.Sprintf("propensity model did not converge in %d iterations", fit.iterations))
	}

	raw := fit.predict(d.x)
	scores := make([]float64, len(raw))
	for i, p := range raw {
		if p <= cfg.Clip || p >= 1-cfg.Clip {
			diag.ClippedCount++
		}
		scores[i] = clamp(p, cfg.Clip, 1-cfg.Clip)
	}
	diag.Propensity = scores

	if len(d.features) > 0 {
		if _, v := stat.MeanVariance(scores, nil); v < 1e-12 {
			return nil, core.NewDegenerateWeightsError("propensity scores have near-zero variance although confounders are present")
		}
	}
	if frac := float64(diag.ClippedCount) / float64(len(scores)); frac > cfg.MaxClippedFraction {
		return nil, core.NewDegenerateWeightsError(fmt.Sprintf("%.0f%% of propensity scores sit at the clip bounds (limit %.0f%%)", 100*frac, 100*cfg.MaxClippedFraction))
	}

	weights, err := computeWeights(cfg.Scheme, d.treated, scores)
	if err != nil {
		return nil, err
	}
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, core.NewDegenerateWeightsError("non-finite weight")
		}
	}
	diag.Weights = weights
	diag.ESSTreated = kishESS(weights, d.treated, 1)
	diag.ESSControl = kishESS(weights, d.treated, 0)
	if diag.ESSTreated < cfg.MinEffectiveSampleSize || diag.ESSControl < cfg.MinEffectiveSampleSize {
		return nil, core.NewDegenerateWeightsError(fmt.Sprintf("effective sample size treated=%.1f control=%.1f is below %.1f",
			diag.ESSTreated, diag.ESSControl, cfg.MinEffectiveSampleSize))
	}

	reg, err := fitWLS(ident.Outcome, ident.Treatment, string(cfg.Scheme), d.outcome, d.treated, weights)
	if err != nil {
		return nil, core.NewDegenerateWeightsError(err.Error())
	}
	value := reg.Effect().Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, core.NewDegenerateWeightsError("effect estimate is not finite")
	}

	return &EffectEstimate{
		Value:          value,
		Method:         causal.MethodPropensityScoreWeighting,
		Scheme:         cfg.Scheme,
		Treatment:      ident.Treatment,
		Outcome:        ident.Outcome,
		AdjustmentSet:  append([]string(nil), ident.AdjustmentSet...),
		Identification: ident,
		Config:         cfg,
		Diagnostics:    diag,
		Regression:     reg,
	}, nil
}
