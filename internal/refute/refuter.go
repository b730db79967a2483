package refute

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomCommonCauseColumn is the name given to the injected N(0,1) confounder
const RandomCommonCauseColumn = "w_random"

// Params controls a refutation run
type Params struct {
	Seed           int64
	Simulations    int
	SubsetFraction float64
	Concurrency    int
	Alpha          float64
}

// DefaultParams returns 100 simulations on a 90% subset with seed 42
func DefaultParams() Params {
	return Params{
		Seed:           42,
		Simulations:    100,
		SubsetFraction: 0.9,
		Concurrency:    4,
		Alpha:          0.05,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Simulations <= 0 {
		p.Simulations = d.Simulations
	}
	if p.SubsetFraction <= 0 || p.SubsetFraction > 1 {
		p.SubsetFraction = d.SubsetFraction
	}
	if p.Concurrency <= 0 {
		p.Concurrency = d.Concurrency
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		p.Alpha = d.Alpha
	}
	return p
}

// NullDistributionSummary describes the simulated estimates
type NullDistributionSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Percentile5  float64 `json:"percentile_5"`
	Percentile95 float64 `json:"percentile_95"`
}

// RefutationResult is the outcome of one robustness check
type RefutationResult struct {
	Method         causal.RefutationMethod `json:"method"`
	OriginalEffect float64                 `json:"original_effect"`
	NewEffect      float64                 `json:"new_effect"`
	PValue         float64                 `json:"p_value"`
	Robust         bool                    `json:"robust"`
	Simulations    int                     `json:"simulations"`
	Failed         int                     `json:"failed"`
	Estimates      []float64               `json:"-"`
	Null           NullDistributionSummary `json:"null_distribution"`
	Seed           int64                   `json:"seed"`
}

// Summary renders the result as a short report
func (r RefutationResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Refute: %s\n", Describe(r.Method))
	fmt.Fprintf(&b, "Estimated effect: %.4f\n", r.OriginalEffect)
	fmt.Fprintf(&b, "New effect: %.4f\n", r.NewEffect)
	fmt.Fprintf(&b, "p value: %.4f\n", r.PValue)
	fmt.Fprintf(&b, "Simulations: %d (%d failed)\n", r.Simulations, r.Failed)
	verdict := "not robust"
	if r.Robust {
		verdict = "robust"
	}
	fmt.Fprintf(&b, "Verdict: %s\n", verdict)
	return b.String()
}

// Describe returns the human-readable name of a refutation method
func Describe(m causal.RefutationMethod) string {
	switch m {
	case causal.RefuteRandomCommonCause:
		return "Add a random common cause"
	case causal.RefutePlaceboTreatment:
		return "Use a Placebo Treatment"
	case causal.RefuteDataSubset:
		return "Use a subset of data"
	}
	return string(m)
}

// Refuter re-estimates an effect under perturbations of the data
type Refuter struct {
	rngPort ports.RNGPort
	logger  *internal.Logger
}

// NewRefuter creates a refuter drawing per-simulation streams from rngPort
func NewRefuter(rngPort ports.RNGPort, logger *internal.Logger) *Refuter {
	return &Refuter{rngPort: rngPort, logger: internal.OrDefault(logger)}
}

// simulation perturbs the inputs and re-estimates the effect
type simulation func(rng randSource, ident estimation.IdentificationResult, ds *dataset.Dataset) (estimation.IdentificationResult, *dataset.Dataset, error)

// Refute runs params.Simulations perturbed re-estimations of est. Simulation i
// draws from its own stream, so results do not depend on goroutine scheduling.
func (r *Refuter) Refute(ctx context.Context, ident estimation.IdentificationResult, est *estimation.EffectEstimate, ds *dataset.Dataset, method string, params Params) (RefutationResult, error) {
	m, ok := causal.ParseRefutationMethod(method)
	if !ok {
		return RefutationResult{}, fmt.Errorf("%w: %q (want one of %s)", core.ErrUnknownRefuter, method, methodList())
	}
	if est == nil {
		return RefutationResult{}, fmt.Errorf("refute %s: no estimate to refute", m)
	}
	params = params.withDefaults()

	var perturb simulation
	switch m {
	case causal.RefuteRandomCommonCause:
		perturb = addRandomCommonCause
	case causal.RefutePlaceboTreatment:
		perturb = permuteTreatment
	case causal.RefuteDataSubset:
		if int(math.Floor(params.SubsetFraction*float64(ds.Rows()))) < 3 {
			return RefutationResult{}, fmt.Errorf("refute %s: subset fraction %.2f leaves fewer than 3 rows", m, params.SubsetFraction)
		}
		perturb = subsetRows(params.SubsetFraction)
	}

	r.logger.Info("[Refuter] Running %s: %d simulations (seed=%d, concurrency=%d)", m, params.Simulations, params.Seed, params.Concurrency)
	start := time.Now()

	estimates := make([]float64, params.Simulations)
	errs := make([]error, params.Simulations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Concurrency)
	for i := 0; i < params.Simulations; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := r.rngPort.Stream(string(m), params.Seed, i)
			simIdent, simData, err := perturb(rng, ident, ds)
			if err != nil {
				errs[i] = err
				return nil
			}
			simEst, err := estimation.Estimate(simIdent, simData, est.Config)
			if err != nil {
				errs[i] = err
				return nil
			}
			estimates[i] = simEst.Value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RefutationResult{}, fmt.Errorf("refute %s: %w", m, err)
	}

	var (
		values   []float64
		failed   int
		firstErr error
	)
	for i := range estimates {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			r.logger.Debug("[Refuter] %s simulation %d skipped: %v", m, i, errs[i])
			continue
		}
		values = append(values, estimates[i])
	}
	if len(values) == 0 {
		return RefutationResult{}, fmt.Errorf("refute %s: all %d simulations failed: %w", m, params.Simulations, firstErr)
	}
	if failed > 0 {
		r.logger.Warn("[Refuter] %s: %d of %d simulations failed", m, failed, params.Simulations)
	}

	null := summarize(values)
	result := RefutationResult{
		Method:         m,
		OriginalEffect: est.Value,
		NewEffect:      null.Mean,
		PValue:         normalPValue(est.Value, null.Mean, null.StdDev),
		Simulations:    params.Simulations,
		Failed:         failed,
		Estimates:      values,
		Null:           null,
		Seed:           params.Seed,
	}
	result.Robust = isRobust(m, result, params.Alpha)

	r.logger.Info("[Refuter] %s done in %v: new effect %.4f, p=%.4f, robust=%t",
		m, time.Since(start).Round(time.Millisecond), result.NewEffect, result.PValue, result.Robust)
	return result, nil
}

func isRobust(m causal.RefutationMethod, r RefutationResult, alpha float64) bool {
	if m == causal.RefutePlaceboTreatment {
		return r.PValue < alpha || math.Abs(r.NewEffect) <= 0.1*math.Abs(r.OriginalEffect)
	}
	return r.PValue >= alpha
}

// normalPValue is the two-sided probability of the original estimate under a
// normal fitted to the simulated estimates.
func normalPValue(original, mean, sd float64) float64 {
	if !(sd > 0) {
		if original == mean {
			return 1
		}
		return 0
	}
	z := math.Abs(original-mean) / sd
	return 2 * distuv.UnitNormal.Survival(z)
}

func summarize(values []float64) NullDistributionSummary {
	data := stats.Float64Data(values)
	var s NullDistributionSummary
	s.Mean, _ = stats.Mean(data)
	s.Min, _ = stats.Min(data)
	s.Max, _ = stats.Max(data)
	s.Percentile5, _ = stats.PercentileNearestRank(data, 5)
	s.Percentile95, _ = stats.PercentileNearestRank(data, 95)
	if len(values) > 1 {
		s.StdDev, _ = stats.StandardDeviationSample(data)
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

func methodList() string {
	var names []string
	for _, m := range causal.RefutationMethods() {
		names = append(names, string(m))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
