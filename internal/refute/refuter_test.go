package refute

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/adapters/rng"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
	"github.com/AllenThomasDev/causal-webapp/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ds    *dataset.Dataset
	ident estimation.IdentificationResult
	est   *estimation.EffectEstimate
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ds, err := testkit.NewTestKit().LalondeDataset()
	require.NoError(t, err)
	ident := estimation.IdentificationResult{
		Treatment:     "treat",
		Outcome:       "re78",
		EstimandType:  estimation.EstimandNonparametricATE,
		AdjustmentSet: testkit.LalondeConfounders,
	}
	est, err := estimation.Estimate(ident, ds, estimation.DefaultEstimatorConfig())
	require.NoError(t, err)
	return fixture{ds: ds, ident: ident, est: est}
}

func params(sims, concurrency int) Params {
	p := DefaultParams()
	p.Simulations = sims
	p.Concurrency = concurrency
	return p
}

type recordingRNG struct {
	inner   *rng.Adapter
	mu      sync.Mutex
	names   map[string]bool
	indices []int
}

func (r *recordingRNG) Stream(name string, seed int64, index int) *rand.Rand {
	r.mu.Lock()
	r.names[name] = true
	r.indices = append(r.indices, index)
	r.mu.Unlock()
	return r.inner.Stream(name, seed, index)
}

func TestRefuteUnknownMethod(t *testing.T) {
	f := newFixture(t)
	_, err := NewRefuter(rng.New(), internal.NewNopLogger()).Refute(context.Background(), f.ident, f.est, f.ds, "bootstrap_refuter", params(5, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownRefuter))
}

func TestRandomCommonCauseIsDeterministic(t *testing.T) {
	f := newFixture(t)
	refuter := NewRefuter(rng.New(), internal.NewNopLogger())

	first, err := refuter.Refute(context.Background(), f.ident, f.est, f.ds, string(causal.RefuteRandomCommonCause), params(12, 1))
	require.NoError(t, err)
	second, err := refuter.Refute(context.Background(), f.ident, f.est, f.ds, string(causal.RefuteRandomCommonCause), params(12, 6))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, causal.RefuteRandomCommonCause, first.Method)
	assert.Equal(t, f.est.Value, first.OriginalEffect)
	assert.Zero(t, first.Failed)
	assert.Len(t, first.Estimates, 12)
	assert.InDelta(t, f.est.Value, first.NewEffect, 300)
	assert.True(t, first.PValue >= 0 && first.PValue <= 1)
	assert.Contains(t, first.Summary(), "Add a random common cause")
}

func TestRandomCommonCauseLeavesInputsUntouched(t *testing.T) {
	f := newFixture(t)
	cols := f.ds.ColumnNames()
	adj := append([]string(nil), f.ident.AdjustmentSet...)

	_, err := NewRefuter(rng.New(), nil).Refute(context.Background(), f.ident, f.est, f.ds, string(causal.RefuteRandomCommonCause), params(3, 2))
	require.NoError(t, err)
	assert.Equal(t, cols, f.ds.ColumnNames())
	assert.Equal(t, adj, f.ident.AdjustmentSet)
}

func TestPlaceboTreatmentShrinksEffect(t *testing.T) {
	f := newFixture(t)
	res, err := NewRefuter(rng.New(), internal.NewNopLogger()).Refute(context.Background(), f.ident, f.est, f.ds, "placebo_treatment", params(20, 4))
	require.NoError(t, err)
	assert.Equal(t, causal.RefutePlaceboTreatment, res.Method)
	assert.Less(t, math.Abs(res.NewEffect), math.Abs(f.est.Value))
	assert.Less(t, math.Abs(res.NewEffect), 600.0)
}

func TestDataSubsetUsesOneStreamPerSimulation(t *testing.T) {
	f := newFixture(t)
	rec := &recordingRNG{inner: rng.New(), names: map[string]bool{}}

	res, err := NewRefuter(rec, internal.NewNopLogger()).Refute(context.Background(), f.ident, f.est, f.ds, "data_subset", params(8, 3))
	require.NoError(t, err)
	assert.Equal(t, causal.RefuteDataSubset, res.Method)
	assert.Equal(t, 8, res.Simulations)
	assert.InDelta(t, f.est.Value, res.NewEffect, 500)

	sort.Ints(rec.indices)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, rec.indices)
	assert.Equal(t, map[string]bool{string(causal.RefuteDataSubset): true}, rec.names)
}

func TestDataSubsetRejectsTinyFraction(t *testing.T) {
	f := newFixture(t)
	p := params(2, 1)
	p.SubsetFraction = 0.001
	_, err := NewRefuter(rng.New(), nil).Refute(context.Background(), f.ident, f.est, f.ds, "data_subset", p)
	assert.Error(t, err)
}

func TestRefuteAllSimulationsFail(t *testing.T) {
	f := newFixture(t)
	broken := f.ident
	broken.Treatment = "not_a_column"

	_, err := NewRefuter(rng.New(), internal.NewNopLogger()).Refute(context.Background(), broken, f.est, f.ds, "placebo_treatment", params(4, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 4 simulations failed")
}

func TestRefuteHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRefuter(rng.New(), nil).Refute(ctx, f.ident, f.est, f.ds, "random_common_cause", params(5, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsRobust(t *testing.T) {
	assert.True(t, isRobust(causal.RefuteRandomCommonCause, RefutationResult{PValue: 0.4}, 0.05))
	assert.False(t, isRobust(causal.RefuteDataSubset, RefutationResult{PValue: 0.01}, 0.05))
	assert.True(t, isRobust(causal.RefutePlaceboTreatment, RefutationResult{PValue: 0.01, OriginalEffect: 10, NewEffect: 5}, 0.05))
	assert.True(t, isRobust(causal.RefutePlaceboTreatment, RefutationResult{PValue: 0.5, OriginalEffect: 10, NewEffect: 0.5}, 0.05))
	assert.False(t, isRobust(causal.RefutePlaceboTreatment, RefutationResult{PValue: 0.5, OriginalEffect: 10, NewEffect: 8}, 0.05))
}

func TestNormalPValue(t *testing.T) {
	assert.InDelta(t, 1, normalPValue(5, 5, 1), 1e-12)
	assert.InDelta(t, 0.0455, normalPValue(2, 0, 1), 1e-3)
	assert.Equal(t, 1.0, normalPValue(3, 3, 0))
	assert.Equal(t, 0.0, normalPValue(3, 2, 0))
}

func TestSummarize(t *testing.T) {
	s := summarize([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.InDelta(t, math.Sqrt(2.5), s.StdDev, 1e-12)

	single := summarize([]float64{7})
	assert.Equal(t, 0.0, single.StdDev)
}
