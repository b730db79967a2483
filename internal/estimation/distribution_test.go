package estimation

import (
	"errors"
	"math"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfounderDistributionContinuous(t *testing.T) {
	ds := lalonde(t)
	est := lalondeEstimate(t, ds, DefaultEstimatorConfig())

	dist, err := ConfounderDistribution(est, ds, "re74", causal.VarContinuous)
	require.NoError(t, err)
	require.NotNil(t, dist.Treated)
	require.NotNil(t, dist.Control)
	assert.Equal(t, est.Diagnostics.TreatedCount, dist.Treated.N)
	assert.Equal(t, est.Diagnostics.ControlCount, dist.Control.N)
	assert.Len(t, dist.Treated.Values, dist.Treated.N)
	assert.Len(t, dist.Control.Weights, dist.Control.N)
	assert.LessOrEqual(t, dist.Treated.Quartiles[0], dist.Treated.Quartiles[1])
	assert.LessOrEqual(t, dist.Treated.Quartiles[1], dist.Treated.Quartiles[2])
	assert.True(t, dist.KSBefore >= 0 && dist.KSBefore <= 1)
	assert.True(t, dist.KSAfter >= 0 && dist.KSAfter <= 1)
	assert.False(t, math.IsNaN(dist.SMDAfter))
}

func TestConfounderDistributionBinaryAsContinuous(t *testing.T) {
	ds := lalonde(t)
	est := lalondeEstimate(t, ds, DefaultEstimatorConfig())

	dist, err := ConfounderDistribution(est, ds, "black", causal.VarContinuous)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(dist.SMDBefore), math.Abs(dist.SMDAfter))
}

func TestConfounderDistributionDiscrete(t *testing.T) {
	ds := lalonde(t)
	est := lalondeEstimate(t, ds, DefaultEstimatorConfig())

	dist, err := ConfounderDistribution(est, ds, "married", causal.VarDiscrete)
	require.NoError(t, err)
	require.Len(t, dist.Levels, 2)
	assert.Nil(t, dist.Treated)

	var t1, c1, tw, cw float64
	for _, l := range dist.Levels {
		t1 += l.TreatedShare
		c1 += l.ControlShare
		tw += l.TreatedWeightedShare
		cw += l.ControlWeightedShare
	}
	assert.InDelta(t, 1, t1, 1e-9)
	assert.InDelta(t, 1, c1, 1e-9)
	assert.InDelta(t, 1, tw, 1e-9)
	assert.InDelta(t, 1, cw, 1e-9)

	// a many-level numeric column works as discrete
	dist, err = ConfounderDistribution(est, ds, "age", causal.VarDiscrete)
	require.NoError(t, err)
	assert.Greater(t, len(dist.Levels), 20)
}

func TestConfounderDistributionErrors(t *testing.T) {
	ds := syntheticDataset(t, 300)
	est, err := Estimate(IdentificationResult{Treatment: "treat", Outcome: "y", AdjustmentSet: []string{"x", "region"}}, ds, DefaultEstimatorConfig())
	require.NoError(t, err)

	_, err = ConfounderDistribution(est, ds, "region", causal.VarContinuous)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTypeMismatch))

	_, err = ConfounderDistribution(est, ds, "y", causal.VarContinuous)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownColumn))

	dist, err := ConfounderDistribution(est, ds, "region", causal.VarDiscrete)
	require.NoError(t, err)
	assert.Len(t, dist.Levels, 3)
}
