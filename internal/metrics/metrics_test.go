package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(stageRunsTotal.WithLabelValues(StageEstimate, OutcomeSuccess))
	errBefore := testutil.ToFloat64(stageRunsTotal.WithLabelValues(StageEstimate, OutcomeError))

	ObserveStage(StageEstimate, 20*time.Millisecond, OutcomeSuccess)
	ObserveStage(StageEstimate, -time.Second, "unexpected")
	ObserveStage(StageEstimate, time.Millisecond, OutcomeError)

	assert.Equal(t, before+2, testutil.ToFloat64(stageRunsTotal.WithLabelValues(StageEstimate, OutcomeSuccess)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(stageRunsTotal.WithLabelValues(StageEstimate, OutcomeError)))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDurationSeconds), 1)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeFor(nil))
	assert.Equal(t, OutcomeCanceled, OutcomeFor(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, OutcomeError, OutcomeFor(errors.New("boom")))
}

func TestLLMObserverCountsRequestsAndTokens(t *testing.T) {
	const op = "metrics_test_op"
	obs := LLMObserver{}

	obs.ObserveCall(context.Background(), op, &ports.UsageData{TotalTokens: 42}, time.Second, nil)
	obs.ObserveCall(context.Background(), op, nil, time.Second, errors.New("429"))

	assert.Equal(t, 1.0, testutil.ToFloat64(llmRequestsTotal.WithLabelValues(op, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(llmRequestsTotal.WithLabelValues(op, OutcomeError)))
	assert.Equal(t, 42.0, testutil.ToFloat64(llmTokensTotal.WithLabelValues(op)))
}
