package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels stages and calls that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels stages and calls that failed.
	OutcomeError = "error"
	// OutcomeFallback labels fail-open stages that returned their documented fallback.
	OutcomeFallback = "fallback"
	// OutcomeCanceled labels work abandoned because its snapshot was replaced.
	OutcomeCanceled = "canceled"
)

// Pipeline stage labels
const (
	StageNormalize = "normalize"
	StageRoles     = "roles"
	StageQuestions = "questions"
	StageGraph     = "graph"
	StageIdentify  = "identify"
	StageEstimate  = "estimate"
	StageRefute    = "refute"
	StageExplain   = "explain"
)

var (
	stageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "causal",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions, partitioned by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "causal",
			Name:      "stage_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "causal",
			Name:      "llm_requests_total",
			Help:      "Total number of text-generation requests, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "causal",
			Name:      "llm_tokens_total",
			Help:      "Total number of tokens reported by the text-generation provider.",
		},
		[]string{"operation"},
	)
)

// Register attaches the pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		stageRunsTotal,
		stageDurationSeconds,
		llmRequestsTotal,
		llmTokensTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveStage records a stage duration and outcome label.
func ObserveStage(stage string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeFallback, OutcomeCanceled:
	default:
		outcome = OutcomeSuccess
	}
	stageRunsTotal.WithLabelValues(stage, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// OutcomeFor maps a stage error to its outcome label
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// LLMObserver counts collaborator requests and tokens
type LLMObserver struct{}

var _ ai.CallObserver = LLMObserver{}

// ObserveCall implements ai.CallObserver
func (LLMObserver) ObserveCall(_ context.Context, operation string, usage *ports.UsageData, _ time.Duration, err error) {
	llmRequestsTotal.WithLabelValues(operation, OutcomeFor(err)).Inc()
	if usage != nil && usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(operation).Add(float64(usage.TotalTokens))
	}
}
