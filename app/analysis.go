package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal/errors"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
	"github.com/AllenThomasDev/causal-webapp/internal/explain"
	"github.com/AllenThomasDev/causal-webapp/internal/graph"
	"github.com/AllenThomasDev/causal-webapp/internal/metrics"
	"github.com/AllenThomasDev/causal-webapp/internal/questions"
	"github.com/AllenThomasDev/causal-webapp/internal/refute"
	"github.com/AllenThomasDev/causal-webapp/internal/roles"
	"github.com/AllenThomasDev/causal-webapp/internal/session"
	"github.com/AllenThomasDev/causal-webapp/internal/usage"

	"golang.org/x/sync/errgroup"
)

// ErrNoDataset is returned by stages that need a dataset before one is loaded
var ErrNoDataset = errors.InvalidInput("no dataset loaded")

// Analysis runs the pipeline for one session snapshot. Every stage is computed
// at most once, on the snapshot context, and shared by all callers.
type Analysis struct {
	svc  *CausalService
	snap *session.Snapshot

	override   *causal.RoleAssignment
	extraEdges []graph.Edge

	metadata    *future[causal.Metadata]
	questions   *future[questions.Result]
	roles       *future[causal.RoleAssignment]
	graph       *future[*graph.CausalGraph]
	ident       *future[estimation.IdentificationResult]
	estimate    *future[*estimation.EffectEstimate]
	explanation *future[explain.Explanation]

	mu          sync.Mutex
	refutations map[causal.RefutationMethod]*future[refute.RefutationResult]
}

func newAnalysis(svc *CausalService, snap *session.Snapshot) *Analysis {
	a := &Analysis{
		svc:       svc,
		snap:      snap,
		metadata:  newFuture[causal.Metadata](),
		questions: newFuture[questions.Result](),
	}
	a.resetDownstream()
	return a
}

func (a *Analysis) resetDownstream() {
	a.roles = newFuture[causal.RoleAssignment]()
	a.graph = newFuture[*graph.CausalGraph]()
	a.ident = newFuture[estimation.IdentificationResult]()
	a.estimate = newFuture[*estimation.EffectEstimate]()
	a.explanation = newFuture[explain.Explanation]()
	a.refutations = make(map[causal.RefutationMethod]*future[refute.RefutationResult])
}

// Snapshot returns the session snapshot this analysis belongs to
func (a *Analysis) Snapshot() *session.Snapshot { return a.snap }

// WithRoles returns an analysis over the same snapshot with user-chosen roles.
// Metadata and questions are shared; roles, graph, estimate and everything
// after them are recomputed.
func (a *Analysis) WithRoles(p causal.RoleProposal, extraEdges ...graph.Edge) (*Analysis, error) {
	if !a.snap.HasDataset() {
		return nil, ErrNoDataset
	}
	assignment, err := roles.Validate(p, a.snap.Dataset)
	if err != nil {
		return nil, err
	}

	child := &Analysis{
		svc:        a.svc,
		snap:       a.snap,
		override:   &assignment,
		extraEdges: append([]graph.Edge(nil), extraEdges...),
		metadata:   a.metadata,
		questions:  a.questions,
	}
	child.resetDownstream()
	return child, nil
}

// Metadata returns the normalized metadata. Normalization fails open: on a
// collaborator failure the metadata is empty and the error is returned alongside.
func (a *Analysis) Metadata(ctx context.Context) (causal.Metadata, error) {
	md, err := a.metadata.get(ctx, func() (causal.Metadata, error) {
		start := time.Now()
		sctx, cancel := a.llmContext()
		defer cancel()

		md, err := a.svc.normalizer.NormalizeOrEmpty(sctx, a.snap.RawMetadata)
		a.observe(metrics.StageNormalize, start, err, true)
		return md, err
	})
	if md == nil {
		md = causal.Metadata{}
	}
	return md, err
}

// Questions returns three suggested research questions or a failure placeholder.
// A metadata failure surfaces as the placeholder. The error is only set when ctx ends first.
func (a *Analysis) Questions(ctx context.Context) (questions.Result, error) {
	return a.questions.get(ctx, func() (questions.Result, error) {
		md, err := a.Metadata(a.snap.Context())
		if err != nil {
			if a.snap.Stale() {
				return questions.Result{}, err
			}
			a.svc.logger.Warn("[Analysis] Skipping question synthesis, metadata unavailable: %v", err)
			return questions.Failure(err), nil
		}

		start := time.Now()
		sctx, cancel := a.llmContext()
		defer cancel()

		result := a.svc.questions.Synthesize(sctx, md)
		a.observe(metrics.StageQuestions, start, result.Err, true)
		return result, nil
	})
}

// Roles returns the user override or the inferred, validated role assignment
func (a *Analysis) Roles(ctx context.Context) (causal.RoleAssignment, error) {
	if a.override != nil {
		return *a.override, nil
	}
	return a.roles.get(ctx, func() (causal.RoleAssignment, error) {
		if !a.snap.HasDataset() {
			return causal.RoleAssignment{}, ErrNoDataset
		}
		md, err := a.Metadata(a.snap.Context())
		if err != nil && a.snap.Stale() {
			return causal.RoleAssignment{}, err
		}

		start := time.Now()
		sctx, cancel := a.llmContext()
		defer cancel()

		assignment, err := a.svc.roleEngine.InferRoles(sctx, md, a.snap.Dataset)
		a.observe(metrics.StageRoles, start, err, false)
		return assignment, err
	})
}

// Graph builds the causal graph from the roles
func (a *Analysis) Graph(ctx context.Context) (*graph.CausalGraph, error) {
	return a.graph.get(ctx, func() (*graph.CausalGraph, error) {
		assignment, err := a.Roles(a.snap.Context())
		if err != nil {
			return nil, err
		}

		start := time.Now()
		g, err := graph.Build(a.snap.Dataset, assignment, graph.WithEdges(a.extraEdges...))
		a.observe(metrics.StageGraph, start, err, false)
		return g, err
	})
}

// Identification returns the backdoor identification of the graph
func (a *Analysis) Identification(ctx context.Context) (estimation.IdentificationResult, error) {
	return a.ident.get(ctx, func() (estimation.IdentificationResult, error) {
		g, err := a.Graph(a.snap.Context())
		if err != nil {
			return estimation.IdentificationResult{}, err
		}

		start := time.Now()
		ident, err := estimation.Identify(g, estimation.IdentifyOptions{
			ProceedWhenUnidentifiable: a.svc.cfg.Estimation.ProceedWhenUnidentifiable,
		})
		a.observe(metrics.StageIdentify, start, err, false)
		if err == nil && ident.Partial {
			a.svc.logger.Warn("[Analysis] Partial identification: %v", ident.Warnings)
		}
		return ident, err
	})
}

// Estimate returns the propensity score weighting estimate
func (a *Analysis) Estimate(ctx context.Context) (*estimation.EffectEstimate, error) {
	return a.estimate.get(ctx, func() (*estimation.EffectEstimate, error) {
		ident, err := a.Identification(a.snap.Context())
		if err != nil {
			return nil, err
		}

		start := time.Now()
		est, err := estimation.Estimate(ident, a.snap.Dataset, a.svc.estimatorConfig())
		a.observe(metrics.StageEstimate, start, err, false)
		if err != nil {
			return nil, fmt.Errorf("estimate %s on %s: %w", ident.Outcome, ident.Treatment, err)
		}
		a.svc.logger.Info("[Analysis] Estimated effect of %s on %s: %.4f", est.Treatment, est.Outcome, est.Value)
		return est, nil
	})
}

// Refute runs one refutation method against the estimate. Each method is run once per analysis.
func (a *Analysis) Refute(ctx context.Context, method string) (refute.RefutationResult, error) {
	m, ok := causal.ParseRefutationMethod(method)
	if !ok {
		return refute.RefutationResult{}, fmt.Errorf("%w: %q", core.ErrUnknownRefuter, method)
	}

	a.mu.Lock()
	f, exists := a.refutations[m]
	if !exists {
		f = newFuture[refute.RefutationResult]()
		a.refutations[m] = f
	}
	a.mu.Unlock()

	return f.get(ctx, func() (refute.RefutationResult, error) {
		est, err := a.Estimate(a.snap.Context())
		if err != nil {
			return refute.RefutationResult{}, err
		}

		start := time.Now()
		result, err := a.svc.refuter.Refute(a.snap.Context(), est.Identification, est, a.snap.Dataset, string(m), a.svc.refuteParams())
		a.observe(metrics.StageRefute, start, err, false)
		return result, err
	})
}

// Explanation returns the plain-language reading of the estimate. It fails
// open; the error is only set when the estimate itself is unavailable.
func (a *Analysis) Explanation(ctx context.Context) (explain.Explanation, error) {
	return a.explanation.get(ctx, func() (explain.Explanation, error) {
		est, err := a.Estimate(a.snap.Context())
		if err != nil {
			return explain.Explanation{}, err
		}
		md, _ := a.Metadata(a.snap.Context())
		assignment, err := a.Roles(a.snap.Context())
		if err != nil {
			return explain.Explanation{}, err
		}

		start := time.Now()
		sctx, cancel := a.llmContext()
		defer cancel()

		result := a.svc.explainer.ExplainFor(sctx, est.Summary(), md, assignment)
		a.observe(metrics.StageExplain, start, result.Err, true)
		return result, nil
	})
}

// Distribution compares a confounder between arms before and after weighting
func (a *Analysis) Distribution(ctx context.Context, variable string, varType causal.VarType) (estimation.Distribution, error) {
	est, err := a.Estimate(ctx)
	if err != nil {
		return estimation.Distribution{}, err
	}
	return estimation.ConfounderDistribution(est, a.snap.Dataset, variable, varType)
}

// Prepare infers roles and suggests questions concurrently
func (a *Analysis) Prepare(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.Roles(gctx)
		return err
	})
	g.Go(func() error {
		_, err := a.Questions(gctx)
		return err
	})
	return g.Wait()
}

// Run executes the whole pipeline and assembles a report. Refutation and
// explanation failures are recorded in the report rather than returned.
func (a *Analysis) Run(ctx context.Context, methods ...causal.RefutationMethod) (*Report, error) {
	start := time.Now()
	if err := a.Prepare(ctx); err != nil {
		return nil, err
	}
	est, err := a.Estimate(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SnapshotID:       a.snap.ID,
		Dataset:          a.snap.Dataset.Name,
		Estimate:         est,
		Refutations:      make([]refute.RefutationResult, 0, len(methods)),
		RefutationErrors: make(map[causal.RefutationMethod]error),
	}
	report.Metadata, report.MetadataErr = a.Metadata(ctx)
	report.Questions, _ = a.Questions(ctx)
	report.Roles, _ = a.Roles(ctx)
	report.Graph, _ = a.Graph(ctx)
	report.Identification = est.Identification

	results := make([]refute.RefutationResult, len(methods))
	errs := make([]error, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range methods {
		g.Go(func() error {
			results[i], errs[i] = a.Refute(gctx, string(m))
			return ctx.Err()
		})
	}
	g.Go(func() error {
		report.Explanation, _ = a.Explanation(gctx)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := a.svc.store.Check(a.snap); err != nil {
		return nil, err
	}

	for i, m := range methods {
		if errs[i] != nil {
			a.svc.logger.Warn("[Analysis] Refutation %s failed: %v", m, errs[i])
			report.RefutationErrors[m] = errs[i]
			continue
		}
		report.Refutations = append(report.Refutations, results[i])
	}
	report.Elapsed = time.Since(start)

	a.record(ctx, report)
	return report, nil
}

// llmContext bounds a collaborator call by the request timeout and tags it
// with the snapshot for usage accounting
func (a *Analysis) llmContext() (context.Context, context.CancelFunc) {
	ctx := usage.WithSnapshotID(a.snap.Context(), a.snap.ID)
	if timeout := a.svc.cfg.AI.Timeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (a *Analysis) observe(stage string, start time.Time, err error, failOpen bool) {
	outcome := metrics.OutcomeFor(err)
	if a.snap.Stale() && err != nil {
		outcome = metrics.OutcomeCanceled
	} else if failOpen && outcome == metrics.OutcomeError {
		outcome = metrics.OutcomeFallback
	}
	metrics.ObserveStage(stage, time.Since(start), outcome)
}
