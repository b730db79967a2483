package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/adapters/llm"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/config"
	"github.com/AllenThomasDev/causal-webapp/internal/questions"
	"github.com/AllenThomasDev/causal-webapp/internal/testkit"
	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	kit    *testkit.TestKit
	ds     *dataset.Dataset
	mock   *llm.MockLLMClient
	ledger *testkit.InMemoryLedgerAdapter
	svc    *CausalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kit := testkit.NewTestKit()
	ds, err := kit.LalondeDataset()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Refutation.Simulations = 10

	f := &fixture{kit: kit, ds: ds, mock: kit.LalondeLLM(), ledger: kit.LedgerAdapter()}
	f.svc = NewCausalService(context.Background(), cfg, Dependencies{
		LLM:    f.mock,
		RNG:    kit.RNGAdapter(),
		Runs:   f.ledger,
		Usage:  f.ledger,
		Logger: internal.NewNopLogger(),
	})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) operations() map[string]int {
	counts := make(map[string]int)
	for _, req := range f.mock.Requests {
		counts[req.Operation]++
	}
	return counts
}

func columnRange(t *testing.T, ds *dataset.Dataset, name string) float64 {
	t.Helper()
	col, ok := ds.Column(name)
	require.True(t, ok)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			continue
		}
		lo = math.Min(lo, col.Values[i])
		hi = math.Max(hi, col.Values[i])
	}
	return hi - lo
}

func TestRunLalondeEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.svc.Load(f.ds, testkit.LalondeMetadata)
	report, err := a.Run(ctx, causal.RefuteRandomCommonCause, causal.RefuteDataSubset)
	require.NoError(t, err)

	assert.NoError(t, report.MetadataErr)
	assert.Equal(t, "years of schooling", report.Metadata["educ"])
	assert.Equal(t, "treat", report.Roles.Treatment.Name)
	assert.Equal(t, "re78", report.Roles.Outcome.Name)
	assert.Len(t, report.Roles.Confounders, 8)

	assert.False(t, report.Questions.Failed())
	assert.Len(t, report.Questions.Questions, questions.Count)

	require.NotNil(t, report.Graph)
	assert.Equal(t, 17, report.Graph.EdgeCount())
	assert.Len(t, report.Identification.AdjustmentSet, 8)
	assert.False(t, report.Identification.Partial)

	require.NotNil(t, report.Estimate)
	value := report.Estimate.Value
	assert.False(t, math.IsNaN(value) || math.IsInf(value, 0))
	assert.Less(t, math.Abs(value), columnRange(t, f.ds, "re78"))

	assert.Len(t, report.Refutations, 2)
	assert.Empty(t, report.RefutationErrors)

	assert.False(t, report.Explanation.Failed())
	assert.Contains(t, report.Explanation.Markdown, "training program")
	assert.Contains(t, report.Explanation.HTML, "<strong>training program</strong>")

	text := report.Text()
	assert.Contains(t, text, "Causal graph: 10 nodes, 17 edges")
	assert.Contains(t, text, "WLS Regression Results")

	runs, err := f.ledger.ListRuns(ctx, a.Snapshot().ID.String(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, value, runs[0].Estimate)
	assert.Equal(t, "treat", runs[0].Treatment)
	assert.Len(t, runs[0].Refutations, 2)

	f.svc.Close()
	usage := f.ledger.Usage("")
	assert.Len(t, usage, 4)
	for _, u := range usage {
		require.NotNil(t, u.SnapshotID)
		assert.Equal(t, a.Snapshot().ID, *u.SnapshotID)
	}
}

func TestStagesRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)

	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Prepare(ctx))
	first, err := a.Estimate(ctx)
	require.NoError(t, err)
	second, err := a.Estimate(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, map[string]int{
		models.OpMetadataNormalization: 1,
		models.OpRoleInference:         1,
		models.OpQuestionSynthesis:     1,
	}, f.operations())

	_, err = a.Explanation(ctx)
	require.NoError(t, err)
	_, err = a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.operations()[models.OpResultExplanation])
	assert.Equal(t, 4, f.mock.Calls())

	assert.Same(t, a, f.svc.Current())
}

func TestWithRolesOverridesInference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)

	custom, err := a.WithRoles(causal.RoleProposal{Outcome: "re78", Treatment: "treat", Confounders: []string{"age", "educ"}})
	require.NoError(t, err)

	g, err := custom.Graph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, g.EdgeCount())

	est, err := custom.Estimate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"age", "educ"}, est.AdjustmentSet)
	assert.Zero(t, f.operations()[models.OpRoleInference])

	// metadata is shared with the parent analysis
	_, err = custom.Metadata(ctx)
	require.NoError(t, err)
	_, err = a.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.operations()[models.OpMetadataNormalization])
}

func TestWithRolesValidatesColumns(t *testing.T) {
	f := newFixture(t)
	a := f.svc.Load(f.ds, "")

	_, err := a.WithRoles(causal.RoleProposal{Outcome: "re78", Treatment: "training", Confounders: []string{"age"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownColumn))
}

func TestDistributionThroughAnalysis(t *testing.T) {
	f := newFixture(t)
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)

	dist, err := a.Distribution(context.Background(), "re74", causal.VarContinuous)
	require.NoError(t, err)
	require.NotNil(t, dist.Treated)
	require.NotNil(t, dist.Control)
	assert.Greater(t, dist.Treated.N+dist.Control.N, 0)
}

func TestRunWithoutDataset(t *testing.T) {
	f := newFixture(t)
	a := f.svc.SetMetadata(testkit.LalondeMetadata)

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDataset))

	// questions only need metadata
	result, err := a.Questions(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Failed())
}

func TestRefuteUnknownMethod(t *testing.T) {
	f := newFixture(t)
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)

	_, err := a.Refute(context.Background(), "bootstrap_refuter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownRefuter))
}

func TestMetadataFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.mock.Error = errors.New("service unavailable")
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)

	md, err := a.Metadata(context.Background())
	require.Error(t, err)
	assert.True(t, md.IsEmpty())

	result, err := a.Questions(context.Background())
	require.NoError(t, err)
	require.True(t, result.Failed())
	assert.True(t, errors.Is(result.Err, f.mock.Error))
	require.Len(t, result.Questions, 1)
	assert.True(t, strings.HasPrefix(result.Questions[0], "Error parsing JSON: "))
	assert.Contains(t, result.Questions[0], "service unavailable")
	assert.Zero(t, f.operations()[models.OpQuestionSynthesis])
}

func TestBlankMetadataAsksForInput(t *testing.T) {
	f := newFixture(t)
	a := f.svc.Load(f.ds, "")

	result, err := a.Questions(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, []string{questions.EmptyMetadataPlaceholder}, result.Questions)
	assert.Zero(t, f.mock.Calls())
}

func TestReplacedSnapshotIsStale(t *testing.T) {
	f := newFixture(t)
	a := f.svc.Load(f.ds, testkit.LalondeMetadata)
	next := f.svc.SetMetadata("age: years")

	assert.False(t, f.svc.IsCurrent(a))
	assert.True(t, f.svc.IsCurrent(next))
	assert.Same(t, f.ds, next.Snapshot().Dataset)

	_, err := a.Run(context.Background())
	assert.Error(t, err)
}

// gatedLLM holds the reply to one operation until released, ignoring cancellation
type gatedLLM struct {
	*llm.MockLLMClient
	operation string
	entered   chan struct{}
	release   chan struct{}
}

func (g *gatedLLM) ChatCompletion(ctx context.Context, req ports.ChatRequest) (*ports.LLMResponse, error) {
	if req.Operation != g.operation {
		return g.MockLLMClient.ChatCompletion(ctx, req)
	}
	close(g.entered)
	<-g.release
	return &ports.LLMResponse{Content: testkit.LalondeExplainReply}, nil
}

func TestRunDiscardsResultsOfReplacedSnapshot(t *testing.T) {
	kit := testkit.NewTestKit()
	ds, err := kit.LalondeDataset()
	require.NoError(t, err)
	ledger := kit.LedgerAdapter()
	gate := &gatedLLM{
		MockLLMClient: kit.LalondeLLM(),
		operation:     models.OpResultExplanation,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	svc := NewCausalService(context.Background(), config.Default(), Dependencies{
		LLM:    gate,
		RNG:    kit.RNGAdapter(),
		Runs:   ledger,
		Logger: internal.NewNopLogger(),
	})
	t.Cleanup(svc.Close)

	a := svc.Load(ds, testkit.LalondeMetadata)
	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background())
		done <- err
	}()

	<-gate.entered
	svc.SetMetadata("age: years")
	close(gate.release)

	err = <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStaleSnapshot))

	runs, err := ledger.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
