package testkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AllenThomasDev/causal-webapp/adapters/llm"
	"github.com/AllenThomasDev/causal-webapp/adapters/rng"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"
)

// LalondeMetadata is the free-text description users paste for the job-training sample
const LalondeMetadata = `treat: 1 if the person took part in the job training program
age: age in years
educ: years of schooling
black: 1 if black
hispan: 1 if hispanic
married: 1 if married
nodegree: 1 if no high school degree
re74: real earnings in 1974
re75: real earnings in 1975
re78: real earnings in 1978, the outcome of interest`

// Scripted collaborator replies for the Lalonde sample
const (
	LalondeMetadataReply = `{"treat": "1 if the person took part in the job training program", "age": "age in years", "educ": "years of schooling", "black": "1 if black", "hispan": "1 if hispanic", "married": "1 if married", "nodegree": "1 if no high school degree", "re74": "real earnings in 1974", "re75": "real earnings in 1975", "re78": "real earnings in 1978"}`
	LalondeRolesReply     = "```json\n{\"outcome\": \"re78\", \"treatment\": [\"treat\"], \"confounders\": [\"age\", \"educ\", \"black\", \"hispan\", \"married\", \"nodegree\", \"re74\", \"re75\"]}\n```"
	LalondeQuestionsReply = `{"questions": ["Does job training raise 1978 earnings?", "Do prior earnings predict program participation?", "Is the training effect different for people without a degree?"]}`
	LalondeExplainReply   = "## What the estimate means\n\nPeople who took part in the **training program** earned more in 1978 than comparable people who did not."
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	ledger  *InMemoryLedgerAdapter
	rng     *rng.Adapter
	mu      sync.Mutex
	dataset *dataset.Dataset
}

// NewTestKit creates a new test kit instance with synthetic data
func NewTestKit() *TestKit {
	return &TestKit{
		ledger: NewInMemoryLedgerAdapter(),
		rng:    rng.New(),
	}
}

// LalondeDataset returns the default generated sample, built once per kit
func (t *TestKit) LalondeDataset() (*dataset.Dataset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dataset != nil {
		return t.dataset, nil
	}
	ds, err := NewLalondeDataGenerator(DefaultLalondeConfig()).Generate()
	if err != nil {
		return nil, fmt.Errorf("generate lalonde sample: %w", err)
	}
	t.dataset = ds
	return ds, nil
}

// LalondeLLM returns a mock collaborator answering every pipeline operation for the Lalonde sample
func (t *TestKit) LalondeLLM() *llm.MockLLMClient {
	return &llm.MockLLMClient{
		Responses: map[string]string{
			models.OpMetadataNormalization: LalondeMetadataReply,
			models.OpRoleInference:         LalondeRolesReply,
			models.OpQuestionSynthesis:     LalondeQuestionsReply,
			models.OpResultExplanation:     LalondeExplainReply,
		},
		Usage: &ports.UsageData{Model: "mock-model", Provider: "mock", PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}

// RNGAdapter returns the seeded stream adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rng
}

// LedgerAdapter returns the shared in-memory run and usage ledger
func (t *TestKit) LedgerAdapter() *InMemoryLedgerAdapter {
	return t.ledger
}

// InMemoryLedgerAdapter implements the run and usage repositories in memory
type InMemoryLedgerAdapter struct {
	runs  []*models.RunRecord
	usage []*models.LLMUsage
	mu    sync.RWMutex
}

var (
	_ ports.RunRepository      = (*InMemoryLedgerAdapter)(nil)
	_ ports.LLMUsageRepository = (*InMemoryLedgerAdapter)(nil)
)

func NewInMemoryLedgerAdapter() *InMemoryLedgerAdapter {
	return &InMemoryLedgerAdapter{}
}

func (s *InMemoryLedgerAdapter) RecordRun(ctx context.Context, run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

// ListRuns returns the newest runs first, optionally filtered by snapshot
func (s *InMemoryLedgerAdapter) ListRuns(ctx context.Context, snapshotID string, limit int) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*models.RunRecord
	for _, r := range s.runs {
		if snapshotID != "" && r.SnapshotID.String() != snapshotID {
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *InMemoryLedgerAdapter) RecordUsage(ctx context.Context, usage *models.LLMUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *usage
	s.usage = append(s.usage, &cp)
	return nil
}

// Usage returns the recorded usage rows for the given operation, or all rows when op is empty
func (s *InMemoryLedgerAdapter) Usage(op string) []*models.LLMUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LLMUsage
	for _, u := range s.usage {
		if op == "" || strings.EqualFold(u.OperationType, op) {
			out = append(out, u)
		}
	}
	return out
}
