package app

import (
	"context"
	"sync"

	"github.com/AllenThomasDev/causal-webapp/adapters/rng"
	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/config"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
	"github.com/AllenThomasDev/causal-webapp/internal/explain"
	"github.com/AllenThomasDev/causal-webapp/internal/metadata"
	"github.com/AllenThomasDev/causal-webapp/internal/metrics"
	"github.com/AllenThomasDev/causal-webapp/internal/questions"
	"github.com/AllenThomasDev/causal-webapp/internal/refute"
	"github.com/AllenThomasDev/causal-webapp/internal/roles"
	"github.com/AllenThomasDev/causal-webapp/internal/session"
	"github.com/AllenThomasDev/causal-webapp/internal/usage"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/google/uuid"
)

// Dependencies are the collaborators a CausalService is wired with.
// Runs and Usage are optional; nil disables the ledger.
type Dependencies struct {
	LLM    ports.LLMClient
	RNG    ports.RNGPort
	Runs   ports.RunRepository
	Usage  ports.LLMUsageRepository
	Logger *internal.Logger
}

// CausalService owns the session store and the pipeline components
type CausalService struct {
	cfg    *config.Config
	logger *internal.Logger

	store      *session.Store
	normalizer *metadata.Normalizer
	roleEngine *roles.Engine
	questions  *questions.Synthesizer
	explainer  *explain.Explainer
	refuter    *refute.Refuter
	runs       ports.RunRepository
	usage      *usage.Service

	mu       sync.Mutex
	analyses map[uuid.UUID]*Analysis
}

// NewCausalService wires the pipeline components around one LLM caller
func NewCausalService(ctx context.Context, cfg *config.Config, deps Dependencies) *CausalService {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := internal.OrDefault(deps.Logger)
	if deps.RNG == nil {
		deps.RNG = rng.New()
	}

	observers := []ai.CallObserver{metrics.LLMObserver{}}
	var usageSvc *usage.Service
	if deps.Usage != nil {
		usageSvc = usage.NewService(deps.Usage, logger)
		observers = append(observers, usageSvc)
	}

	caller := ai.NewCaller(deps.LLM, ai.NewPromptManager(cfg.AI.PromptsDir, logger), cfg.AI.SystemContext, logger, observers...)

	return &CausalService{
		cfg:        cfg,
		logger:     logger,
		store:      session.NewStore(ctx),
		normalizer: metadata.NewNormalizer(caller, logger),
		roleEngine: roles.NewEngine(caller, logger),
		questions:  questions.NewSynthesizer(caller, logger),
		explainer:  explain.NewExplainer(caller, logger),
		refuter:    refute.NewRefuter(deps.RNG, logger),
		runs:       deps.Runs,
		usage:      usageSvc,
		analyses:   make(map[uuid.UUID]*Analysis),
	}
}

// Load replaces both the dataset and the metadata text
func (s *CausalService) Load(ds *dataset.Dataset, rawMetadata string) *Analysis {
	return s.analysisFor(s.store.Replace(ds, rawMetadata))
}

// SetDataset replaces the dataset, keeping the current metadata text
func (s *CausalService) SetDataset(ds *dataset.Dataset) *Analysis {
	return s.analysisFor(s.store.SetDataset(ds))
}

// SetMetadata replaces the metadata text, keeping the current dataset
func (s *CausalService) SetMetadata(raw string) *Analysis {
	return s.analysisFor(s.store.SetMetadata(raw))
}

// Current returns the analysis of the active snapshot
func (s *CausalService) Current() *Analysis {
	return s.analysisFor(s.store.Current())
}

// IsCurrent reports whether a has not been superseded
func (s *CausalService) IsCurrent(a *Analysis) bool {
	return s.store.IsCurrent(a.snap)
}

// Close cancels in-flight work and waits for pending usage writes
func (s *CausalService) Close() {
	s.store.Close()
	if s.usage != nil {
		s.usage.Flush()
	}
}

func (s *CausalService) analysisFor(snap *session.Snapshot) *Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.analyses[snap.ID]; ok {
		return a
	}
	// Only the active snapshot is worth keeping
	for id, a := range s.analyses {
		if a.snap.Stale() {
			delete(s.analyses, id)
		}
	}
	a := newAnalysis(s, snap)
	s.analyses[snap.ID] = a
	s.logger.Debug("[CausalService] New analysis for snapshot %s (generation %d)", snap.ID, snap.Generation)
	return a
}

func (s *CausalService) estimatorConfig() estimation.EstimatorConfig {
	cfg := estimation.DefaultEstimatorConfig()
	est := s.cfg.Estimation
	if est.WeightingScheme != "" {
		cfg.Scheme = est.WeightingScheme
	}
	if est.PropensityClip > 0 {
		cfg.Clip = est.PropensityClip
	}
	if est.MinEffectiveSampleSize > 0 {
		cfg.MinEffectiveSampleSize = est.MinEffectiveSampleSize
	}
	if est.MaxClippedFraction > 0 {
		cfg.MaxClippedFraction = est.MaxClippedFraction
	}
	return cfg
}

func (s *CausalService) refuteParams() refute.Params {
	p := refute.DefaultParams()
	r := s.cfg.Refutation
	p.Seed = r.Seed
	if r.Simulations > 0 {
		p.Simulations = r.Simulations
	}
	if r.SubsetFraction > 0 {
		p.SubsetFraction = r.SubsetFraction
	}
	if r.Concurrency > 0 {
		p.Concurrency = r.Concurrency
	}
	return p
}
