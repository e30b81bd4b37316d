package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/posterior/internal/logger"
	"github.com/samcharles93/posterior/internal/metrics"
	"github.com/samcharles93/posterior/internal/posteriordb"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/sampler"
	"github.com/samcharles93/posterior/internal/summary"
	"github.com/samcharles93/posterior/internal/tensor"
)

const (
	DefaultMaxConcurrent = 2
	// DefaultMaxIterations caps chains * (warmup + samples) per run.
	DefaultMaxIterations = 1_000_000
)

type ServiceConfig struct {
	MaxConcurrent int
	MaxIterations int
	Metrics       *metrics.Sampler
	Logger        logger.Logger
}

// SamplingService runs HMC on the built-in posteriors with a bounded
// number of runs in flight.
type SamplingService struct {
	cfg   ServiceConfig
	slots chan struct{}
	seed  func() uint64
}

func NewSamplingService(cfg ServiceConfig) *SamplingService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &SamplingService{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxConcurrent),
		seed:  rand.Uint64,
	}
}

// runOutput is a finished run. The caller owns Draws.
type runOutput struct {
	Seed    uint64
	Stats   *RunStats
	Summary []summary.Stat
	Draws   pytree.Tree
}

func (s *SamplingService) Run(ctx context.Context, req *RunRequest) (*runOutput, error) {
	p, err := posteriordb.Lookup(req.Model)
	if err != nil {
		return nil, newInvalidRequest("model", err.Error())
	}
	if err := s.checkBudget(req); err != nil {
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slots }()

	seed := s.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	bm, err := p.Bind(true)
	if err != nil {
		return nil, err
	}
	defer bm.Close()
	init := p.InitialParams(bm.Template())
	defer init.Dispose()

	log := logger.ForRun(s.cfg.Logger, p.Name, seed)
	log.Info("run started", "samples", req.NumSamples, "chains", req.NumChains)
	res, err := sampler.HMC(ctx, bm.LogProb, sampler.Options{
		NumSamples:       req.NumSamples,
		NumWarmup:        req.NumWarmup,
		NumLeapfrogSteps: req.NumLeapfrogSteps,
		NumChains:        req.NumChains,
		InitialStepSize:  req.InitialStepSize,
		TargetAcceptRate: req.TargetAcceptRate,
		AdaptMassMatrix:  req.AdaptMassMatrix,
		InitialParams:    init,
		Key:              tensor.NewKey(seed),
		Parallel:         req.Parallel,
		Logger:           log,
		Metrics:          s.cfg.Metrics,
	})
	if err != nil {
		if errors.Is(err, sampler.ErrInvalidConfiguration) {
			return nil, newInvalidRequest("", err.Error())
		}
		return nil, err
	}
	defer res.Dispose()

	draws, err := bm.Constrain(res.Draws)
	if err != nil {
		return nil, err
	}
	stats, err := summary.Compute(draws)
	if err != nil {
		draws.Dispose()
		return nil, err
	}
	return &runOutput{
		Seed:    seed,
		Stats:   NewRunStats(res.Stats),
		Summary: stats,
		Draws:   draws,
	}, nil
}

func (s *SamplingService) checkBudget(req *RunRequest) error {
	if req.NumSamples <= 0 {
		return newInvalidRequest("num_samples", "num_samples must be positive")
	}
	warmup := sampler.DefaultNumWarmup
	if req.NumWarmup != nil {
		warmup = *req.NumWarmup
	}
	if warmup < 0 {
		return newInvalidRequest("num_warmup", "num_warmup must not be negative")
	}
	chains := max(req.NumChains, 1)
	// Compare by division so oversized requests cannot wrap the product.
	limit := s.cfg.MaxIterations
	if req.NumSamples > limit || warmup > limit-req.NumSamples || chains > limit/(warmup+req.NumSamples) {
		return newInvalidRequest("", fmt.Sprintf("run needs %d chains x (%d warmup + %d samples) iterations, limit is %d",
			chains, warmup, req.NumSamples, limit))
	}
	return nil
}

// NewRunStats converts sampler diagnostics to their JSON form. Mass matrices
// are listed per chain.
func NewRunStats(st sampler.Stats) *RunStats {
	out := &RunStats{
		AcceptRate:          st.AcceptRate,
		AcceptRatePerChain:  st.AcceptRatePerChain,
		StepSize:            st.StepSize,
		StepSizePerChain:    st.StepSizePerChain,
		Divergences:         st.Divergences,
		DivergencesPerChain: st.DivergencesPerChain,
		NumChains:           st.NumChains,
		NumSamples:          st.NumSamples,
		NumWarmup:           st.NumWarmup,
	}
	for _, id := range st.ChainIDs {
		out.ChainIDs = append(out.ChainIDs, id.String())
	}
	masses := st.MassMatrices
	if st.MassMatrix.Len() > 0 {
		masses = []pytree.Tree{st.MassMatrix}
	}
	for _, m := range masses {
		out.MassMatrices = append(out.MassMatrices, treeValues(m))
	}
	return out
}

func treeValues(t pytree.Tree) map[string][]float64 {
	out := make(map[string][]float64, t.Len())
	names := t.Names()
	for i, leaf := range t.Leaves() {
		out[names[i]] = leaf.Values()
	}
	return out
}

// DrawsOf copies every leaf of draws into its JSON form.
func DrawsOf(draws pytree.Tree) map[string]Draws {
	out := make(map[string]Draws, draws.Len())
	names := draws.Names()
	for i, leaf := range draws.Leaves() {
		out[names[i]] = Draws{
			Shape:  append([]int(nil), leaf.Shape()...),
			Values: summary.Floats(leaf.Values()),
		}
	}
	return out
}
