// Package sampler runs adaptive Hamiltonian Monte Carlo over a log density
// of a parameter tree. Each chain adapts its step size by dual averaging and
// its diagonal inverse mass matrix by Welford's estimator during warmup, then
// records one draw per sampling iteration.
package sampler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/samcharles93/posterior/internal/metrics"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

// LogDensityFunc is the log density of an unconstrained parameter tree,
// returned as an owned 0-d tensor. It must be safe for concurrent use when
// chains run in parallel.
type LogDensityFunc = func(params pytree.Tree) (*tensor.Tensor, error)

// Stats aggregates chain diagnostics.
type Stats struct {
	AcceptRate         float64
	AcceptRatePerChain []float64
	StepSize           float64
	StepSizePerChain   []float64
	// MassMatrix is set for single-chain runs, MassMatrices otherwise. Both
	// hold the inverse mass diagonal in the shape of the params.
	MassMatrix          pytree.Tree
	MassMatrices        []pytree.Tree
	Divergences         int
	DivergencesPerChain []int
	ChainIDs            []uuid.UUID

	NumChains  int
	NumSamples int
	NumWarmup  int
}

// Result holds the draws of every chain and their diagnostics.
type Result struct {
	// Draws has shape [chains, samples, ...] on every leaf.
	Draws pytree.Tree
	Stats Stats
}

// Dispose releases every tensor the result holds.
func (r *Result) Dispose() {
	if r == nil {
		return
	}
	r.Draws.Dispose()
	r.Stats.MassMatrix.Dispose()
	for _, m := range r.Stats.MassMatrices {
		m.Dispose()
	}
}

// HMC runs opts.NumChains chains against logProb. Chain keys are split off
// opts.Key one at a time, so chain i sees the same key regardless of the
// number of chains after it or whether chains run in parallel.
func HMC(ctx context.Context, logProb LogDensityFunc, opts Options) (*Result, error) {
	cfg, err := opts.resolve()
	if err != nil {
		opts.Metrics.RunDone(metrics.StatusError)
		return nil, err
	}
	if logProb == nil {
		opts.Metrics.RunDone(metrics.StatusError)
		return nil, fmt.Errorf("%w: nil log density", ErrInvalidConfiguration)
	}

	keys := cfg.key.SplitSequential(cfg.numChains)
	chains := make([]*ChainResult, cfg.numChains)
	if cfg.parallel && cfg.numChains > 1 {
		p := pool.New().WithMaxGoroutines(cfg.numChains).WithErrors()
		for i := range cfg.numChains {
			p.Go(func() error {
				res, err := newChain(logProb, cfg, i, keys[i]).run(ctx)
				chains[i] = res
				return err
			})
		}
		err = p.Wait()
	} else {
		for i := range cfg.numChains {
			chains[i], err = newChain(logProb, cfg, i, keys[i]).run(ctx)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		for _, c := range chains {
			c.Dispose()
		}
		status := metrics.StatusError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = metrics.StatusCanceled
		}
		cfg.metrics.RunDone(status)
		return nil, err
	}

	res, err := combine(cfg, chains)
	if err != nil {
		cfg.metrics.RunDone(metrics.StatusError)
		return nil, err
	}
	cfg.metrics.RunDone(metrics.StatusOK)
	cfg.log.Info("sampling finished",
		"chains", cfg.numChains,
		"accept_rate", res.Stats.AcceptRate,
		"step_size", res.Stats.StepSize,
		"divergences", res.Stats.Divergences,
	)
	return res, nil
}

// combine stacks chain draws on a leading chain axis and averages the
// scalar diagnostics. It takes ownership of the chain results.
func combine(cfg config, chains []*ChainResult) (*Result, error) {
	defer func() {
		for _, c := range chains {
			c.Draws.Dispose()
		}
	}()

	perChain := make([]pytree.Tree, len(chains))
	stats := Stats{
		AcceptRatePerChain:  make([]float64, len(chains)),
		StepSizePerChain:    make([]float64, len(chains)),
		DivergencesPerChain: make([]int, len(chains)),
		ChainIDs:            make([]uuid.UUID, len(chains)),
		NumChains:           cfg.numChains,
		NumSamples:          cfg.numSamples,
		NumWarmup:           cfg.numWarmup,
	}
	for i, c := range chains {
		perChain[i] = c.Draws
		stats.AcceptRatePerChain[i] = c.AcceptRate
		stats.StepSizePerChain[i] = c.StepSize
		stats.DivergencesPerChain[i] = c.Divergences
		stats.ChainIDs[i] = c.ID
		stats.AcceptRate += c.AcceptRate / float64(len(chains))
		stats.StepSize += c.StepSize / float64(len(chains))
		stats.Divergences += c.Divergences
	}

	draws, err := pytree.Stack(perChain)
	if err != nil {
		for _, c := range chains {
			c.MassMatrix.Dispose()
		}
		return nil, err
	}
	if len(chains) == 1 {
		stats.MassMatrix = chains[0].MassMatrix
	} else {
		stats.MassMatrices = make([]pytree.Tree, len(chains))
		for i, c := range chains {
			stats.MassMatrices[i] = c.MassMatrix
		}
	}
	return &Result{Draws: draws, Stats: stats}, nil
}
