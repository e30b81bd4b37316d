package sampler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/posterior/internal/adapt"
	"github.com/samcharles93/posterior/internal/kernel"
	"github.com/samcharles93/posterior/internal/logger"
	"github.com/samcharles93/posterior/internal/metrics"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

// phase of a chain. Transitions depend only on the iteration count.
type phase int

const (
	warming phase = iota
	sampling
	done
)

func (p phase) String() string {
	switch p {
	case warming:
		return metrics.PhaseWarmup
	case sampling:
		return metrics.PhaseSampling
	default:
		return "done"
	}
}

func phaseAt(iter, numWarmup, total int) phase {
	switch {
	case iter < numWarmup:
		return warming
	case iter < total:
		return sampling
	default:
		return done
	}
}

// ChainResult is the output of one chain.
type ChainResult struct {
	ID uuid.UUID
	// Draws has a leading sample axis on every leaf.
	Draws       pytree.Tree
	AcceptRate  float64
	StepSize    float64
	MassMatrix  pytree.Tree
	Divergences int
}

// Dispose releases the draws and the mass matrix.
func (r *ChainResult) Dispose() {
	if r == nil {
		return
	}
	r.Draws.Dispose()
	r.MassMatrix.Dispose()
}

// chain is the mutable state of one chain. It is owned by a single goroutine.
type chain struct {
	cfg     config
	index   int
	id      uuid.UUID
	tmpl    pytree.Template
	density kernel.LogDensityFunc

	key       tensor.Key
	position  pytree.Tree
	invMass   *tensor.Tensor
	kern      *kernel.Kernel
	stepSize  float64
	rebuild   bool
	dual      adapt.DualAverage
	welford   *adapt.Welford
	draws     []pytree.Tree
	accepted  int
	divergent int
}

func newChain(logProb LogDensityFunc, cfg config, index int, key tensor.Key) *chain {
	tmpl := pytree.TemplateOf(cfg.initialParams)
	stepSize := adapt.Clamp(cfg.initialStepSize)
	return &chain{
		cfg:   cfg,
		index: index,
		id:    uuid.New(),
		tmpl:  tmpl,
		density: func(x *tensor.Tensor) (*tensor.Tensor, error) {
			p, err := pytree.Unflatten(x, tmpl)
			if err != nil {
				return nil, err
			}
			defer p.Dispose()
			return logProb(p)
		},
		key:      key,
		position: cfg.initialParams.Clone(),
		invMass:  tensor.Ones(tmpl.Size()),
		stepSize: stepSize,
		rebuild:  true,
		dual:     adapt.NewDualAverage(stepSize, cfg.targetAcceptRate),
		welford:  adapt.NewWelford(tmpl.Size()),
		draws:    make([]pytree.Tree, 0, cfg.numSamples),
	}
}

// release disposes every buffer the chain still owns.
func (c *chain) release() {
	c.position.Dispose()
	c.invMass.Dispose()
	if c.kern != nil {
		c.kern.Close()
		c.kern = nil
	}
	for _, d := range c.draws {
		d.Dispose()
	}
	c.draws = nil
}

// run drives the chain through warmup and sampling.
func (c *chain) run(ctx context.Context) (*ChainResult, error) {
	defer c.release()

	log := logger.ForChain(c.cfg.log, c.index, c.id)
	start := time.Now()
	cancellable := ctx.Done() != nil
	total := c.cfg.numWarmup + c.cfg.numSamples

	log.Debug("chain started", "warmup", c.cfg.numWarmup, "samples", c.cfg.numSamples, "dim", c.tmpl.Size())
	for iter := range total {
		if cancellable {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		if err := c.iterate(iter); err != nil {
			return nil, err
		}
		if iter == c.cfg.numWarmup-1 {
			log.Debug("warmup finished", "step_size", c.stepSize, "mass_adapted", c.cfg.adaptMassMatrix)
		}
	}

	res, err := c.result()
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	c.cfg.metrics.ChainDone(res.AcceptRate, res.StepSize, elapsed)
	log.Info("chain finished",
		"accept_rate", res.AcceptRate,
		"step_size", res.StepSize,
		"divergences", res.Divergences,
		"elapsed", elapsed,
	)
	return res, nil
}

// iterate performs one transition and the adaptation or recording that
// follows it. Every buffer allocated here is released before it returns.
func (c *chain) iterate(iter int) error {
	ph := phaseAt(iter, c.cfg.numWarmup, c.cfg.numWarmup+c.cfg.numSamples)

	var iterKey tensor.Key
	iterKey, c.key = c.key.Split2()

	flat := pytree.Flatten(c.position)
	defer flat.Dispose()

	if c.rebuild || (ph == warming && c.stepSize != c.kern.StepSize()) {
		if err := c.rebuildKernel(); err != nil {
			return err
		}
	}

	state, err := c.kern.Init(flat)
	if err != nil {
		return err
	}
	next, info, err := c.kern.Step(iterKey, state)
	state.Dispose()
	if err != nil {
		return err
	}
	defer next.Dispose()
	info.Dispose()

	position, err := pytree.Unflatten(next.Position, c.tmpl)
	if err != nil {
		return err
	}
	c.position.Dispose()
	c.position = position
	c.cfg.metrics.Iteration(ph.String())

	switch ph {
	case warming:
		c.dual = c.dual.Update(info.AcceptanceProb)
		c.stepSize = c.dual.StepSize()
		if c.cfg.adaptMassMatrix {
			c.welford.Update(next.Position.Data())
		}
		if iter == c.cfg.numWarmup-1 {
			c.finishWarmup()
		}
	case sampling:
		if info.IsAccepted {
			c.accepted++
		}
		if info.IsDivergent {
			c.divergent++
			c.cfg.metrics.Divergence()
		}
		c.draws = append(c.draws, c.position.Clone())
	}
	return nil
}

// finishWarmup freezes the averaged step size and, when enabled, replaces
// the inverse mass matrix with the estimated variances.
func (c *chain) finishWarmup() {
	c.stepSize = c.dual.FinalStepSize()
	if c.cfg.adaptMassMatrix {
		c.invMass.Dispose()
		c.invMass = tensor.FromSlice(c.welford.Variance())
	}
	c.rebuild = true
}

func (c *chain) rebuildKernel() error {
	k, err := kernel.New(c.density, kernel.Config{
		StepSize:    c.stepSize,
		NumSteps:    c.cfg.numLeapfrogSteps,
		InverseMass: c.invMass,
	})
	if err != nil {
		return err
	}
	if c.kern != nil {
		c.kern.Close()
	}
	c.kern = k
	c.rebuild = false
	return nil
}

func (c *chain) result() (*ChainResult, error) {
	draws, err := pytree.Stack(c.draws)
	if err != nil {
		return nil, err
	}
	mass, err := pytree.Unflatten(c.invMass, c.tmpl)
	if err != nil {
		draws.Dispose()
		return nil, err
	}
	return &ChainResult{
		ID:          c.id,
		Draws:       draws,
		AcceptRate:  float64(c.accepted) / float64(c.cfg.numSamples),
		StepSize:    c.stepSize,
		MassMatrix:  mass,
		Divergences: c.divergent,
	}, nil
}
