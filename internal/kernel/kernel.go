// Package kernel implements one Hamiltonian Monte Carlo transition: momentum
// refresh, a fixed number of leapfrog steps and a Metropolis accept/reject.
// Positions are flat 1-D tensors; the log density is differentiated with the
// tensor tape on every leapfrog step.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/samcharles93/posterior/internal/tensor"
)

// DivergenceThreshold is the energy error above which a transition is
// reported divergent.
const DivergenceThreshold = 1000

var ErrInvalidConfig = errors.New("kernel: invalid config")

// LogDensityFunc maps a flat position to a 0-d log density. The result is
// owned by the caller.
type LogDensityFunc func(x *tensor.Tensor) (*tensor.Tensor, error)

// Config holds the integrator tunables.
type Config struct {
	StepSize float64
	NumSteps int
	// InverseMass is the diagonal of the inverse mass matrix. Nil means the
	// identity.
	InverseMass *tensor.Tensor
}

// Kernel is an HMC transition bound to one set of tunables. It holds a
// reference to its inverse mass buffer until Close.
type Kernel struct {
	logDensity LogDensityFunc
	stepSize   float64
	numSteps   int
	invMass    *tensor.Tensor
}

// New builds a kernel for logDensity.
func New(logDensity LogDensityFunc, cfg Config) (*Kernel, error) {
	if logDensity == nil {
		return nil, fmt.Errorf("%w: nil log density", ErrInvalidConfig)
	}
	if !(cfg.StepSize > 0) || math.IsInf(cfg.StepSize, 0) {
		return nil, fmt.Errorf("%w: step size %g", ErrInvalidConfig, cfg.StepSize)
	}
	if cfg.NumSteps < 1 {
		return nil, fmt.Errorf("%w: %d leapfrog steps", ErrInvalidConfig, cfg.NumSteps)
	}
	k := &Kernel{logDensity: logDensity, stepSize: cfg.StepSize, numSteps: cfg.NumSteps}
	if cfg.InverseMass != nil {
		if cfg.InverseMass.Ndim() != 1 {
			return nil, fmt.Errorf("%w: inverse mass of shape %v", ErrInvalidConfig, cfg.InverseMass.Shape())
		}
		k.invMass = cfg.InverseMass.Ref()
	}
	return k, nil
}

// StepSize returns the leapfrog step size.
func (k *Kernel) StepSize() float64 { return k.stepSize }

// Close releases the inverse mass buffer.
func (k *Kernel) Close() {
	k.invMass.Dispose()
	k.invMass = nil
}

// State is a position with its log density and gradient. Its tensors are
// owned by whoever holds the state.
type State struct {
	Position   *tensor.Tensor
	LogDensity float64
	Grad       *tensor.Tensor
}

// Dispose releases the position and gradient.
func (s *State) Dispose() {
	if s == nil {
		return
	}
	tensor.DisposeAll(s.Position, s.Grad)
	s.Position, s.Grad = nil, nil
}

// Info describes one transition.
type Info struct {
	AcceptanceProb float64
	IsAccepted     bool
	IsDivergent    bool
	// Energy is the Hamiltonian at the end of the trajectory.
	Energy float64
	// Momentum is the final momentum of the trajectory, owned by the caller.
	Momentum *tensor.Tensor
}

// Dispose releases the momentum buffer.
func (i *Info) Dispose() {
	i.Momentum.Dispose()
	i.Momentum = nil
}

// Init evaluates the log density and its gradient at position, which is
// borrowed.
func (k *Kernel) Init(position *tensor.Tensor) (*State, error) {
	if position.Ndim() != 1 {
		return nil, fmt.Errorf("%w: position of shape %v, want a vector", ErrInvalidConfig, position.Shape())
	}
	if k.invMass != nil && k.invMass.Size() != position.Size() {
		return nil, fmt.Errorf("%w: inverse mass of size %d for position of size %d", ErrInvalidConfig, k.invMass.Size(), position.Size())
	}
	lp, grad, err := tensor.ValueAndGrad(k.logDensity, position)
	if err != nil {
		return nil, err
	}
	return &State{Position: position.Clone(), LogDensity: lp, Grad: grad}, nil
}

// Step runs one transition from s, which is borrowed. The returned state is
// always a fresh owned value, equal to s when the proposal is rejected.
func (k *Kernel) Step(key tensor.Key, s *State) (*State, Info, error) {
	n := s.Position.Size()
	momentumKey, acceptKey := key.Split2()

	invMass := k.inverseMass(n)
	z := tensor.Normal(momentumKey, n)
	p := z.Values()
	z.Dispose()
	for i := range p {
		p[i] /= math.Sqrt(invMass[i])
	}

	h0 := k.kinetic(p, invMass) - s.LogDensity

	q := s.Position.Values()
	g := s.Grad.Values()
	lp := s.LogDensity
	v := make([]float64, n)
	eps := k.stepSize
	for range k.numSteps {
		floats.AddScaled(p, eps/2, g)
		floats.MulTo(v, invMass, p)
		floats.AddScaled(q, eps, v)

		var err error
		lp, g, err = k.evaluate(q)
		if err != nil {
			return nil, Info{}, err
		}
		floats.AddScaled(p, eps/2, g)
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			break
		}
	}

	h1 := k.kinetic(p, invMass) - lp
	dH := h1 - h0
	acceptProb := math.Min(1, math.Exp(-dH))
	if math.IsNaN(acceptProb) {
		acceptProb = 0
	}
	info := Info{
		AcceptanceProb: acceptProb,
		IsDivergent:    math.IsNaN(dH) || math.IsInf(dH, 0) || dH > DivergenceThreshold,
		Energy:         h1,
		Momentum:       tensor.FromSlice(p),
	}

	u := acceptKey.Rand().Float64()
	if u < acceptProb {
		info.IsAccepted = true
		return &State{
			Position:   tensor.FromSlice(q),
			LogDensity: lp,
			Grad:       tensor.FromSlice(g),
		}, info, nil
	}
	return &State{
		Position:   s.Position.Clone(),
		LogDensity: s.LogDensity,
		Grad:       s.Grad.Clone(),
	}, info, nil
}

func (k *Kernel) evaluate(q []float64) (float64, []float64, error) {
	x := tensor.FromSlice(q)
	defer x.Dispose()
	lp, grad, err := tensor.ValueAndGrad(k.logDensity, x)
	if err != nil {
		return 0, nil, err
	}
	defer grad.Dispose()
	return lp, grad.Values(), nil
}

func (k *Kernel) inverseMass(n int) []float64 {
	if k.invMass != nil {
		return k.invMass.Data()
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}

// kinetic is 0.5 * sum(invMass * p^2).
func (k *Kernel) kinetic(p, invMass []float64) float64 {
	var e float64
	for i, v := range p {
		e += invMass[i] * v * v
	}
	return 0.5 * e
}
