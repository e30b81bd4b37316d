// Package adapt holds the warmup adaptation state machines: Nesterov dual
// averaging for the step size and a Welford estimator for the diagonal
// inverse mass matrix. Both are plain values owned by a single chain.
package adapt

import "math"

// Step sizes are kept within these bounds.
const (
	MinStepSize = 1e-10
	MaxStepSize = 1e10
)

const (
	defaultGamma = 0.05
	defaultT0    = 10
	defaultKappa = 0.75
)

// DualAverage is the dual-averaging step size state.
type DualAverage struct {
	LogStepSize    float64
	LogStepSizeAvg float64
	HBar           float64
	Mu             float64
	T              int
	Gamma          float64
	T0             float64
	Kappa          float64
	Target         float64
}

// NewDualAverage starts adaptation from initialStepSize toward the target
// acceptance probability.
func NewDualAverage(initialStepSize, target float64) DualAverage {
	return DualAverage{
		LogStepSize: math.Log(initialStepSize),
		Mu:          math.Log(10 * initialStepSize),
		Gamma:       defaultGamma,
		T0:          defaultT0,
		Kappa:       defaultKappa,
		Target:      target,
	}
}

// Update folds in the acceptance probability of one warmup iteration. A
// non-finite probability counts as a rejection.
func (d DualAverage) Update(acceptProb float64) DualAverage {
	if math.IsNaN(acceptProb) {
		acceptProb = 0
	}
	acceptProb = min(max(acceptProb, 0), 1)

	d.T++
	t := float64(d.T)
	eta := 1 / (t + d.T0)
	d.HBar = (1-eta)*d.HBar + eta*(d.Target-acceptProb)
	d.LogStepSize = d.Mu - math.Sqrt(t)/d.Gamma*d.HBar
	w := math.Pow(t, -d.Kappa)
	d.LogStepSizeAvg = w*d.LogStepSize + (1-w)*d.LogStepSizeAvg
	return d
}

// StepSize is the step size for the next warmup proposal.
func (d DualAverage) StepSize() float64 {
	return Clamp(math.Exp(d.LogStepSize))
}

// FinalStepSize is the averaged step size frozen for sampling.
func (d DualAverage) FinalStepSize() float64 {
	return Clamp(math.Exp(d.LogStepSizeAvg))
}

// Clamp keeps a step size within [MinStepSize, MaxStepSize]. NaN maps to
// MinStepSize.
func Clamp(eps float64) float64 {
	if math.IsNaN(eps) {
		return MinStepSize
	}
	return min(max(eps, MinStepSize), MaxStepSize)
}
