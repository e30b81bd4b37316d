package adapt

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// VarianceFloor bounds every finalized variance from below.
const VarianceFloor = 1e-3

// Welford accumulates per-dimension mean and squared deviations online.
type Welford struct {
	Count int
	Mean  []float64
	M2    []float64

	delta []float64
}

// NewWelford returns an estimator for vectors of length dim.
func NewWelford(dim int) *Welford {
	return &Welford{
		Mean:  make([]float64, dim),
		M2:    make([]float64, dim),
		delta: make([]float64, dim),
	}
}

// Update adds one observation.
func (w *Welford) Update(x []float64) {
	if len(x) != len(w.Mean) {
		panic(fmt.Sprintf("adapt: welford update of length %d, want %d", len(x), len(w.Mean)))
	}
	w.Count++
	n := float64(w.Count)
	// delta = x - mean; mean += delta/n; m2 += delta * (x - mean)
	floats.SubTo(w.delta, x, w.Mean)
	floats.AddScaled(w.Mean, 1/n, w.delta)
	for i, v := range x {
		w.M2[i] += w.delta[i] * (v - w.Mean[i])
	}
}

// Variance returns the floored sample variance per dimension, or ones when
// fewer than two observations were seen. It is used as the inverse mass
// matrix.
func (w *Welford) Variance() []float64 {
	out := make([]float64, len(w.M2))
	if w.Count < 2 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	floats.ScaleTo(out, 1/float64(w.Count-1), w.M2)
	for i, v := range out {
		out[i] = max(v, VarianceFloor)
	}
	return out
}

// Reset clears every accumulated observation.
func (w *Welford) Reset() {
	w.Count = 0
	clear(w.Mean)
	clear(w.M2)
}
