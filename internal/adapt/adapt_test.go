package adapt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestDualAverageFirstUpdate(t *testing.T) {
	d := NewDualAverage(0.1, 0.8)
	d = d.Update(0.3)

	// t=1: eta=1/11, hBar=0.5/11, logEps=mu-hBar/0.05, w=1
	hBar := 0.5 / 11
	logEps := math.Log(1.0) - hBar/0.05
	assert.InDelta(t, hBar, d.HBar, 1e-15)
	assert.InDelta(t, logEps, d.LogStepSize, 1e-12)
	assert.InDelta(t, logEps, d.LogStepSizeAvg, 1e-12)
	assert.InDelta(t, math.Exp(logEps), d.StepSize(), 1e-12)
}

func TestDualAverageLowAcceptanceShrinksStep(t *testing.T) {
	d := NewDualAverage(1, 0.8)
	for range 50 {
		d = d.Update(0)
	}
	assert.Less(t, d.StepSize(), 1.0)
	assert.Less(t, d.FinalStepSize(), 1.0)
}

// Against a synthetic acceptance model that falls as the step size grows, the
// averaged step size settles at the point where acceptance meets the target.
func TestDualAverageConverges(t *testing.T) {
	accept := func(eps float64) float64 { return math.Exp(-eps) }
	d := NewDualAverage(0.1, 0.8)

	var prev float64
	for i := range 4000 {
		d = d.Update(accept(d.StepSize()))
		if i == 2999 {
			prev = d.FinalStepSize()
		}
	}
	final := d.FinalStepSize()
	assert.InDelta(t, prev, final, 1e-2*final, "averaged step size still moving")
	assert.InDelta(t, -math.Log(0.8), final, 0.02)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, MinStepSize, Clamp(0))
	assert.Equal(t, MinStepSize, Clamp(math.NaN()))
	assert.Equal(t, MaxStepSize, Clamp(math.Inf(1)))
	assert.Equal(t, 0.5, Clamp(0.5))

	d := NewDualAverage(0.1, 0.8)
	for range 20 {
		d = d.Update(1)
	}
	assert.LessOrEqual(t, d.StepSize(), MaxStepSize)
	d = d.Update(math.NaN())
	assert.False(t, math.IsNaN(d.StepSize()))
}

func TestWelfordMatchesClosedForm(t *testing.T) {
	const n = 500
	w := NewWelford(2)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range n {
		x := math.Sin(float64(i)) * 3
		y := 10 + float64(i%7)
		xs[i], ys[i] = x, y
		w.Update([]float64{x, y})
	}
	require.Equal(t, n, w.Count)

	mx, vx := stat.MeanVariance(xs, nil)
	my, vy := stat.MeanVariance(ys, nil)
	assert.InDelta(t, mx, w.Mean[0], 1e-12)
	assert.InDelta(t, my, w.Mean[1], 1e-12)

	v := w.Variance()
	assert.InDelta(t, vx, v[0], 1e-10)
	assert.InDelta(t, vy, v[1], 1e-10)
}

func TestWelfordFloorAndSmallCount(t *testing.T) {
	w := NewWelford(3)
	assert.Equal(t, []float64{1, 1, 1}, w.Variance())

	w.Update([]float64{1, 2, 3})
	assert.Equal(t, []float64{1, 1, 1}, w.Variance())

	w.Update([]float64{1, 2, 3.0001})
	v := w.Variance()
	assert.Equal(t, VarianceFloor, v[0])
	assert.Equal(t, VarianceFloor, v[2])

	w.Reset()
	assert.Zero(t, w.Count)
	assert.Equal(t, []float64{1, 1, 1}, w.Variance())
}
