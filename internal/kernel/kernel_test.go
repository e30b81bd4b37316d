package kernel

import (
	"errors"
	"math"
	"slices"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/posterior/internal/tensor"
)

// gaussian is the log density of independent normals with the given scales.
func gaussian(scales ...float64) LogDensityFunc {
	prec := make([]float64, len(scales))
	for i, s := range scales {
		prec[i] = -0.5 / (s * s)
	}
	w := tensor.ConstSlice(prec)
	return func(x *tensor.Tensor) (*tensor.Tensor, error) {
		var s tensor.Scope
		defer s.Close()
		return tensor.Sum(s.T(tensor.Mul(w, s.T(tensor.Square(x))))), nil
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	f := gaussian(1)
	for _, cfg := range []Config{
		{StepSize: 0, NumSteps: 1},
		{StepSize: math.NaN(), NumSteps: 1},
		{StepSize: 0.1, NumSteps: 0},
	} {
		if _, err := New(f, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("New(%+v): expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestInitComputesGradient(t *testing.T) {
	k, err := New(gaussian(1, 2), Config{StepSize: 0.1, NumSteps: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer k.Close()
	x := tensor.FromSlice([]float64{1, 2})
	defer x.Dispose()
	s, err := k.Init(x)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()
	if want := -0.5 - 0.5; math.Abs(s.LogDensity-want) > 1e-12 {
		t.Fatalf("log density: got %g want %g", s.LogDensity, want)
	}
	if got := s.Grad.Values(); !slices.Equal(got, []float64{-1, -0.5}) {
		t.Fatalf("grad: got %v", got)
	}
}

func TestSmallStepConservesEnergy(t *testing.T) {
	k, err := New(gaussian(1, 1, 1), Config{StepSize: 1e-3, NumSteps: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer k.Close()
	x := tensor.FromSlice([]float64{0.5, -1, 2})
	defer x.Dispose()
	s, err := k.Init(x)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	next, info, err := k.Step(tensor.NewKey(1), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	defer next.Dispose()
	defer info.Dispose()
	if info.AcceptanceProb < 0.999 || !info.IsAccepted || info.IsDivergent {
		t.Fatalf("expected a near-exact trajectory, got %+v", info)
	}
	if slices.Equal(next.Position.Values(), s.Position.Values()) {
		t.Fatalf("accepted proposal did not move")
	}
}

func TestDivergentProposalIsRejected(t *testing.T) {
	k, err := New(gaussian(1e-3), Config{StepSize: 10, NumSteps: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer k.Close()
	x := tensor.FromSlice([]float64{1e-3})
	defer x.Dispose()
	s, err := k.Init(x)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	next, info, err := k.Step(tensor.NewKey(2), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	defer next.Dispose()
	defer info.Dispose()
	if !info.IsDivergent || info.IsAccepted || info.AcceptanceProb != 0 {
		t.Fatalf("expected a rejected divergence, got %+v", info)
	}
	if !slices.Equal(next.Position.Values(), s.Position.Values()) {
		t.Fatalf("rejected step moved the position")
	}
}

func TestStepIsDeterministicPerKey(t *testing.T) {
	k, err := New(gaussian(1, 3), Config{StepSize: 0.3, NumSteps: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer k.Close()
	x := tensor.FromSlice([]float64{0.1, 0.2})
	defer x.Dispose()
	s, err := k.Init(x)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	a, ia, _ := k.Step(tensor.NewKey(9), s)
	b, ib, _ := k.Step(tensor.NewKey(9), s)
	defer a.Dispose()
	defer b.Dispose()
	defer ia.Dispose()
	defer ib.Dispose()
	if !slices.Equal(a.Position.Values(), b.Position.Values()) || ia.AcceptanceProb != ib.AcceptanceProb {
		t.Fatalf("same key gave different transitions")
	}
}

func TestChainTargetsGaussianWithMass(t *testing.T) {
	before := tensor.Live()
	scales := []float64{1, 5}
	invMass := tensor.FromSlice([]float64{1, 25})
	k, err := New(gaussian(scales...), Config{StepSize: 0.4, NumSteps: 10, InverseMass: invMass})
	invMass.Dispose()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x := tensor.FromSlice([]float64{0, 0})
	s, err := k.Init(x)
	x.Dispose()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	const n = 3000
	draws := [2][]float64{make([]float64, n), make([]float64, n)}
	accepted := 0
	key := tensor.NewKey(11)
	for i := range n {
		var iterKey tensor.Key
		iterKey, key = key.Split2()
		next, info, err := k.Step(iterKey, s)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if info.IsAccepted {
			accepted++
		}
		info.Dispose()
		s.Dispose()
		s = next
		draws[0][i] = s.Position.Data()[0]
		draws[1][i] = s.Position.Data()[1]
	}
	s.Dispose()
	k.Close()

	if rate := float64(accepted) / n; rate < 0.7 {
		t.Fatalf("acceptance rate %g too low for a well scaled mass", rate)
	}
	for d, scale := range scales {
		mean, variance := stat.MeanVariance(draws[d], nil)
		if math.Abs(mean) > 0.25*scale {
			t.Fatalf("dim %d: mean %g", d, mean)
		}
		if sd := math.Sqrt(variance); math.Abs(sd-scale) > 0.2*scale {
			t.Fatalf("dim %d: sd %g want %g", d, sd, scale)
		}
	}
	if got := tensor.Live(); got != before {
		t.Fatalf("leaked %d tensors", got-before)
	}
}
