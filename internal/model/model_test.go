package model

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/samcharles93/posterior/internal/constraint"
	"github.com/samcharles93/posterior/internal/dist"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

func normalLogPDF(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return -0.5*z*z - math.Log(sigma) - 0.5*math.Log(2*math.Pi)
}

func eightSchools(t *testing.T) *Model {
	t.Helper()
	m, err := New(
		Data("sigma", WithShape("J")),
		Param("mu", dist.NewNormal(0, 5)),
		Param("tau", dist.NewHalfCauchy(5), WithConstraint(constraint.Positive())),
		Param("thetaRaw", dist.NewNormal(0, 1), WithShape("J")),
		Derived("theta", func(ctx *Context) *tensor.Tensor {
			scaled := ctx.Own(tensor.Mul(ctx.MustGet("tau"), ctx.MustGet("thetaRaw")))
			return tensor.Add(ctx.MustGet("mu"), scaled)
		}, "mu", "tau", "thetaRaw"),
		Observed("y", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("theta"), Scale: ctx.MustGet("sigma")}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func schoolsData() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"y":     tensor.FromSlice([]float64{28, 8, -3, 7, -1, 1, 18, 12}),
		"sigma": tensor.FromSlice([]float64{15, 10, 16, 11, 9, 11, 10, 18}),
	}
}

func disposeMap(m map[string]*tensor.Tensor) {
	for _, v := range m {
		v.Dispose()
	}
}

func TestBindCompleteness(t *testing.T) {
	m, err := New(
		Param("mu", dist.NewNormal(0, 1)),
		Observed("a", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("mu"), Scale: tensor.Const(1)}
		}),
		Observed("b", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("mu"), Scale: tensor.Const(2)}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, b := tensor.Scalar(0.5), tensor.Scalar(-1)
	defer tensor.DisposeAll(a, b)

	if _, err := m.Bind(map[string]*tensor.Tensor{"a": a}); !errors.Is(err, ErrPartialObservation) {
		t.Fatalf("partial binding: expected ErrPartialObservation, got %v", err)
	}

	full, err := m.Bind(map[string]*tensor.Tensor{"a": a, "b": b})
	if err != nil {
		t.Fatalf("complete binding: %v", err)
	}
	defer full.Close()
	if full.State() != Complete || full.LogProb == nil {
		t.Fatalf("complete binding: state %v, logProb set %v", full.State(), full.LogProb != nil)
	}

	params := pytree.New([]string{"mu"}, []*tensor.Tensor{tensor.Scalar(0.25)})
	defer params.Dispose()
	lp, err := full.LogProb(params)
	if err != nil {
		t.Fatalf("LogProb: %v", err)
	}
	defer lp.Dispose()
	want := normalLogPDF(0.25, 0, 1) + normalLogPDF(0.5, 0.25, 1) + normalLogPDF(-1, 0.25, 2)
	if lp.Ndim() != 0 || math.Abs(lp.Item()-want) > 1e-12 {
		t.Fatalf("LogProb: got %v want %g", lp, want)
	}

	pred, err := m.Bind(nil)
	if err != nil {
		t.Fatalf("predictive binding: %v", err)
	}
	defer pred.Close()
	if pred.State() != Predictive || pred.LogProb != nil {
		t.Fatalf("predictive binding: state %v, logProb set %v", pred.State(), pred.LogProb != nil)
	}
}

func TestLogProbAppliesJacobian(t *testing.T) {
	m, err := New(
		Param("s", dist.NewExponential(2), WithConstraint(constraint.Positive())),
		Param("p", dist.NewUniform(0, 1), WithConstraint(constraint.MustBounded(0, 1))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bm, err := m.Bind(nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	const us, up = 0.3, -0.4
	params := pytree.New([]string{"s", "p"}, []*tensor.Tensor{tensor.Scalar(us), tensor.Scalar(up)})
	defer params.Dispose()
	lp, err := bm.LogProb(params)
	if err != nil {
		t.Fatalf("LogProb: %v", err)
	}
	defer lp.Dispose()

	s := math.Exp(us)
	sig := 1 / (1 + math.Exp(-up))
	want := (math.Log(2) - 2*s) + us + 0 + math.Log(sig) + math.Log(1-sig)
	if math.Abs(lp.Item()-want) > 1e-12 {
		t.Fatalf("LogProb: got %.15g want %.15g", lp.Item(), want)
	}
}

func TestLogProbErrors(t *testing.T) {
	data := schoolsData()
	defer disposeMap(data)
	bm, err := eightSchools(t).Bind(data)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	missing := pytree.New([]string{"mu", "tau"}, []*tensor.Tensor{tensor.Scalar(0), tensor.Scalar(0)})
	defer missing.Dispose()
	if _, err := bm.LogProb(missing); !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}

	wrong := pytree.New([]string{"mu", "tau", "thetaRaw"}, []*tensor.Tensor{tensor.Scalar(0), tensor.Scalar(0), tensor.Zeros(7)})
	defer wrong.Dispose()
	if _, err := bm.LogProb(wrong); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestEightSchoolsLogProbAndGradient(t *testing.T) {
	data := schoolsData()
	defer disposeMap(data)
	bm, err := eightSchools(t).Bind(data)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	if got := bm.Dims(); got["J"] != 8 {
		t.Fatalf("dims: %v", got)
	}
	tmpl := bm.Template()
	if !slices.Equal(tmpl.Names(), []string{"mu", "tau", "thetaRaw"}) || tmpl.Size() != 10 {
		t.Fatalf("template: names %v size %d", tmpl.Names(), tmpl.Size())
	}

	before := tensor.Live()
	x := tensor.FromSlice([]float64{1, 0.5, 0.1, -0.2, 0.3, 0, 1, -1, 0.5, 0.2})
	f := func(flat *tensor.Tensor) (*tensor.Tensor, error) {
		p, err := pytree.Unflatten(flat, tmpl)
		if err != nil {
			return nil, err
		}
		defer p.Dispose()
		return bm.LogProb(p)
	}

	v, g, err := tensor.ValueAndGrad(f, x)
	if err != nil {
		t.Fatalf("ValueAndGrad: %v", err)
	}

	y := []float64{28, 8, -3, 7, -1, 1, 18, 12}
	sigma := []float64{15, 10, 16, 11, 9, 11, 10, 18}
	xs := x.Values()
	mu, utau := xs[0], xs[1]
	tau := math.Exp(utau)
	want := normalLogPDF(mu, 0, 5) + utau + math.Ln2 - math.Log(math.Pi*5*(1+tau*tau/25))
	for j := range 8 {
		want += normalLogPDF(xs[2+j], 0, 1)
		want += normalLogPDF(y[j], mu+tau*xs[2+j], sigma[j])
	}
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("log density: got %.12g want %.12g", v, want)
	}

	const eps = 1e-6
	for i := range xs {
		plus := slices.Clone(xs)
		minus := slices.Clone(xs)
		plus[i] += eps
		minus[i] -= eps
		fp := evalFlat(t, f, plus)
		fm := evalFlat(t, f, minus)
		num := (fp - fm) / (2 * eps)
		if math.Abs(g.Data()[i]-num) > 1e-4*math.Max(1, math.Abs(num)) {
			t.Fatalf("grad[%d]: got %g want %g", i, g.Data()[i], num)
		}
	}

	tensor.DisposeAll(x, g)
	if got := tensor.Live(); got != before {
		t.Fatalf("leaked %d tensors", got-before)
	}
}

func evalFlat(t *testing.T, f func(*tensor.Tensor) (*tensor.Tensor, error), xs []float64) float64 {
	t.Helper()
	x := tensor.FromSlice(xs)
	defer x.Dispose()
	out, err := f(x)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	defer out.Dispose()
	return out.Item()
}

func TestBindShapeErrors(t *testing.T) {
	m, err := New(
		Data("x", WithShape("N", 2)),
		Data("w", WithShape("N")),
		Param("beta", dist.NewNormal(0, 1), WithShape("K")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x := tensor.Zeros(3, 2)
	w4 := tensor.Zeros(4)
	w3 := tensor.Zeros(3)
	x3 := tensor.Zeros(3, 3)
	defer tensor.DisposeAll(x, w4, w3, x3)

	if _, err := m.Bind(map[string]*tensor.Tensor{"x": x}); !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
	if _, err := m.Bind(map[string]*tensor.Tensor{"x": x, "w": w4}); !errors.Is(err, ErrDimensionConflict) {
		t.Fatalf("expected ErrDimensionConflict, got %v", err)
	}
	if _, err := m.Bind(map[string]*tensor.Tensor{"x": x3, "w": w3}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := m.Bind(map[string]*tensor.Tensor{"x": x, "w": w3}); !errors.Is(err, ErrUnresolvedDimension) {
		t.Fatalf("expected ErrUnresolvedDimension, got %v", err)
	}
}

func TestScalarBindsDimension(t *testing.T) {
	m, err := New(
		Data("K", WithShape("K")),
		Param("beta", dist.NewNormal(0, 1), WithShape("K")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k := tensor.Scalar(3)
	defer k.Dispose()
	bm, err := m.Bind(map[string]*tensor.Tensor{"K": k})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()
	if shape, _ := bm.Template().Shape("beta"); !slices.Equal(shape, []int{3}) {
		t.Fatalf("beta shape: got %v want [3]", shape)
	}

	bad := tensor.Scalar(2.5)
	defer bad.Dispose()
	if _, err := m.Bind(map[string]*tensor.Tensor{"K": bad}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	prior := dist.NewNormal(0, 1)
	cases := []struct {
		name    string
		entries []Entry
		want    error
	}{
		{"duplicate", []Entry{Param("a", prior), Data("a")}, ErrDuplicateName},
		{"nil entry", []Entry{nil}, ErrUnsupportedSpecEntry},
		{"no prior", []Entry{Param("a", nil)}, ErrUnsupportedSpecEntry},
		{"bad shape token", []Entry{Param("a", prior, WithShape(1.5))}, ErrUnsupportedSpecEntry},
		{"constrained data", []Entry{Data("a", WithConstraint(constraint.Positive()))}, ErrUnsupportedSpecEntry},
		{"derived out of order", []Entry{
			Derived("b", func(ctx *Context) *tensor.Tensor { return ctx.MustGet("c").Ref() }, "c"),
			Derived("c", func(ctx *Context) *tensor.Tensor { return tensor.Scalar(1) }),
		}, ErrUnsupportedSpecEntry},
		{"derived unknown dep", []Entry{
			Derived("b", func(ctx *Context) *tensor.Tensor { return tensor.Scalar(1) }, "nope"),
		}, ErrUnsupportedSpecEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.entries...); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// params and data may be referenced regardless of position
	if _, err := New(
		Derived("d", func(ctx *Context) *tensor.Tensor { return ctx.MustGet("a").Ref() }, "a"),
		Param("a", prior),
	); err != nil {
		t.Fatalf("derived on a later param: %v", err)
	}
}

func TestUnknownNameInFactory(t *testing.T) {
	m, err := New(
		Param("mu", dist.NewNormal(0, 1)),
		Observed("y", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("nu"), Scale: tensor.Const(1)}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y := tensor.Scalar(1)
	defer y.Dispose()
	bm, err := m.Bind(map[string]*tensor.Tensor{"y": y})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	before := tensor.Live()
	params := pytree.New([]string{"mu"}, []*tensor.Tensor{tensor.Scalar(0)})
	_, err = bm.LogProb(params)
	params.Dispose()
	if !errors.Is(err, ErrUnknownName) {
		t.Fatalf("expected ErrUnknownName, got %v", err)
	}
	if got := tensor.Live(); got != before {
		t.Fatalf("leaked %d tensors on the error path", got-before)
	}
}

func TestSamplePriorAndSimulate(t *testing.T) {
	data := schoolsData()
	defer disposeMap(data)
	bm, err := eightSchools(t).Bind(data)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	key := tensor.NewKey(7)
	p1, err := bm.SamplePrior(key)
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	defer p1.Dispose()
	if !pytree.TemplateOf(p1).Equal(bm.Template()) {
		t.Fatalf("prior draw structure %v does not match template", p1.Names())
	}
	p2, err := bm.SamplePrior(key)
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	defer p2.Dispose()
	f1, f2 := pytree.Flatten(p1), pytree.Flatten(p2)
	defer tensor.DisposeAll(f1, f2)
	if !slices.Equal(f1.Values(), f2.Values()) {
		t.Fatalf("prior draws differ for the same key")
	}

	lp, err := bm.LogProb(p1)
	if err != nil {
		t.Fatalf("LogProb(prior draw): %v", err)
	}
	defer lp.Dispose()
	if !lp.IsFinite() {
		t.Fatalf("LogProb(prior draw) = %v", lp)
	}

	sim, err := bm.Simulate(p1, tensor.NewKey(8))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	defer disposeMap(sim)
	if y := sim["y"]; y == nil || !slices.Equal(y.Shape(), []int{8}) {
		t.Fatalf("simulated y: %v", y)
	}
}

func TestSimulateUsesBoundObservationShape(t *testing.T) {
	m, err := New(
		Param("mu", dist.NewNormal(0, 1)),
		Observed("y", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("mu"), Scale: tensor.Const(1)}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y := tensor.FromSlice([]float64{0.1, 0.2, 0.3})
	defer y.Dispose()
	bm, err := m.Bind(map[string]*tensor.Tensor{"y": y})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	params := pytree.New([]string{"mu"}, []*tensor.Tensor{tensor.Scalar(0)})
	defer params.Dispose()
	sim, err := bm.Simulate(params, tensor.NewKey(1))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	defer disposeMap(sim)
	if got := sim["y"].Shape(); !slices.Equal(got, []int{3}) {
		t.Fatalf("simulated shape: got %v want [3]", got)
	}

	pred, err := m.Bind(nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer pred.Close()
	psim, err := pred.Simulate(params, tensor.NewKey(1))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	defer disposeMap(psim)
	if got := psim["y"].Ndim(); got != 0 {
		t.Fatalf("predictive simulated rank: got %d want 0", got)
	}
}

func TestFactoryPrior(t *testing.T) {
	m, err := New(
		Param("scale", dist.NewExponential(1), WithConstraint(constraint.Positive())),
		PriorFrom("z", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: tensor.Const(0), Scale: ctx.MustGet("scale")}
		}, WithShape(4)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bm, err := m.Bind(nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bm.Close()

	draw, err := bm.SamplePrior(tensor.NewKey(3))
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	defer draw.Dispose()
	z, _ := draw.Get("z")
	if !slices.Equal(z.Shape(), []int{4}) {
		t.Fatalf("z shape: %v", z.Shape())
	}

	params := pytree.New([]string{"scale", "z"}, []*tensor.Tensor{tensor.Scalar(math.Log(2)), tensor.FromSlice([]float64{1, -1, 0, 2})})
	defer params.Dispose()
	lp, err := bm.LogProb(params)
	if err != nil {
		t.Fatalf("LogProb: %v", err)
	}
	defer lp.Dispose()
	want := -2 + math.Log(2)
	for _, v := range []float64{1, -1, 0, 2} {
		want += normalLogPDF(v, 0, 2)
	}
	if math.Abs(lp.Item()-want) > 1e-12 {
		t.Fatalf("LogProb: got %.15g want %.15g", lp.Item(), want)
	}
}

func TestObservedValuesDoNotResolveDimensions(t *testing.T) {
	m, err := New(
		Param("theta", dist.NewNormal(0, 1), WithShape("N")),
		Observed("y", func(ctx *Context) dist.Distribution {
			return dist.Normal{Loc: ctx.MustGet("theta"), Scale: tensor.Const(1)}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y := tensor.Zeros(4)
	defer y.Dispose()
	if _, err := m.Bind(map[string]*tensor.Tensor{"y": y}); !errors.Is(err, ErrUnresolvedDimension) {
		t.Fatalf("expected ErrUnresolvedDimension, got %v", err)
	}
}
