package dist

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samcharles93/posterior/internal/tensor"
)

// Normal is the Gaussian distribution.
type Normal struct {
	Loc, Scale *tensor.Tensor
}

// NewNormal returns a Normal with constant parameters.
func NewNormal(loc, scale float64) Normal {
	return Normal{Loc: tensor.Const(loc), Scale: tensor.Const(scale)}
}

func (d Normal) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	z := s.T(tensor.Div(s.T(tensor.Sub(x, d.Loc)), d.Scale))
	quad := s.T(tensor.MulScalar(s.T(tensor.Square(z)), -0.5))
	lp := s.T(tensor.Sub(quad, s.T(tensor.Log(d.Scale))))
	return tensor.AddScalar(lp, -logSqrt2Pi)
}

func (d Normal) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Loc, d.Scale}, func(src rand.Source, p []float64) float64 {
		return distuv.Normal{Mu: p[0], Sigma: p[1], Src: src}.Rand()
	})
}

func (d Normal) Shape() []int     { return shapeOf(d.Loc, d.Scale) }
func (d Normal) Support() Support { return Support{Kind: Real} }

// HalfNormal is a zero-mean Normal folded onto the positive half line.
type HalfNormal struct {
	Scale *tensor.Tensor
}

// NewHalfNormal returns a HalfNormal with a constant scale.
func NewHalfNormal(scale float64) HalfNormal {
	return HalfNormal{Scale: tensor.Const(scale)}
}

func (d HalfNormal) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	base := s.T(Normal{Loc: zero, Scale: d.Scale}.LogProb(x))
	inside := s.T(tensor.Greater(x, zero))
	return tensor.Where(inside, s.T(tensor.AddScalar(base, math.Ln2)), negInf)
}

func (d HalfNormal) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Scale}, func(src rand.Source, p []float64) float64 {
		return math.Abs(distuv.Normal{Mu: 0, Sigma: p[0], Src: src}.Rand())
	})
}

func (d HalfNormal) Shape() []int     { return d.Scale.Shape() }
func (d HalfNormal) Support() Support { return Support{Kind: Positive} }

// HalfCauchy is a zero-centred Cauchy folded onto the positive half line.
type HalfCauchy struct {
	Scale *tensor.Tensor
}

// NewHalfCauchy returns a HalfCauchy with a constant scale.
func NewHalfCauchy(scale float64) HalfCauchy {
	return HalfCauchy{Scale: tensor.Const(scale)}
}

func (d HalfCauchy) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	z := s.T(tensor.Div(x, d.Scale))
	denom := s.T(tensor.Log1p(s.T(tensor.Square(z))))
	norm := s.T(tensor.Add(denom, s.T(tensor.Log(d.Scale))))
	base := s.T(tensor.RSub(math.Ln2-math.Log(math.Pi), norm))
	inside := s.T(tensor.Greater(x, zero))
	return tensor.Where(inside, base, negInf)
}

// Sample uses a Student's t with one degree of freedom, which is the Cauchy.
func (d HalfCauchy) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Scale}, func(src rand.Source, p []float64) float64 {
		return math.Abs(distuv.StudentsT{Mu: 0, Sigma: p[0], Nu: 1, Src: src}.Rand())
	})
}

func (d HalfCauchy) Shape() []int     { return d.Scale.Shape() }
func (d HalfCauchy) Support() Support { return Support{Kind: Positive} }

// Exponential has density rate * exp(-rate * x) on x >= 0.
type Exponential struct {
	Rate *tensor.Tensor
}

// NewExponential returns an Exponential with a constant rate.
func NewExponential(rate float64) Exponential {
	return Exponential{Rate: tensor.Const(rate)}
}

func (d Exponential) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	base := s.T(tensor.Sub(s.T(tensor.Log(d.Rate)), s.T(tensor.Mul(d.Rate, x))))
	inside := s.T(tensor.GreaterEqual(x, zero))
	return tensor.Where(inside, base, negInf)
}

func (d Exponential) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Rate}, func(src rand.Source, p []float64) float64 {
		return distuv.Exponential{Rate: p[0], Src: src}.Rand()
	})
}

func (d Exponential) Shape() []int     { return d.Rate.Shape() }
func (d Exponential) Support() Support { return Support{Kind: Positive} }

// Uniform is flat on [Low, High].
type Uniform struct {
	Low, High *tensor.Tensor
}

// NewUniform returns a Uniform with constant bounds.
func NewUniform(low, high float64) Uniform {
	return Uniform{Low: tensor.Const(low), High: tensor.Const(high)}
}

func (d Uniform) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	logRange := s.T(tensor.Log(s.T(tensor.Sub(d.High, d.Low))))
	above := s.T(tensor.GreaterEqual(x, d.Low))
	below := s.T(tensor.LessEqual(x, d.High))
	inside := s.T(tensor.Mul(above, below))
	return tensor.Where(inside, s.T(tensor.Neg(logRange)), negInf)
}

func (d Uniform) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Low, d.High}, func(src rand.Source, p []float64) float64 {
		return distuv.Uniform{Min: p[0], Max: p[1], Src: src}.Rand()
	})
}

func (d Uniform) Shape() []int { return shapeOf(d.Low, d.High) }

func (d Uniform) Support() Support {
	sup := Support{Kind: Interval, Low: math.Inf(-1), High: math.Inf(1)}
	if d.Low.Size() == 1 && d.High.Size() == 1 {
		sup.Low, sup.High = d.Low.Item(), d.High.Item()
	}
	return sup
}
