// Package dist provides the probability distributions used as priors and
// likelihoods. Parameters are borrowed tensors: a distribution never disposes
// them, so one built inside a log density may reference values owned by the
// evaluation context. Constructors taking float64 use static constants and
// are meant for priors declared once per model.
//
// LogProb is elementwise; callers sum it. Values outside the support have a
// log density of -Inf.
package dist

import (
	"math"
	"math/rand/v2"

	"github.com/samcharles93/posterior/internal/tensor"
)

// Distribution is a batch of independent scalar distributions.
type Distribution interface {
	LogProb(x *tensor.Tensor) *tensor.Tensor
	// Sample draws values whose shape is shape broadcast with the parameter
	// shape. An empty shape draws one value per parameter element.
	Sample(key tensor.Key, shape ...int) *tensor.Tensor
	// Shape is the broadcast shape of the parameters.
	Shape() []int
	Support() Support
}

// SupportKind names the set a distribution puts its mass on.
type SupportKind int

const (
	Real SupportKind = iota
	Positive
	Interval
	Binary
)

func (k SupportKind) String() string {
	switch k {
	case Real:
		return "real"
	case Positive:
		return "positive"
	case Interval:
		return "interval"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Support describes where a distribution has mass. Low and High are set for
// Interval supports with scalar bounds.
type Support struct {
	Kind      SupportKind
	Low, High float64
}

var (
	logSqrt2Pi = 0.5 * math.Log(2*math.Pi)
	negInf     = tensor.Const(math.Inf(-1))
	zero       = tensor.Const(0)
)

func shapeOf(params ...*tensor.Tensor) []int {
	shapes := make([][]int, len(params))
	for i, p := range params {
		shapes[i] = p.Shape()
	}
	out, err := tensor.BroadcastShapes(shapes...)
	if err != nil {
		panic(err)
	}
	return out
}

// sampleEach draws one value per element of the output shape. draw receives
// the parameter values at that element.
func sampleEach(key tensor.Key, shape []int, params []*tensor.Tensor, draw func(src rand.Source, p []float64) float64) *tensor.Tensor {
	shapes := make([][]int, 0, len(params)+1)
	if len(shape) > 0 {
		shapes = append(shapes, shape)
	}
	for _, p := range params {
		shapes = append(shapes, p.Shape())
	}
	outShape, err := tensor.BroadcastShapes(shapes...)
	if err != nil {
		panic(err)
	}

	expanded := make([][]float64, len(params))
	for i, p := range params {
		b := tensor.BroadcastTo(p, outShape...)
		expanded[i] = b.Values()
		b.Dispose()
	}

	src := key.Source()
	out := tensor.New(outShape...)
	data := out.Data()
	vals := make([]float64, len(params))
	for i := range data {
		for j := range params {
			vals[j] = expanded[j][i]
		}
		data[i] = draw(src, vals)
	}
	return out
}
