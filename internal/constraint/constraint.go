// Package constraint maps unconstrained real values onto restricted domains.
// The sampler works on the real line; the model declares priors on the
// constrained value and adds LogDetJacobian to the log density.
package constraint

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/posterior/internal/tensor"
)

var (
	// ErrInvalidConfiguration is matched by every constraint construction error.
	ErrInvalidConfiguration = errors.New("constraint: invalid configuration")

	// ErrInvalidBounds is returned when high <= low.
	ErrInvalidBounds = fmt.Errorf("%w: bounds", ErrInvalidConfiguration)
)

// Constraint is a bijection from the real line onto a constrained set.
type Constraint interface {
	// Transform maps unconstrained values to the constrained set.
	Transform(x *tensor.Tensor) *tensor.Tensor
	// Inverse maps constrained values back to the real line.
	Inverse(y *tensor.Tensor) *tensor.Tensor
	// LogDetJacobian is log|dTransform/dx| elementwise; callers sum it.
	LogDetJacobian(x *tensor.Tensor) *tensor.Tensor
	String() string
}

type positive struct{}

// Positive returns the exponential map onto (0, inf).
func Positive() Constraint { return positive{} }

func (positive) Transform(x *tensor.Tensor) *tensor.Tensor      { return tensor.Exp(x) }
func (positive) Inverse(y *tensor.Tensor) *tensor.Tensor        { return tensor.Log(y) }
func (positive) LogDetJacobian(x *tensor.Tensor) *tensor.Tensor { return x.Ref() }
func (positive) String() string                                 { return "positive" }

type bounded struct {
	low, high float64
}

// Bounded returns the scaled logistic map onto (low, high).
func Bounded(low, high float64) (Constraint, error) {
	if !(high > low) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return nil, fmt.Errorf("%w: low=%g high=%g", ErrInvalidBounds, low, high)
	}
	return bounded{low: low, high: high}, nil
}

// MustBounded is Bounded for bounds known to be valid.
func MustBounded(low, high float64) Constraint {
	c, err := Bounded(low, high)
	if err != nil {
		panic(err)
	}
	return c
}

func (b bounded) Transform(x *tensor.Tensor) *tensor.Tensor {
	s := tensor.Sigmoid(x)
	defer s.Dispose()
	scaled := tensor.MulScalar(s, b.high-b.low)
	defer scaled.Dispose()
	return tensor.AddScalar(scaled, b.low)
}

func (b bounded) Inverse(y *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	u := s.T(tensor.MulScalar(s.T(tensor.AddScalar(y, -b.low)), 1/(b.high-b.low)))
	odds := s.T(tensor.Div(u, s.T(tensor.RSub(1, u))))
	return tensor.Log(odds)
}

// LogDetJacobian is log s + log(1-s) + log(high-low) with s = sigmoid(x),
// written with log-sigmoids so it stays finite for large |x|.
func (b bounded) LogDetJacobian(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	logS := s.T(tensor.LogSigmoid(x))
	log1mS := s.T(tensor.LogSigmoid(s.T(tensor.Neg(x))))
	return tensor.AddScalar(s.T(tensor.Add(logS, log1mS)), math.Log(b.high-b.low))
}

func (b bounded) String() string {
	return fmt.Sprintf("bounded(%g, %g)", b.low, b.high)
}
