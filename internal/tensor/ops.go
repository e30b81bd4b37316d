package tensor

import (
	"fmt"
	"math"
	"slices"
)

// broadcastShape applies numpy broadcasting rules to the given shapes.
func broadcastShape(op string, shapes ...[]int) []int {
	rank := 0
	for _, s := range shapes {
		rank = max(rank, len(s))
	}
	out := make([]int, rank)
	for i := range out {
		out[i] = 1
	}
	for _, s := range shapes {
		off := rank - len(s)
		for j, d := range s {
			switch o := out[off+j]; {
			case o == d, d == 1:
			case o == 1:
				out[off+j] = d
			default:
				panic(&ShapeError{Op: op, Msg: fmt.Sprintf("shapes %v are not broadcast compatible", shapes)})
			}
		}
	}
	return out
}

// BroadcastShapes returns the broadcast of the given shapes, or an error.
func BroadcastShapes(shapes ...[]int) (out []int, err error) {
	err = Catch(func() error {
		out = broadcastShape("BroadcastShapes", shapes...)
		return nil
	})
	return out, err
}

// indexMap returns, for every element of out, the flat index into a tensor
// of shape in broadcast to out. nil means the identity map.
func indexMap(out, in []int) []int {
	if slices.Equal(out, in) {
		return nil
	}
	n := 1
	for _, d := range out {
		n *= d
	}
	idx := make([]int, n)
	if len(in) == 0 || sizeOf(in) == 1 {
		return idx
	}
	rank := len(out)
	off := rank - len(in)
	strides := make([]int, rank)
	s := 1
	for j := len(in) - 1; j >= 0; j-- {
		if in[j] != 1 {
			strides[off+j] = s
		}
		s *= in[j]
	}
	counter := make([]int, rank)
	pos := 0
	for i := 0; i < n; i++ {
		idx[i] = pos
		for d := rank - 1; d >= 0; d-- {
			counter[d]++
			pos += strides[d]
			if counter[d] < out[d] {
				break
			}
			pos -= strides[d] * counter[d]
			counter[d] = 0
		}
	}
	return idx
}

func at(m []int, i int) int {
	if m == nil {
		return i
	}
	return m[i]
}

func sizeOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// binary applies f elementwise with broadcasting. da and db give the local
// partial derivatives given the inputs and the output value.
func binary(op string, a, b *Tensor, f func(x, y float64) float64, da, db func(x, y, z float64) float64) *Tensor {
	ad, bd := a.Data(), b.Data()
	shape := broadcastShape(op, a.shape, b.shape)
	ia, ib := indexMap(shape, a.shape), indexMap(shape, b.shape)
	out := alloc(shape, make([]float64, sizeOf(shape)))
	for i := range out.data {
		out.data[i] = f(ad[at(ia, i)], bd[at(ib, i)])
	}
	ins := []*Tensor{a, b}
	return record(out, ins, func(g []float64) {
		z := out.data
		if tracked(a) {
			ga := make([]float64, len(ad))
			for i, gi := range g {
				j, k := at(ia, i), at(ib, i)
				ga[j] += gi * da(ad[j], bd[k], z[i])
			}
			addGrad(a, ga)
		}
		if tracked(b) {
			gb := make([]float64, len(bd))
			for i, gi := range g {
				j, k := at(ia, i), at(ib, i)
				gb[k] += gi * db(ad[j], bd[k], z[i])
			}
			addGrad(b, gb)
		}
	})
}

// unary applies f elementwise. df gives the derivative given input and output.
func unary(x *Tensor, f func(v float64) float64, df func(v, y float64) float64) *Tensor {
	xd := x.Data()
	out := alloc(slices.Clone(x.shape), make([]float64, len(xd)))
	for i, v := range xd {
		out.data[i] = f(v)
	}
	return record(out, []*Tensor{x}, func(g []float64) {
		gx := make([]float64, len(xd))
		for i, gi := range g {
			gx[i] = gi * df(xd[i], out.data[i])
		}
		addGrad(x, gx)
	})
}

// Add returns a + b.
func Add(a, b *Tensor) *Tensor {
	return binary("Add", a, b,
		func(x, y float64) float64 { return x + y },
		func(_, _, _ float64) float64 { return 1 },
		func(_, _, _ float64) float64 { return 1 })
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	return binary("Sub", a, b,
		func(x, y float64) float64 { return x - y },
		func(_, _, _ float64) float64 { return 1 },
		func(_, _, _ float64) float64 { return -1 })
}

// Mul returns a * b.
func Mul(a, b *Tensor) *Tensor {
	return binary("Mul", a, b,
		func(x, y float64) float64 { return x * y },
		func(_, y, _ float64) float64 { return y },
		func(x, _, _ float64) float64 { return x })
}

// Div returns a / b.
func Div(a, b *Tensor) *Tensor {
	return binary("Div", a, b,
		func(x, y float64) float64 { return x / y },
		func(_, y, _ float64) float64 { return 1 / y },
		func(x, y, _ float64) float64 { return -x / (y * y) })
}

// AddScalar returns x + c.
func AddScalar(x *Tensor, c float64) *Tensor {
	return unary(x, func(v float64) float64 { return v + c }, func(_, _ float64) float64 { return 1 })
}

// MulScalar returns x * c.
func MulScalar(x *Tensor, c float64) *Tensor {
	return unary(x, func(v float64) float64 { return v * c }, func(_, _ float64) float64 { return c })
}

// PowScalar returns x ^ p.
func PowScalar(x *Tensor, p float64) *Tensor {
	return unary(x,
		func(v float64) float64 { return math.Pow(v, p) },
		func(v, _ float64) float64 { return p * math.Pow(v, p-1) })
}

// RSub returns c - x.
func RSub(c float64, x *Tensor) *Tensor {
	return unary(x, func(v float64) float64 { return c - v }, func(_, _ float64) float64 { return -1 })
}

// Neg returns -x.
func Neg(x *Tensor) *Tensor {
	return MulScalar(x, -1)
}

// Exp returns e^x.
func Exp(x *Tensor) *Tensor {
	return unary(x, math.Exp, func(_, y float64) float64 { return y })
}

// Log returns the natural logarithm of x.
func Log(x *Tensor) *Tensor {
	return unary(x, math.Log, func(v, _ float64) float64 { return 1 / v })
}

// Log1p returns log(1 + x).
func Log1p(x *Tensor) *Tensor {
	return unary(x, math.Log1p, func(v, _ float64) float64 { return 1 / (1 + v) })
}

// Square returns x * x.
func Square(x *Tensor) *Tensor {
	return unary(x, func(v float64) float64 { return v * v }, func(v, _ float64) float64 { return 2 * v })
}

// Sqrt returns the square root of x.
func Sqrt(x *Tensor) *Tensor {
	return unary(x, math.Sqrt, func(_, y float64) float64 { return 0.5 / y })
}

// Abs returns |x|. The derivative at zero is taken as zero.
func Abs(x *Tensor) *Tensor {
	return unary(x, math.Abs, func(v, _ float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	})
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func softplus(v float64) float64 {
	return max(v, 0) + math.Log1p(math.Exp(-math.Abs(v)))
}

// Sigmoid returns the logistic function of x.
func Sigmoid(x *Tensor) *Tensor {
	return unary(x, sigmoid, func(_, y float64) float64 { return y * (1 - y) })
}

// Softplus returns log(1 + e^x), computed stably.
func Softplus(x *Tensor) *Tensor {
	return unary(x, softplus, func(v, _ float64) float64 { return sigmoid(v) })
}

// LogSigmoid returns log(sigmoid(x)) = -softplus(-x).
func LogSigmoid(x *Tensor) *Tensor {
	return unary(x,
		func(v float64) float64 { return -softplus(-v) },
		func(v, _ float64) float64 { return sigmoid(-v) })
}

// Where selects a where cond is non-zero and b elsewhere, with broadcasting.
// Gradients flow only into the selected branch.
func Where(cond, a, b *Tensor) *Tensor {
	cd, ad, bd := cond.Data(), a.Data(), b.Data()
	shape := broadcastShape("Where", cond.shape, a.shape, b.shape)
	ic, ia, ib := indexMap(shape, cond.shape), indexMap(shape, a.shape), indexMap(shape, b.shape)
	out := alloc(shape, make([]float64, sizeOf(shape)))
	for i := range out.data {
		if cd[at(ic, i)] != 0 {
			out.data[i] = ad[at(ia, i)]
		} else {
			out.data[i] = bd[at(ib, i)]
		}
	}
	return record(out, []*Tensor{cond, a, b}, func(g []float64) {
		ga := make([]float64, len(ad))
		gb := make([]float64, len(bd))
		for i, gi := range g {
			if cd[at(ic, i)] != 0 {
				ga[at(ia, i)] += gi
			} else {
				gb[at(ib, i)] += gi
			}
		}
		addGrad(a, ga)
		addGrad(b, gb)
	})
}

// compare produces an untracked 0/1 tensor.
func compare(op string, a, b *Tensor, f func(x, y float64) bool) *Tensor {
	ad, bd := a.Data(), b.Data()
	shape := broadcastShape(op, a.shape, b.shape)
	ia, ib := indexMap(shape, a.shape), indexMap(shape, b.shape)
	out := alloc(shape, make([]float64, sizeOf(shape)))
	for i := range out.data {
		if f(ad[at(ia, i)], bd[at(ib, i)]) {
			out.data[i] = 1
		}
	}
	return out
}

// Greater returns a > b as 0/1.
func Greater(a, b *Tensor) *Tensor {
	return compare("Greater", a, b, func(x, y float64) bool { return x > y })
}

// GreaterEqual returns a >= b as 0/1.
func GreaterEqual(a, b *Tensor) *Tensor {
	return compare("GreaterEqual", a, b, func(x, y float64) bool { return x >= y })
}

// LessEqual returns a <= b as 0/1.
func LessEqual(a, b *Tensor) *Tensor {
	return compare("LessEqual", a, b, func(x, y float64) bool { return x <= y })
}

// Sum reduces every element to a 0-d tensor.
func Sum(x *Tensor) *Tensor {
	xd := x.Data()
	var s float64
	for _, v := range xd {
		s += v
	}
	out := alloc([]int{}, []float64{s})
	return record(out, []*Tensor{x}, func(g []float64) {
		gx := make([]float64, len(xd))
		for i := range gx {
			gx[i] = g[0]
		}
		addGrad(x, gx)
	})
}

// SumToScalar is Sum for tensors with more than one dimension and a borrowed
// reference otherwise, matching how log densities are accumulated.
func SumToScalar(x *Tensor) *Tensor {
	if x.Ndim() == 0 {
		return x.Ref()
	}
	return Sum(x)
}

// Mean reduces every element to its average.
func Mean(x *Tensor) *Tensor {
	s := Sum(x)
	defer s.Dispose()
	return MulScalar(s, 1/float64(max(x.Size(), 1)))
}
