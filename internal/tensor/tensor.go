// Package tensor is the small array engine behind the model compiler and the
// sampler. A Tensor is a dense row-major float64 array with an explicit
// ownership count: every constructor and every op returns a tensor owned by
// the caller, which must call Dispose once the value has been consumed. Ref
// borrows an additional reference.
//
// Live reports the number of owned buffers that have not been released, so
// that callers running long loops can verify they do not leak. Constants made
// with Const are static: they are never counted and Dispose is a no-op.
//
// Shape errors panic with *ShapeError, the same way the matrix kernels do;
// Catch converts such a panic into an error at an API boundary.
package tensor

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"
)

var live atomic.Int64

// Live returns the number of owned tensors that have not been disposed.
func Live() int64 {
	return live.Load()
}

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	shape  []int
	data   []float64
	refs   atomic.Int32
	static bool

	// set when the tensor was produced by an op recorded on a tape
	tape *Tape
	node *node
}

func alloc(shape []int, data []float64) *Tensor {
	t := &Tensor{shape: shape, data: data}
	t.refs.Store(1)
	live.Add(1)
	return t
}

// New allocates a zero-filled tensor of the given shape.
func New(shape ...int) *Tensor {
	n := checkShape(shape)
	return alloc(slices.Clone(shape), make([]float64, n))
}

// FromSlice copies data into a new tensor of the given shape. A nil shape
// means a 1-D tensor of len(data).
func FromSlice(data []float64, shape ...int) *Tensor {
	if shape == nil {
		shape = []int{len(data)}
	}
	if n := checkShape(shape); n != len(data) {
		panic(&ShapeError{Op: "FromSlice", Msg: fmt.Sprintf("data length %d does not match shape %v", len(data), shape)})
	}
	return alloc(slices.Clone(shape), slices.Clone(data))
}

// Scalar returns an owned 0-d tensor.
func Scalar(v float64) *Tensor {
	return alloc([]int{}, []float64{v})
}

// Full returns an owned tensor of the given shape filled with v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Zeros is New under the name the rest of the code base reads better with.
func Zeros(shape ...int) *Tensor { return New(shape...) }

// Ones returns an owned tensor of ones.
func Ones(shape ...int) *Tensor { return Full(1, shape...) }

// Const returns a static tensor that lives for the lifetime of the program.
// It is meant for distribution parameters and other model constants.
func Const(v float64) *Tensor {
	t := &Tensor{shape: []int{}, data: []float64{v}, static: true}
	return t
}

// ConstSlice is the 1-D counterpart of Const.
func ConstSlice(data []float64) *Tensor {
	return &Tensor{shape: []int{len(data)}, data: slices.Clone(data), static: true}
}

func checkShape(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(&ShapeError{Op: "New", Msg: fmt.Sprintf("negative dimension in %v", shape)})
		}
		n *= d
	}
	return n
}

// Shape returns the dimensions. The slice must not be modified.
func (t *Tensor) Shape() []int { return t.shape }

// Ndim returns the rank.
func (t *Tensor) Ndim() int { return len(t.shape) }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.data) }

// Data exposes the underlying values. Writing through it is only valid for
// tensors the caller exclusively owns and that are not recorded on a tape.
func (t *Tensor) Data() []float64 {
	if t.data == nil && !t.static {
		panic("tensor: use after dispose")
	}
	return t.data
}

// Item returns the single value of a tensor with exactly one element.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(&ShapeError{Op: "Item", Msg: fmt.Sprintf("tensor of shape %v is not a scalar", t.shape)})
	}
	return t.data[0]
}

// Values returns a copy of the data.
func (t *Tensor) Values() []float64 {
	return slices.Clone(t.Data())
}

// IsFinite reports whether every element is finite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Ref borrows an additional reference and returns the same tensor.
func (t *Tensor) Ref() *Tensor {
	if t.static {
		return t
	}
	if t.refs.Add(1) <= 1 {
		panic("tensor: ref of disposed tensor")
	}
	return t
}

// Dispose releases one reference. The buffer is dropped when the last
// reference goes away. Disposing nil, a static tensor or an already released
// tensor does nothing.
func (t *Tensor) Dispose() {
	if t == nil || t.static {
		return
	}
	for {
		n := t.refs.Load()
		if n <= 0 {
			return
		}
		if t.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				t.data = nil
				t.node = nil
				live.Add(-1)
			}
			return
		}
	}
}

// Clone returns an owned, untracked copy.
func (t *Tensor) Clone() *Tensor {
	return alloc(slices.Clone(t.shape), slices.Clone(t.Data()))
}

func (t *Tensor) String() string {
	if t.data == nil && !t.static {
		return "tensor(<disposed>)"
	}
	if len(t.shape) == 0 {
		return fmt.Sprintf("tensor(%g)", t.data[0])
	}
	return fmt.Sprintf("tensor(%v, shape=%v)", t.data, t.shape)
}

// DisposeAll disposes every non-nil tensor.
func DisposeAll(ts ...*Tensor) {
	for _, t := range ts {
		t.Dispose()
	}
}

// ShapeError is raised (as a panic) by ops given incompatible shapes.
type ShapeError struct {
	Op  string
	Msg string
}

func (e *ShapeError) Error() string {
	return "tensor: " + e.Op + ": " + e.Msg
}

// Catch runs fn and converts a *ShapeError panic, or any error value used as
// a panic payload, into a returned error. Other panics are re-raised.
func Catch(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch v := rec.(type) {
			case *ShapeError:
				err = v
			case error:
				err = v
			default:
				panic(rec)
			}
		}
	}()
	return fn()
}
