package tensor

import (
	"errors"
	"fmt"
)

// node is the per-tensor bookkeeping of a tape.
type node struct {
	grad     []float64
	backward func(g []float64)
}

// Tape records ops on tracked tensors for reverse-mode differentiation and
// owns the intermediates of one evaluation. A tape is an arena: every tensor
// it records, and every untracked input it captured for the backward pass,
// holds one tape reference until Release. A tape is used by one goroutine.
type Tape struct {
	nodes    []*Tensor
	held     []*Tensor
	released bool
}

// NewTape returns an empty tape.
func NewTape() *Tape {
	return &Tape{}
}

// Watch returns an owned, tracked copy of x. Gradients with respect to the
// returned tensor are read back with Grad after Backward.
func (tp *Tape) Watch(x *Tensor) *Tensor {
	if tp.released {
		panic("tensor: watch on released tape")
	}
	leaf := x.Clone()
	leaf.tape = tp
	leaf.node = &node{}
	leaf.refs.Add(1)
	tp.nodes = append(tp.nodes, leaf)
	return leaf
}

func (tp *Tape) record(out *Tensor, ins []*Tensor, backward func(g []float64)) {
	out.tape = tp
	out.node = &node{backward: backward}
	out.refs.Add(1)
	tp.nodes = append(tp.nodes, out)
	for _, in := range ins {
		if in.tape != tp {
			tp.held = append(tp.held, in.Ref())
		}
	}
}

// Backward propagates d(out)/d(·) through every recorded op. out must be a
// single-element tensor recorded on this tape; otherwise nothing happens.
func (tp *Tape) Backward(out *Tensor) {
	if tp.released || out.tape != tp || out.node == nil || out.Size() != 1 {
		return
	}
	for _, n := range tp.nodes {
		n.node.grad = nil
	}
	out.node.grad = []float64{1}
	for i := len(tp.nodes) - 1; i >= 0; i-- {
		n := tp.nodes[i]
		if n.node.grad != nil && n.node.backward != nil {
			n.node.backward(n.node.grad)
		}
	}
}

// Grad returns an owned copy of the gradient accumulated on x, or zeros when
// out did not depend on x.
func (tp *Tape) Grad(x *Tensor) *Tensor {
	if x.tape != tp || x.node == nil || x.node.grad == nil {
		return New(x.shape...)
	}
	return FromSlice(x.node.grad, x.shape...)
}

// Release drops every reference the tape holds. It is safe to call twice.
func (tp *Tape) Release() {
	if tp.released {
		return
	}
	tp.released = true
	for _, t := range tp.nodes {
		t.Dispose()
	}
	for _, t := range tp.held {
		t.Dispose()
	}
	tp.nodes = nil
	tp.held = nil
}

// Len reports how many tensors the tape has recorded.
func (tp *Tape) Len() int { return len(tp.nodes) }

func tapeOf(ins []*Tensor) *Tape {
	var tp *Tape
	for _, in := range ins {
		if in.tape == nil || in.node == nil || in.tape.released {
			continue
		}
		if tp != nil && in.tape != tp {
			panic(&ShapeError{Op: "tape", Msg: "inputs recorded on different tapes"})
		}
		tp = in.tape
	}
	return tp
}

func tracked(t *Tensor) bool {
	return t.node != nil && t.tape != nil && !t.tape.released
}

// record attaches out to the tape of its tracked inputs, if any.
func record(out *Tensor, ins []*Tensor, backward func(g []float64)) *Tensor {
	if tp := tapeOf(ins); tp != nil {
		tp.record(out, ins, backward)
	}
	return out
}

func addGrad(t *Tensor, g []float64) {
	if !tracked(t) {
		return
	}
	if t.node.grad == nil {
		t.node.grad = make([]float64, len(t.data))
	}
	for i, v := range g {
		t.node.grad[i] += v
	}
}

// ErrNotScalar is returned by ValueAndGrad when f does not produce a single value.
var ErrNotScalar = errors.New("tensor: function value is not a scalar")

// ValueAndGrad evaluates f at x and returns f(x) and df/dx. Every
// intermediate created by f on the tracked argument is released before it
// returns; the gradient is an owned tensor with the shape of x.
func ValueAndGrad(f func(x *Tensor) (*Tensor, error), x *Tensor) (float64, *Tensor, error) {
	tp := NewTape()
	defer tp.Release()

	leaf := tp.Watch(x)
	defer leaf.Dispose()

	var out *Tensor
	err := Catch(func() error {
		var ferr error
		out, ferr = f(leaf)
		return ferr
	})
	if err != nil {
		out.Dispose()
		return 0, nil, err
	}
	defer out.Dispose()
	if out.Size() != 1 {
		return 0, nil, fmt.Errorf("%w: got shape %v", ErrNotScalar, out.shape)
	}
	tp.Backward(out)
	return out.Item(), tp.Grad(leaf), nil
}
