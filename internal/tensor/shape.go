package tensor

import (
	"fmt"
	"slices"
)

// Reshape returns a tensor with the same values and a new shape. One
// dimension may be -1 and is inferred.
func Reshape(x *Tensor, shape ...int) *Tensor {
	xd := x.Data()
	target := slices.Clone(shape)
	infer := -1
	known := 1
	for i, d := range target {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			panic(&ShapeError{Op: "Reshape", Msg: fmt.Sprintf("invalid shape %v", shape)})
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(xd)%known != 0 {
			panic(&ShapeError{Op: "Reshape", Msg: fmt.Sprintf("cannot infer %v from %d elements", shape, len(xd))})
		}
		target[infer] = len(xd) / known
	}
	if sizeOf(target) != len(xd) {
		panic(&ShapeError{Op: "Reshape", Msg: fmt.Sprintf("cannot reshape %v into %v", x.shape, shape)})
	}
	out := alloc(target, slices.Clone(xd))
	return record(out, []*Tensor{x}, func(g []float64) {
		addGrad(x, g)
	})
}

// Ravel flattens x to one dimension.
func Ravel(x *Tensor) *Tensor {
	return Reshape(x, -1)
}

// Concat joins tensors along the leading axis. Trailing dimensions must
// agree; 0-d inputs are treated as length-1 vectors.
func Concat(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic(&ShapeError{Op: "Concat", Msg: "no inputs"})
	}
	trailing := func(t *Tensor) []int {
		if len(t.shape) == 0 {
			return nil
		}
		return t.shape[1:]
	}
	lead := func(t *Tensor) int {
		if len(t.shape) == 0 {
			return 1
		}
		return t.shape[0]
	}
	tail := trailing(ts[0])
	total, n := 0, 0
	for _, t := range ts {
		if !slices.Equal(trailing(t), tail) {
			panic(&ShapeError{Op: "Concat", Msg: fmt.Sprintf("trailing shape %v does not match %v", t.shape, ts[0].shape)})
		}
		total += lead(t)
		n += t.Size()
	}
	data := make([]float64, 0, n)
	for _, t := range ts {
		data = append(data, t.Data()...)
	}
	shape := append([]int{total}, tail...)
	out := alloc(shape, data)
	return record(out, ts, func(g []float64) {
		off := 0
		for _, t := range ts {
			addGrad(t, g[off:off+len(t.data)])
			off += len(t.data)
		}
	})
}

// Split cuts a 1-D tensor into consecutive pieces of the given sizes.
func Split(x *Tensor, sizes ...int) []*Tensor {
	if x.Ndim() != 1 {
		panic(&ShapeError{Op: "Split", Msg: fmt.Sprintf("expected a 1-D tensor, got shape %v", x.shape)})
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != x.Size() {
		panic(&ShapeError{Op: "Split", Msg: fmt.Sprintf("sizes %v do not add up to %d", sizes, x.Size())})
	}
	xd := x.Data()
	parts := make([]*Tensor, len(sizes))
	off := 0
	for i, s := range sizes {
		lo := off
		part := alloc([]int{s}, slices.Clone(xd[lo:lo+s]))
		parts[i] = record(part, []*Tensor{x}, func(g []float64) {
			gx := make([]float64, len(xd))
			copy(gx[lo:lo+s], g)
			addGrad(x, gx)
		})
		off += s
	}
	return parts
}

// Stack joins same-shaped tensors along a new leading axis.
func Stack(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic(&ShapeError{Op: "Stack", Msg: "no inputs"})
	}
	base := ts[0].shape
	data := make([]float64, 0, len(ts)*ts[0].Size())
	for _, t := range ts {
		if !slices.Equal(t.shape, base) {
			panic(&ShapeError{Op: "Stack", Msg: fmt.Sprintf("shape %v does not match %v", t.shape, base)})
		}
		data = append(data, t.Data()...)
	}
	shape := append([]int{len(ts)}, base...)
	out := alloc(shape, data)
	return record(out, ts, func(g []float64) {
		n := sizeOf(base)
		for i, t := range ts {
			addGrad(t, g[i*n:(i+1)*n])
		}
	})
}

// Index returns the i-th slice along the leading axis as an owned,
// untracked tensor.
func Index(x *Tensor, i int) *Tensor {
	if x.Ndim() == 0 || i < 0 || i >= x.shape[0] {
		panic(&ShapeError{Op: "Index", Msg: fmt.Sprintf("index %d out of range for shape %v", i, x.shape)})
	}
	inner := slices.Clone(x.shape[1:])
	n := sizeOf(inner)
	return alloc(inner, slices.Clone(x.Data()[i*n:(i+1)*n]))
}

// BroadcastTo expands x to shape following broadcasting rules.
func BroadcastTo(x *Tensor, shape ...int) *Tensor {
	xd := x.Data()
	target := broadcastShape("BroadcastTo", x.shape, shape)
	if !slices.Equal(target, shape) {
		panic(&ShapeError{Op: "BroadcastTo", Msg: fmt.Sprintf("cannot broadcast %v to %v", x.shape, shape)})
	}
	idx := indexMap(target, x.shape)
	out := alloc(target, make([]float64, sizeOf(target)))
	for i := range out.data {
		out.data[i] = xd[at(idx, i)]
	}
	return record(out, []*Tensor{x}, func(g []float64) {
		gx := make([]float64, len(xd))
		for i, gi := range g {
			gx[at(idx, i)] += gi
		}
		addGrad(x, gx)
	})
}
