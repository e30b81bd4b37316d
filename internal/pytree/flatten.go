package pytree

import (
	"fmt"
	"slices"

	"github.com/samcharles93/posterior/internal/tensor"
)

// Flatten concatenates every leaf, reshaped to 1-D, in tree order. The
// result is owned by the caller; t is only borrowed. Ops are recorded when
// the leaves are tracked.
func Flatten(t Tree) *tensor.Tensor {
	if t.Len() == 0 {
		return tensor.New(0)
	}
	flat := make([]*tensor.Tensor, len(t.leaves))
	for i, l := range t.leaves {
		flat[i] = tensor.Ravel(l)
	}
	defer tensor.DisposeAll(flat...)
	return tensor.Concat(flat...)
}

// Unflatten is the inverse of Flatten for the given template. flat is
// borrowed; the returned tree owns its leaves.
func Unflatten(flat *tensor.Tensor, tm Template) (Tree, error) {
	if flat.Ndim() != 1 || flat.Size() != tm.Size() {
		return Tree{}, fmt.Errorf("%w: vector of shape %v for template of size %d", ErrSizeMismatch, flat.Shape(), tm.Size())
	}
	parts := tensor.Split(flat, tm.Sizes()...)
	leaves := make([]*tensor.Tensor, len(parts))
	for i, p := range parts {
		leaves[i] = tensor.Reshape(p, tm.shapes[i]...)
		p.Dispose()
	}
	return Tree{names: slices.Clone(tm.names), leaves: leaves}, nil
}

// FromSlice builds a tree with the template's structure from raw values.
func FromSlice(tm Template, values []float64) (Tree, error) {
	flat := tensor.FromSlice(values)
	defer flat.Dispose()
	return Unflatten(flat, tm)
}

// Full returns a tree with the template's structure filled with v.
func Full(v float64, tm Template) Tree {
	leaves := make([]*tensor.Tensor, len(tm.shapes))
	for i, s := range tm.shapes {
		leaves[i] = tensor.Full(v, s...)
	}
	return Tree{names: slices.Clone(tm.names), leaves: leaves}
}

// OnesLike returns a tree of ones with the structure of t.
func OnesLike(t Tree) Tree {
	return Full(1, TemplateOf(t))
}

// Stack joins trees of identical structure along a new leading axis. The
// inputs are borrowed.
func Stack(trees []Tree) (Tree, error) {
	if len(trees) == 0 {
		return Tree{}, ErrEmpty
	}
	tm := TemplateOf(trees[0])
	for i, t := range trees[1:] {
		if !TemplateOf(t).Equal(tm) {
			return Tree{}, fmt.Errorf("%w: tree %d differs from tree 0", ErrStructure, i+1)
		}
	}
	leaves := make([]*tensor.Tensor, tm.Len())
	col := make([]*tensor.Tensor, len(trees))
	for i := range leaves {
		for j, t := range trees {
			col[j] = t.leaves[i]
		}
		leaves[i] = tensor.Stack(col...)
	}
	return Tree{names: slices.Clone(tm.names), leaves: leaves}, nil
}
