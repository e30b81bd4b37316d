// Package pytree handles ordered collections of named tensors: the parameter
// trees the model compiler consumes and the flat vectors the integrator
// works on. A Template fixes names, shapes and order once; Flatten and
// Unflatten convert between the two views.
package pytree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/posterior/internal/tensor"
)

var (
	ErrSizeMismatch = errors.New("pytree: size mismatch")
	ErrEmpty        = errors.New("pytree: no trees")
	ErrStructure    = errors.New("pytree: structure mismatch")
)

// Tree is an ordered set of named tensors. A Tree owns its leaves: Dispose
// releases every one of them.
type Tree struct {
	names  []string
	leaves []*tensor.Tensor
}

// New builds a tree from parallel name and leaf slices. The tree takes
// ownership of the leaves.
func New(names []string, leaves []*tensor.Tensor) Tree {
	if len(names) != len(leaves) {
		panic("pytree: names and leaves differ in length")
	}
	return Tree{names: slices.Clone(names), leaves: slices.Clone(leaves)}
}

// FromMap builds a tree in the given order from a map, taking ownership.
func FromMap(order []string, m map[string]*tensor.Tensor) Tree {
	var t Tree
	for _, name := range order {
		if v, ok := m[name]; ok {
			t.Set(name, v)
		}
	}
	return t
}

// Set adds or replaces a leaf. A replaced leaf is not disposed.
func (t *Tree) Set(name string, v *tensor.Tensor) {
	if i := slices.Index(t.names, name); i >= 0 {
		t.leaves[i] = v
		return
	}
	t.names = append(t.names, name)
	t.leaves = append(t.leaves, v)
}

// Get returns the leaf for name, borrowed.
func (t Tree) Get(name string) (*tensor.Tensor, bool) {
	i := slices.Index(t.names, name)
	if i < 0 {
		return nil, false
	}
	return t.leaves[i], true
}

// Names returns the leaf names in order.
func (t Tree) Names() []string { return slices.Clone(t.names) }

// Leaves returns the leaves in order, borrowed.
func (t Tree) Leaves() []*tensor.Tensor { return slices.Clone(t.leaves) }

// Len is the number of leaves.
func (t Tree) Len() int { return len(t.names) }

// Dispose releases every leaf.
func (t Tree) Dispose() {
	tensor.DisposeAll(t.leaves...)
}

// Ref returns a tree that borrows a new reference to every leaf.
func (t Tree) Ref() Tree {
	leaves := make([]*tensor.Tensor, len(t.leaves))
	for i, l := range t.leaves {
		leaves[i] = l.Ref()
	}
	return Tree{names: slices.Clone(t.names), leaves: leaves}
}

// Clone deep-copies every leaf into untracked owned tensors.
func (t Tree) Clone() Tree {
	leaves := make([]*tensor.Tensor, len(t.leaves))
	for i, l := range t.leaves {
		leaves[i] = l.Clone()
	}
	return Tree{names: slices.Clone(t.names), leaves: leaves}
}

// Map applies fn to every leaf and returns a new tree owning the results.
func (t Tree) Map(fn func(name string, leaf *tensor.Tensor) *tensor.Tensor) Tree {
	leaves := make([]*tensor.Tensor, len(t.leaves))
	for i, l := range t.leaves {
		leaves[i] = fn(t.names[i], l)
	}
	return Tree{names: slices.Clone(t.names), leaves: leaves}
}

// Template describes the structure of a tree: names, shapes and order.
type Template struct {
	names  []string
	shapes [][]int
}

// NewTemplate builds a template from parallel name and shape slices.
func NewTemplate(names []string, shapes [][]int) Template {
	if len(names) != len(shapes) {
		panic("pytree: names and shapes differ in length")
	}
	cp := make([][]int, len(shapes))
	for i, s := range shapes {
		cp[i] = slices.Clone(s)
		if cp[i] == nil {
			cp[i] = []int{}
		}
	}
	return Template{names: slices.Clone(names), shapes: cp}
}

// TemplateOf captures the structure of t.
func TemplateOf(t Tree) Template {
	shapes := make([][]int, len(t.leaves))
	for i, l := range t.leaves {
		shapes[i] = l.Shape()
	}
	return NewTemplate(t.names, shapes)
}

// Names returns the leaf names in order.
func (tm Template) Names() []string { return slices.Clone(tm.names) }

// Shape returns the shape of the named leaf.
func (tm Template) Shape(name string) ([]int, bool) {
	i := slices.Index(tm.names, name)
	if i < 0 {
		return nil, false
	}
	return slices.Clone(tm.shapes[i]), true
}

// Sizes returns the element count of every leaf in order.
func (tm Template) Sizes() []int {
	sizes := make([]int, len(tm.shapes))
	for i, s := range tm.shapes {
		n := 1
		for _, d := range s {
			n *= d
		}
		sizes[i] = n
	}
	return sizes
}

// Size is the length of the flattened vector.
func (tm Template) Size() int {
	n := 0
	for _, s := range tm.Sizes() {
		n += s
	}
	return n
}

// Len is the number of leaves.
func (tm Template) Len() int { return len(tm.names) }

// Equal reports whether two templates describe the same structure.
func (tm Template) Equal(o Template) bool {
	if !slices.Equal(tm.names, o.names) {
		return false
	}
	for i := range tm.shapes {
		if !slices.Equal(tm.shapes[i], o.shapes[i]) {
			return false
		}
	}
	return true
}

// Labels expands the template into one label per flattened element, e.g.
// "mu", "theta[0]", "theta[1]", "beta[1,2]".
func (tm Template) Labels() []string {
	labels := make([]string, 0, tm.Size())
	for i, name := range tm.names {
		shape := tm.shapes[i]
		if len(shape) == 0 {
			labels = append(labels, name)
			continue
		}
		idx := make([]int, len(shape))
		n := tm.Sizes()[i]
		for range n {
			s := name + "["
			for d, v := range idx {
				if d > 0 {
					s += ","
				}
				s += fmt.Sprint(v)
			}
			labels = append(labels, s+"]")
			for d := len(idx) - 1; d >= 0; d-- {
				idx[d]++
				if idx[d] < shape[d] {
					break
				}
				idx[d] = 0
			}
		}
	}
	return labels
}
