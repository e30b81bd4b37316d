package model

import (
	"fmt"
	"maps"
	"slices"

	"github.com/samcharles93/posterior/internal/tensor"
)

// Context holds the values visible to factories and derived functions during
// one evaluation: bound data, constrained params, derived quantities and,
// when bound, observed values. Values returned by Get are borrowed and stay
// valid until the evaluation ends.
type Context struct {
	values map[string]*tensor.Tensor
	owned  []*tensor.Tensor
	dims   DimMap
}

func newContext(data map[string]*tensor.Tensor, dims DimMap) *Context {
	return &Context{values: maps.Clone(data), dims: dims}
}

// Get returns the value bound to name.
func (c *Context) Get(name string) (*tensor.Tensor, error) {
	v, ok := c.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not available in this context (have %v)", ErrUnknownName, name, c.names())
	}
	return v, nil
}

// MustGet is Get for use inside factories and derived functions. A missing
// name panics with the error, which the evaluation returns to its caller.
func (c *Context) MustGet(name string) *tensor.Tensor {
	v, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether name is available.
func (c *Context) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Dim returns the resolved size of a symbolic dimension.
func (c *Context) Dim(name string) (int, bool) {
	v, ok := c.dims[name]
	return v, ok
}

// Own hands t to the context, which disposes it when the evaluation ends.
// Factories use it for intermediates they build, e.g.
//
//	loc := ctx.Own(tensor.Add(ctx.MustGet("alpha"), ctx.MustGet("x")))
func (c *Context) Own(t *tensor.Tensor) *tensor.Tensor {
	c.owned = append(c.owned, t)
	return t
}

// set stores an owned value under name.
func (c *Context) set(name string, t *tensor.Tensor) {
	c.values[name] = t
	c.owned = append(c.owned, t)
}

func (c *Context) release() {
	tensor.DisposeAll(c.owned...)
	c.owned = nil
	c.values = nil
}

func (c *Context) names() []string {
	return slices.Sorted(maps.Keys(c.values))
}
