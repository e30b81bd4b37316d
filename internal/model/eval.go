package model

import (
	"fmt"
	"slices"

	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

// accumulator sums log density terms into a 0-d tensor.
type accumulator struct {
	total *tensor.Tensor
}

// add reduces term to a scalar and adds it. term is consumed.
func (a *accumulator) add(term *tensor.Tensor) {
	defer term.Dispose()
	s := tensor.SumToScalar(term)
	defer s.Dispose()
	if a.total == nil {
		a.total = s.Ref()
		return
	}
	next := tensor.Add(a.total, s)
	a.total.Dispose()
	a.total = next
}

func (a *accumulator) result() *tensor.Tensor {
	if a.total == nil {
		return tensor.Scalar(0)
	}
	t := a.total
	a.total = nil
	return t
}

func (a *accumulator) dispose() {
	a.total.Dispose()
	a.total = nil
}

// logProb is the log density of the complete model:
// log|J| of every constraint, every prior on its constrained value, and every
// likelihood on its observed value.
func (b *BoundModel) logProb(params pytree.Tree) (*tensor.Tensor, error) {
	ctx := newContext(b.data, b.dims)
	defer ctx.release()

	var acc accumulator
	err := tensor.Catch(func() error {
		if err := b.constrain(ctx, params, &acc); err != nil {
			return err
		}
		if err := b.derive(ctx); err != nil {
			return err
		}
		for _, p := range b.model.params {
			acc.add(p.distribution(ctx).LogProb(ctx.values[p.name]))
		}
		for _, o := range b.model.observed {
			acc.add(o.factory(ctx).LogProb(ctx.values[o.name]))
		}
		return nil
	})
	if err != nil {
		acc.dispose()
		return nil, err
	}
	return acc.result(), nil
}

// constrain maps every param into constrained space and stores it in ctx.
// When acc is set the log Jacobian of each transform is added to it.
func (b *BoundModel) constrain(ctx *Context, params pytree.Tree, acc *accumulator) error {
	for _, p := range b.model.params {
		u, ok := params.Get(p.name)
		if !ok || u == nil {
			return fmt.Errorf("%w: %q", ErrMissingParameter, p.name)
		}
		if want := b.shapes[p.name]; !slices.Equal(u.Shape(), want) {
			return fmt.Errorf("%w: param %q has shape %v but expected %v", ErrShapeMismatch, p.name, u.Shape(), want)
		}
		if p.constraint == nil {
			ctx.set(p.name, u.Ref())
			continue
		}
		ctx.set(p.name, p.constraint.Transform(u))
		if acc != nil {
			acc.add(p.constraint.LogDetJacobian(u))
		}
	}
	return nil
}

func (b *BoundModel) derive(ctx *Context) error {
	for _, d := range b.model.derived {
		v := d.fn(ctx)
		if v == nil {
			return fmt.Errorf("%w: derived %q returned no value", ErrUnsupportedSpecEntry, d.name)
		}
		ctx.set(d.name, v)
	}
	return nil
}

// SamplePrior draws every param from its prior at its resolved shape and
// returns the draws in unconstrained space, ready for LogProb. Factory
// priors see the bound data and the params drawn before them.
func (b *BoundModel) SamplePrior(key tensor.Key) (pytree.Tree, error) {
	ctx := newContext(b.data, b.dims)
	defer ctx.release()

	keys := key.SplitSequential(len(b.model.params))
	var tree pytree.Tree
	err := tensor.Catch(func() error {
		for i, p := range b.model.params {
			shape := b.shapes[p.name]
			draw := p.distribution(ctx).Sample(keys[i], shape...)
			ctx.set(p.name, draw)
			if !slices.Equal(draw.Shape(), shape) {
				return fmt.Errorf("%w: prior of %q draws shape %v but the param has shape %v", ErrShapeMismatch, p.name, draw.Shape(), shape)
			}
			if p.constraint == nil {
				tree.Set(p.name, draw.Ref())
			} else {
				tree.Set(p.name, p.constraint.Inverse(draw))
			}
		}
		return nil
	})
	if err != nil {
		tree.Dispose()
		return pytree.Tree{}, err
	}
	return tree, nil
}

// Simulate draws every observed variable given unconstrained params. Each
// draw has the shape of the bound observation when there is one, otherwise
// the shape of its distribution's parameters.
func (b *BoundModel) Simulate(params pytree.Tree, key tensor.Key) (map[string]*tensor.Tensor, error) {
	ctx := newContext(b.data, b.dims)
	defer ctx.release()

	out := make(map[string]*tensor.Tensor, len(b.model.observed))
	err := tensor.Catch(func() error {
		if err := b.constrain(ctx, params, nil); err != nil {
			return err
		}
		if err := b.derive(ctx); err != nil {
			return err
		}
		keys := key.SplitSequential(len(b.model.observed))
		for i, o := range b.model.observed {
			d := o.factory(ctx)
			shape := d.Shape()
			if v, ok := b.data[o.name]; ok {
				shape = v.Shape()
			}
			out[o.name] = d.Sample(keys[i], shape...)
		}
		return nil
	})
	if err != nil {
		for _, v := range out {
			v.Dispose()
		}
		return nil, err
	}
	return out, nil
}

// Constrain maps unconstrained params to their constrained values. Transforms
// are elementwise, so leaves may carry leading chain and sample axes.
func (b *BoundModel) Constrain(params pytree.Tree) (pytree.Tree, error) {
	var out pytree.Tree
	err := tensor.Catch(func() error {
		for _, p := range b.model.params {
			u, ok := params.Get(p.name)
			if !ok || u == nil {
				return fmt.Errorf("%w: %q", ErrMissingParameter, p.name)
			}
			if p.constraint == nil {
				out.Set(p.name, u.Clone())
			} else {
				out.Set(p.name, p.constraint.Transform(u))
			}
		}
		return nil
	})
	if err != nil {
		out.Dispose()
		return pytree.Tree{}, err
	}
	return out, nil
}
