// Package posteriordb holds built-in reference posteriors: a model, its
// dataset, a starting point for the sampler and reference values for the
// posterior means of selected constrained quantities.
package posteriordb

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/posterior/internal/model"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

var ErrUnknownModel = errors.New("posteriordb: unknown model")

// Reference bounds the posterior mean of one constrained param.
type Reference struct {
	Param string
	// Mean is NaN when only a plausible range is known.
	Mean      float64
	Low, High float64
}

// Contains reports whether v lies within the reference bounds.
func (r Reference) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// meanRef allows an absolute error of 3 or a relative error of 60%,
// whichever is larger.
func meanRef(param string, mean float64) Reference {
	tol := math.Max(3, 0.6*math.Abs(mean))
	return Reference{Param: param, Mean: mean, Low: mean - tol, High: mean + tol}
}

func rangeRef(param string, low, high float64) Reference {
	return Reference{Param: param, Mean: math.NaN(), Low: low, High: high}
}

// Posterior is one entry of the database.
type Posterior struct {
	Name        string
	Description string
	References  []Reference

	build func() (*model.Model, error)
	data  map[string][]float64
	// initial values per param, broadcast to the param shape. Params that
	// are absent start at zero.
	initial map[string]float64
}

// Model compiles the posterior's specification.
func (p *Posterior) Model() (*model.Model, error) {
	return p.build()
}

// Data returns fresh tensors for the dataset. The caller owns them.
func (p *Posterior) Data() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(p.data))
	for name, v := range p.data {
		out[name] = tensor.FromSlice(slices.Clone(v))
	}
	return out
}

// WithData returns a copy of p with the named dataset entries replaced.
// Entries not in overrides keep their built-in values.
func (p *Posterior) WithData(overrides map[string][]float64) *Posterior {
	cp := *p
	cp.data = make(map[string][]float64, len(p.data)+len(overrides))
	for name, v := range p.data {
		cp.data[name] = v
	}
	for name, v := range overrides {
		cp.data[name] = slices.Clone(v)
	}
	return &cp
}

// Bind compiles the model and binds the dataset. With observed false the
// observations are left out and the model is bound predictive.
func (p *Posterior) Bind(observed bool) (*model.BoundModel, error) {
	m, err := p.build()
	if err != nil {
		return nil, fmt.Errorf("posteriordb: %s: %w", p.Name, err)
	}
	data := p.Data()
	defer func() {
		for _, v := range data {
			v.Dispose()
		}
	}()
	if !observed {
		for _, name := range m.Names().Observed {
			data[name].Dispose()
			delete(data, name)
		}
	}
	return m.Bind(data)
}

// InitialParams returns the unconstrained starting point for tm.
func (p *Posterior) InitialParams(tm pytree.Template) pytree.Tree {
	names := tm.Names()
	leaves := make([]*tensor.Tensor, len(names))
	for i, name := range names {
		shape, _ := tm.Shape(name)
		leaves[i] = tensor.Full(p.initial[name], shape...)
	}
	return pytree.New(names, leaves)
}

var registry = []*Posterior{
	eightSchoolsNoncentered,
	eightSchoolsCentered,
	kidscore,
	wells,
}

// Names lists the built-in posteriors in registry order.
func Names() []string {
	out := make([]string, len(registry))
	for i, p := range registry {
		out[i] = p.Name
	}
	return out
}

// All returns every built-in posterior in registry order.
func All() []*Posterior {
	return slices.Clone(registry)
}

// Lookup finds a posterior by name.
func Lookup(name string) (*Posterior, error) {
	for _, p := range registry {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownModel, name, Names())
}
