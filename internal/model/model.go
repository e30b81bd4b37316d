// Package model compiles declarative Bayesian model specifications into log
// densities over unconstrained parameters.
//
// A model is a list of named entries. Params carry a prior and optionally a
// constraint and a shape; Data entries name external inputs; Observed
// entries build a likelihood from the evaluation context; Derived entries
// compute deterministic quantities in declaration order.
//
//	m, err := model.New(
//		model.Data("sigma", model.WithShape("J")),
//		model.Param("mu", dist.NewNormal(0, 5)),
//		model.Param("tau", dist.NewHalfCauchy(5), model.WithConstraint(constraint.Positive())),
//		model.Observed("y", func(ctx *model.Context) dist.Distribution { ... }),
//	)
//	bm, err := m.Bind(map[string]*tensor.Tensor{"sigma": sigma, "y": y})
//	lp, err := bm.LogProb(params)
package model

import (
	"fmt"
	"slices"

	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

// Model is a validated specification. It is immutable and safe to bind
// concurrently.
type Model struct {
	params   []*paramEntry
	data     []*dataEntry
	observed []*observedEntry
	derived  []*derivedEntry
	roles    map[string]Role
}

// Names lists entry names by role in declaration order.
type Names struct {
	Params   []string
	Data     []string
	Observed []string
	Derived  []string
}

// New validates entries and classifies them by role.
func New(entries ...Entry) (*Model, error) {
	m := &Model{roles: make(map[string]Role, len(entries))}
	for i, e := range entries {
		if e == nil {
			return nil, fmt.Errorf("%w: entry %d is nil", ErrUnsupportedSpecEntry, i)
		}
		name := e.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrUnsupportedSpecEntry, i)
		}
		if prev, ok := m.roles[name]; ok {
			return nil, fmt.Errorf("%w: %q is declared as %s and %s", ErrDuplicateName, name, prev, e.Role())
		}

		switch e := e.(type) {
		case *paramEntry:
			if e.prior == nil && e.factory == nil {
				return nil, fmt.Errorf("%w: param %q has no prior", ErrUnsupportedSpecEntry, name)
			}
			if e.shapeErr != nil {
				return nil, fmt.Errorf("%w: param %q: %v", ErrUnsupportedSpecEntry, name, e.shapeErr)
			}
			m.params = append(m.params, e)
		case *dataEntry:
			if e.shapeErr != nil {
				return nil, fmt.Errorf("%w: data %q: %v", ErrUnsupportedSpecEntry, name, e.shapeErr)
			}
			if e.constraint != nil {
				return nil, fmt.Errorf("%w: data %q cannot carry a constraint", ErrUnsupportedSpecEntry, name)
			}
			m.data = append(m.data, e)
		case *observedEntry:
			if e.factory == nil {
				return nil, fmt.Errorf("%w: observed %q has no likelihood", ErrUnsupportedSpecEntry, name)
			}
			m.observed = append(m.observed, e)
		case *derivedEntry:
			if e.fn == nil {
				return nil, fmt.Errorf("%w: derived %q has no function", ErrUnsupportedSpecEntry, name)
			}
			m.derived = append(m.derived, e)
		default:
			return nil, fmt.Errorf("%w: entry %q of type %T", ErrUnsupportedSpecEntry, name, e)
		}
		m.roles[name] = e.Role()
	}
	if err := m.checkDerivedOrder(entries); err != nil {
		return nil, err
	}
	return m, nil
}

// checkDerivedOrder requires every declared dependency of a derived entry to
// be a data or param entry, or an entry declared before it.
func (m *Model) checkDerivedOrder(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if d, ok := e.(*derivedEntry); ok {
			var bad []string
			for _, dep := range d.deps {
				role, known := m.roles[dep]
				if !known || (!seen[dep] && role != RoleData && role != RoleParam) {
					bad = append(bad, dep)
				}
			}
			if len(bad) > 0 {
				return fmt.Errorf("%w: derived %q depends on %v which are not declared before it", ErrUnsupportedSpecEntry, d.name, bad)
			}
		}
		seen[e.Name()] = true
	}
	return nil
}

// Names returns the entry names grouped by role.
func (m *Model) Names() Names {
	var n Names
	for _, e := range m.params {
		n.Params = append(n.Params, e.name)
	}
	for _, e := range m.data {
		n.Data = append(n.Data, e.name)
	}
	for _, e := range m.observed {
		n.Observed = append(n.Observed, e.name)
	}
	for _, e := range m.derived {
		n.Derived = append(n.Derived, e.name)
	}
	return n
}

// State tells whether a bound model has a likelihood.
type State int

const (
	// Complete models have every observed value bound and a LogProb.
	Complete State = iota
	// Predictive models have no observed values and no LogProb.
	Predictive
)

func (s State) String() string {
	if s == Complete {
		return "complete"
	}
	return "predictive"
}

// LogDensity evaluates the log density of an unconstrained param tree.
type LogDensity func(params pytree.Tree) (*tensor.Tensor, error)

// BoundModel is a model with its data bound and its shapes resolved. It
// holds a reference to every bound tensor until Close.
type BoundModel struct {
	model  *Model
	state  State
	data   map[string]*tensor.Tensor
	dims   DimMap
	shapes map[string][]int
	tmpl   pytree.Template

	// LogProb is nil in the predictive state.
	LogProb LogDensity
}

// Bind attaches data and observations. Every data entry must be present;
// observed entries must be all present or all absent. Keys naming no entry
// are ignored.
func (m *Model) Bind(values map[string]*tensor.Tensor) (*BoundModel, error) {
	dims := make(DimMap)
	data := make(map[string]*tensor.Tensor, len(m.data)+len(m.observed))

	for _, e := range m.data {
		v, ok := values[e.name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingData, e.name)
		}
		if e.hasShape {
			if err := e.shape.bindData(v, dims, fmt.Sprintf("data %q", e.name)); err != nil {
				return nil, err
			}
		}
		data[e.name] = v
	}

	var bound, missing []string
	for _, e := range m.observed {
		if v, ok := values[e.name]; ok && v != nil {
			bound = append(bound, e.name)
			data[e.name] = v
		} else {
			missing = append(missing, e.name)
		}
	}
	state := Predictive
	switch {
	case len(bound) > 0 && len(missing) > 0:
		return nil, fmt.Errorf("%w: bound %v but not %v", ErrPartialObservation, bound, missing)
	case len(bound) > 0 || len(m.observed) == 0:
		state = Complete
	}

	names := make([]string, len(m.params))
	shapes := make([][]int, len(m.params))
	byName := make(map[string][]int, len(m.params))
	for i, p := range m.params {
		shape, err := p.resolveShape(dims)
		if err != nil {
			return nil, err
		}
		names[i], shapes[i] = p.name, shape
		byName[p.name] = shape
	}

	for name, v := range data {
		data[name] = v.Ref()
	}
	bm := &BoundModel{
		model:  m,
		state:  state,
		data:   data,
		dims:   dims,
		shapes: byName,
		tmpl:   pytree.NewTemplate(names, shapes),
	}
	if state == Complete {
		bm.LogProb = bm.logProb
	}
	return bm, nil
}

func (p *paramEntry) resolveShape(dims DimMap) ([]int, error) {
	if p.hasShape {
		return p.shape.resolve(dims, fmt.Sprintf("param %q", p.name))
	}
	if p.prior != nil {
		return slices.Clone(p.prior.Shape()), nil
	}
	return []int{}, nil
}

// State reports whether the model has a likelihood.
func (b *BoundModel) State() State { return b.state }

// Template is the structure of the param trees LogProb accepts.
func (b *BoundModel) Template() pytree.Template { return b.tmpl }

// Dims returns a copy of the resolved symbolic dimensions.
func (b *BoundModel) Dims() DimMap {
	out := make(DimMap, len(b.dims))
	for k, v := range b.dims {
		out[k] = v
	}
	return out
}

// Model returns the specification the data was bound to.
func (b *BoundModel) Model() *Model { return b.model }

// Close releases the bound data. The model must not be evaluated afterwards.
func (b *BoundModel) Close() {
	for name, v := range b.data {
		v.Dispose()
		delete(b.data, name)
	}
}
