package model

import (
	"github.com/samcharles93/posterior/internal/constraint"
	"github.com/samcharles93/posterior/internal/dist"
	"github.com/samcharles93/posterior/internal/tensor"
)

// Role is the part an entry plays in a model.
type Role int

const (
	RoleParam Role = iota
	RoleData
	RoleObserved
	RoleDerived
)

func (r Role) String() string {
	switch r {
	case RoleParam:
		return "param"
	case RoleData:
		return "data"
	case RoleObserved:
		return "observed"
	case RoleDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// Entry is one named declaration of a model. The set of entries is closed:
// only the constructors in this package produce them.
type Entry interface {
	Name() string
	Role() Role
	entry()
}

// PriorFactory builds a prior from the evaluation context, for priors whose
// parameters depend on data or on other params.
type PriorFactory func(ctx *Context) dist.Distribution

// LikelihoodFactory builds the distribution of an observed value.
type LikelihoodFactory func(ctx *Context) dist.Distribution

// DerivedFunc computes a deterministic quantity. The result is owned by the
// context; return v.Ref() to alias an existing value.
type DerivedFunc func(ctx *Context) *tensor.Tensor

// Option configures a Param or Data entry.
type Option func(*options)

type options struct {
	constraint constraint.Constraint
	shape      ShapeSpec
	shapeErr   error
	hasShape   bool
}

// WithConstraint samples the param in unconstrained space through c.
func WithConstraint(c constraint.Constraint) Option {
	return func(o *options) { o.constraint = c }
}

// WithShape declares the shape of a param or data entry. Tokens are ints for
// fixed sizes and strings for symbolic dimensions, e.g. WithShape("N", 2).
func WithShape(tokens ...any) Option {
	return func(o *options) {
		o.shape, o.shapeErr = parseShape(tokens)
		o.hasShape = true
	}
}

type paramEntry struct {
	name    string
	prior   dist.Distribution
	factory PriorFactory
	options
}

type dataEntry struct {
	name string
	options
}

type observedEntry struct {
	name    string
	factory LikelihoodFactory
}

type derivedEntry struct {
	name string
	fn   DerivedFunc
	deps []string
}

func (e *paramEntry) Name() string    { return e.name }
func (e *dataEntry) Name() string     { return e.name }
func (e *observedEntry) Name() string { return e.name }
func (e *derivedEntry) Name() string  { return e.name }

func (*paramEntry) Role() Role    { return RoleParam }
func (*dataEntry) Role() Role     { return RoleData }
func (*observedEntry) Role() Role { return RoleObserved }
func (*derivedEntry) Role() Role  { return RoleDerived }

func (*paramEntry) entry()    {}
func (*dataEntry) entry()     {}
func (*observedEntry) entry() {}
func (*derivedEntry) entry()  {}

// Param declares a free parameter with a fixed prior on its constrained value.
func Param(name string, prior dist.Distribution, opts ...Option) Entry {
	e := &paramEntry{name: name, prior: prior}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

// PriorFrom declares a free parameter whose prior is built per evaluation.
// Without WithShape the param is a scalar.
func PriorFrom(name string, factory PriorFactory, opts ...Option) Entry {
	e := &paramEntry{name: name, factory: factory}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

// Data declares an external input that must be bound.
func Data(name string, opts ...Option) Entry {
	e := &dataEntry{name: name}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

// Observed declares a variable with a likelihood. Binding a value for it
// adds its log likelihood to the log density.
func Observed(name string, factory LikelihoodFactory) Entry {
	return &observedEntry{name: name, factory: factory}
}

// Derived declares a deterministic quantity. deps, when given, are checked
// against declaration order when the model is built.
func Derived(name string, fn DerivedFunc, deps ...string) Entry {
	return &derivedEntry{name: name, fn: fn, deps: deps}
}

func (e *paramEntry) distribution(ctx *Context) dist.Distribution {
	if e.factory != nil {
		return e.factory(ctx)
	}
	return e.prior
}
