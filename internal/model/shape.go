package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samcharles93/posterior/internal/tensor"
)

// DimMap holds the sizes of symbolic dimensions resolved from bound data.
type DimMap map[string]int

// dim is one token of a shape: a fixed size or a symbolic name.
type dim struct {
	size int
	name string
}

// ShapeSpec is a sequence of fixed sizes and symbolic dimension names.
type ShapeSpec []dim

// parseShape accepts ints and strings, or a single []int / []string / []any.
func parseShape(tokens []any) (ShapeSpec, error) {
	if len(tokens) == 1 {
		switch v := tokens[0].(type) {
		case []int:
			tokens = make([]any, len(v))
			for i, d := range v {
				tokens[i] = d
			}
		case []string:
			tokens = make([]any, len(v))
			for i, d := range v {
				tokens[i] = d
			}
		case []any:
			tokens = v
		}
	}
	spec := make(ShapeSpec, 0, len(tokens))
	for _, tok := range tokens {
		switch v := tok.(type) {
		case int:
			if v < 0 {
				return nil, fmt.Errorf("negative dimension %d", v)
			}
			spec = append(spec, dim{size: v})
		case string:
			if v == "" {
				return nil, fmt.Errorf("empty dimension name")
			}
			spec = append(spec, dim{size: -1, name: v})
		default:
			return nil, fmt.Errorf("dimension %v of type %T is neither an int nor a name", tok, tok)
		}
	}
	return spec, nil
}

func (s ShapeSpec) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d.name != "" {
			parts[i] = d.name
		} else {
			parts[i] = strconv.Itoa(d.size)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// resolve substitutes dims for every symbolic name.
func (s ShapeSpec) resolve(dims DimMap, label string) ([]int, error) {
	out := make([]int, len(s))
	for i, d := range s {
		if d.name == "" {
			out[i] = d.size
			continue
		}
		v, ok := dims[d.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s uses dimension %q which no bound data defines", ErrUnresolvedDimension, label, d.name)
		}
		out[i] = v
	}
	return out, nil
}

// apply checks actual against the shape spec and records symbolic sizes in dims.
func (s ShapeSpec) apply(actual []int, dims DimMap, label string) error {
	if len(s) != len(actual) {
		return fmt.Errorf("%w: %s has shape %v but expected %v", ErrShapeMismatch, label, actual, s)
	}
	for i, d := range s {
		got := actual[i]
		if d.name == "" {
			if d.size != got {
				return fmt.Errorf("%w: %s has shape %v but expected %v", ErrShapeMismatch, label, actual, s)
			}
			continue
		}
		if err := dims.set(d.name, got, label); err != nil {
			return err
		}
	}
	return nil
}

// bindData resolves the shape of a data value. A 0-d value bound to a
// single symbolic token is taken as the size of that dimension, so "N" may
// be bound to the count itself.
func (s ShapeSpec) bindData(v *tensor.Tensor, dims DimMap, label string) error {
	if v.Ndim() == 0 && len(s) == 1 && s[0].name != "" {
		n := v.Item()
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return fmt.Errorf("%w: %s binds dimension %q to %g which is not a size", ErrShapeMismatch, label, s[0].name, n)
		}
		return dims.set(s[0].name, int(n), label)
	}
	return s.apply(v.Shape(), dims, label)
}

func (d DimMap) set(name string, size int, label string) error {
	if prev, ok := d[name]; ok && prev != size {
		return fmt.Errorf("%w: dimension %q is %d but %s gives %d", ErrDimensionConflict, name, prev, label, size)
	}
	d[name] = size
	return nil
}
