package tensor

// Scope collects owned intermediates so that a function building a value out
// of several ops can release them with a single deferred Close.
//
//	var s tensor.Scope
//	defer s.Close()
//	z := s.T(tensor.Sub(x, loc))
//	return tensor.Square(z)
type Scope struct {
	ts []*Tensor
}

// T registers t for disposal on Close and returns it.
func (s *Scope) T(t *Tensor) *Tensor {
	s.ts = append(s.ts, t)
	return t
}

// Close disposes every registered tensor.
func (s *Scope) Close() {
	DisposeAll(s.ts...)
	s.ts = nil
}
