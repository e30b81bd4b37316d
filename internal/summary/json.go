package summary

import (
	"math"

	"github.com/goccy/go-json"
)

// statJSON is the wire form of Stat. Non-finite diagnostics, such as the
// split R-hat of a short or stalled run, are encoded as null.
type statJSON struct {
	Label  string   `json:"label"`
	Mean   *float64 `json:"mean"`
	SD     *float64 `json:"sd"`
	Q5     *float64 `json:"q5"`
	Median *float64 `json:"median"`
	Q95    *float64 `json:"q95"`
	RHat   *float64 `json:"rhat"`
	ESS    *float64 `json:"ess"`
}

func (s Stat) MarshalJSON() ([]byte, error) {
	return json.Marshal(statJSON{
		Label:  s.Label,
		Mean:   finite(s.Mean),
		SD:     finite(s.SD),
		Q5:     finite(s.Q5),
		Median: finite(s.Median),
		Q95:    finite(s.Q95),
		RHat:   finite(s.RHat),
		ESS:    finite(s.ESS),
	})
}

// UnmarshalJSON reads null fields back as NaN.
func (s *Stat) UnmarshalJSON(b []byte) error {
	var w statJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Stat{
		Label:  w.Label,
		Mean:   orNaN(w.Mean),
		SD:     orNaN(w.SD),
		Q5:     orNaN(w.Q5),
		Median: orNaN(w.Median),
		Q95:    orNaN(w.Q95),
		RHat:   orNaN(w.RHat),
		ESS:    orNaN(w.ESS),
	}
	return nil
}

// Floats is a float64 slice whose JSON form has null in place of NaN and
// infinite elements.
type Floats []float64

func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			w := make([]*float64, len(f))
			for i, v := range f {
				w[i] = finite(v)
			}
			return json.Marshal(w)
		}
	}
	return json.Marshal([]float64(f))
}

func (f *Floats) UnmarshalJSON(b []byte) error {
	var w []*float64
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w == nil {
		*f = nil
		return nil
	}
	out := make(Floats, len(w))
	for i, p := range w {
		out[i] = orNaN(p)
	}
	*f = out
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
