package summary

import (
	"math"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

func TestStalledChainsEncode(t *testing.T) {
	// Two chains stuck at different points: zero within-chain variance.
	vals := make([]float64, 16)
	for i := range 8 {
		vals[i], vals[8+i] = 1, 2
	}
	x := tensor.FromSlice(vals, 2, 8)
	draws := pytree.New([]string{"x"}, []*tensor.Tensor{x})
	defer draws.Dispose()

	stats, err := Compute(draws)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.True(t, math.IsInf(stats[0].RHat, 1), "rhat %g", stats[0].RHat)

	b, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"rhat":null`)

	var back []Stat
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 1)
	assert.Equal(t, "x", back[0].Label)
	assert.InDelta(t, 1.5, back[0].Mean, 1e-12)
	assert.True(t, math.IsNaN(back[0].RHat))
}

func TestShortRunEncodes(t *testing.T) {
	x := tensor.FromSlice([]float64{0.1, 0.4, 0.2}, 1, 3)
	draws := pytree.New([]string{"x"}, []*tensor.Tensor{x})
	defer draws.Dispose()

	stats, err := Compute(draws)
	require.NoError(t, err)
	require.True(t, math.IsNaN(stats[0].RHat))

	b, err := json.Marshal(stats[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), `{"label":"x","mean":0.23`), string(b))
	assert.Contains(t, string(b), `"rhat":null`)
}

func TestFloatsJSON(t *testing.T) {
	b, err := json.Marshal(Floats{1.5, math.Inf(1), math.NaN(), -2})
	require.NoError(t, err)
	assert.Equal(t, `[1.5,null,null,-2]`, string(b))

	b, err = json.Marshal(Floats{0.25, 3})
	require.NoError(t, err)
	assert.Equal(t, `[0.25,3]`, string(b))

	var back Floats
	require.NoError(t, json.Unmarshal([]byte(`[1.5,null,-2]`), &back))
	require.Len(t, back, 3)
	assert.Equal(t, 1.5, back[0])
	assert.True(t, math.IsNaN(back[1]))
	assert.Equal(t, -2.0, back[2])
}
