// Package summary reduces posterior draws to per-element statistics and
// convergence diagnostics.
package summary

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/posterior/internal/pytree"
)

var ErrDrawShape = errors.New("summary: draws must have leading [chains, samples] axes")

// Stat summarizes one scalar element of a param.
type Stat struct {
	Label  string  `json:"label"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Q5     float64 `json:"q5"`
	Median float64 `json:"median"`
	Q95    float64 `json:"q95"`
	// RHat is the split potential scale reduction. NaN with fewer than four
	// draws per chain.
	RHat float64 `json:"rhat"`
	// ESS is the effective sample size across chains.
	ESS float64 `json:"ess"`
}

// Compute summarizes every element of every leaf. Leaves must have shape
// [chains, samples, ...].
func Compute(draws pytree.Tree) ([]Stat, error) {
	names := draws.Names()
	leaves := draws.Leaves()
	var out []Stat
	for i, leaf := range leaves {
		shape := leaf.Shape()
		if len(shape) < 2 || shape[0] < 1 || shape[1] < 1 {
			return nil, fmt.Errorf("%w: %q has shape %v", ErrDrawShape, names[i], shape)
		}
		chains, samples := shape[0], shape[1]
		event := shape[2:]
		tm := pytree.NewTemplate([]string{names[i]}, [][]int{event})
		labels := tm.Labels()
		width := len(labels)

		data := leaf.Data()
		per := make([][]float64, chains)
		for e, label := range labels {
			for c := range chains {
				xs := make([]float64, samples)
				for s := range samples {
					xs[s] = data[(c*samples+s)*width+e]
				}
				per[c] = xs
			}
			out = append(out, describe(label, per))
		}
	}
	return out, nil
}

func describe(label string, chains [][]float64) Stat {
	all := slices.Concat(chains...)
	mean, sd := stat.MeanStdDev(all, nil)
	if len(all) < 2 {
		sd = 0
	}
	sorted := slices.Clone(all)
	slices.Sort(sorted)
	return Stat{
		Label:  label,
		Mean:   mean,
		SD:     sd,
		Q5:     stat.Quantile(0.05, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		RHat:   SplitRHat(chains),
		ESS:    ESS(chains),
	}
}

// SplitRHat splits every chain in half and compares between-chain and
// within-chain variance across the halves.
func SplitRHat(chains [][]float64) float64 {
	if len(chains) == 0 {
		return math.NaN()
	}
	n := len(chains[0]) / 2
	if n < 2 {
		return math.NaN()
	}
	halves := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		if len(c)/2 != n {
			return math.NaN()
		}
		halves = append(halves, c[:n], c[len(c)-n:])
	}
	return rhat(halves)
}

func rhat(chains [][]float64) float64 {
	m := float64(len(chains))
	n := float64(len(chains[0]))
	means := make([]float64, len(chains))
	vars := make([]float64, len(chains))
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := floats.Sum(vars) / m
	b := n * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// ESS estimates the effective sample size from the autocorrelation averaged
// over chains, truncated by Geyer's initial positive sequence.
func ESS(chains [][]float64) float64 {
	if len(chains) == 0 {
		return math.NaN()
	}
	n := len(chains[0])
	for _, c := range chains {
		if len(c) != n {
			return math.NaN()
		}
	}
	total := float64(n * len(chains))
	if n < 4 {
		return total
	}

	m := float64(len(chains))
	acov := make([][]float64, len(chains))
	means := make([]float64, len(chains))
	vars := make([]float64, len(chains))
	for i, c := range chains {
		acov[i] = autocov(c)
		means[i] = stat.Mean(c, nil)
		vars[i] = acov[i][0] * float64(n) / float64(n-1)
	}
	w := floats.Sum(vars) / m
	varPlus := w * float64(n-1) / float64(n)
	if len(chains) > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return total
	}

	rho := func(t int) float64 {
		var s float64
		for i := range chains {
			s += acov[i][t]
		}
		return 1 - (w-s/m)/varPlus
	}

	// Sum consecutive pairs while they stay positive, forcing the sequence to
	// be non-increasing.
	tau := -1.0
	prev := math.Inf(1)
	for t := 0; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if pair <= 0 {
			break
		}
		pair = math.Min(pair, prev)
		prev = pair
		tau += 2 * pair
	}
	if tau <= 0 {
		return total
	}
	return math.Min(total/tau, total*math.Log10(total))
}

// autocov returns the biased autocovariance of x at every lag.
func autocov(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	centered := slices.Clone(x)
	floats.AddConst(-mean, centered)
	out := make([]float64, n)
	for lag := range n {
		out[lag] = floats.Dot(centered[:n-lag], centered[lag:]) / float64(n)
	}
	return out
}

// Write prints stats as a fixed-width table.
func Write(w io.Writer, stats []Stat) error {
	if _, err := fmt.Fprintf(w, "%-16s %10s %10s %10s %10s %10s %8s %8s\n",
		"param", "mean", "sd", "5%", "50%", "95%", "rhat", "ess"); err != nil {
		return err
	}
	for _, s := range stats {
		if _, err := fmt.Fprintf(w, "%-16s %10.3f %10.3f %10.3f %10.3f %10.3f %8.3f %8.1f\n",
			s.Label, s.Mean, s.SD, s.Q5, s.Median, s.Q95, s.RHat, s.ESS); err != nil {
			return err
		}
	}
	return nil
}
