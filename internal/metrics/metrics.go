// Package metrics exposes Prometheus collectors for sampler runs. A nil
// *Sampler is valid and records nothing, so library callers can leave
// metrics unset.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase labels for iteration counters.
const (
	PhaseWarmup   = "warmup"
	PhaseSampling = "sampling"
)

// Run status labels.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Sampler holds the collectors for HMC runs.
type Sampler struct {
	runs          *prometheus.CounterVec
	chains        prometheus.Counter
	iterations    *prometheus.CounterVec
	divergences   prometheus.Counter
	acceptRate    prometheus.Histogram
	stepSize      prometheus.Histogram
	chainDuration prometheus.Histogram
}

// New registers the sampler collectors with reg.
func New(reg prometheus.Registerer) *Sampler {
	f := promauto.With(reg)
	return &Sampler{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "posterior_sampler_runs_total",
			Help: "Total HMC runs by status",
		}, []string{"status"}),
		chains: f.NewCounter(prometheus.CounterOpts{
			Name: "posterior_sampler_chains_total",
			Help: "Total chains completed",
		}),
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "posterior_sampler_iterations_total",
			Help: "Total HMC iterations by phase",
		}, []string{"phase"}),
		divergences: f.NewCounter(prometheus.CounterOpts{
			Name: "posterior_sampler_divergences_total",
			Help: "Total divergent transitions during sampling",
		}),
		acceptRate: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "posterior_sampler_accept_rate",
			Help:    "Per-chain acceptance rate over the sampling phase",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		stepSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "posterior_sampler_step_size",
			Help:    "Per-chain step size frozen at the end of warmup",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		chainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "posterior_sampler_chain_duration_seconds",
			Help:    "Wall time per chain",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

// Iteration counts one iteration of the given phase.
func (s *Sampler) Iteration(phase string) {
	if s == nil {
		return
	}
	s.iterations.WithLabelValues(phase).Inc()
}

// Divergence counts one divergent sampling transition.
func (s *Sampler) Divergence() {
	if s == nil {
		return
	}
	s.divergences.Inc()
}

// ChainDone records the diagnostics of a finished chain.
func (s *Sampler) ChainDone(acceptRate, stepSize float64, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.chains.Inc()
	s.acceptRate.Observe(acceptRate)
	s.stepSize.Observe(stepSize)
	s.chainDuration.Observe(elapsed.Seconds())
}

// RunDone counts a finished run.
func (s *Sampler) RunDone(status string) {
	if s == nil {
		return
	}
	s.runs.WithLabelValues(status).Inc()
}
