package sampler

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/posterior/internal/logger"
	"github.com/samcharles93/posterior/internal/metrics"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

// Defaults applied to zero-valued options.
const (
	DefaultNumWarmup        = 1000
	DefaultNumLeapfrogSteps = 25
	DefaultNumChains        = 1
	DefaultInitialStepSize  = 0.1
	DefaultTargetAcceptRate = 0.8
)

var ErrInvalidConfiguration = errors.New("sampler: invalid configuration")

// Options configures an HMC run. NumSamples, InitialParams and Key are
// required; every other zero value selects its default.
type Options struct {
	NumSamples int
	// NumWarmup nil selects DefaultNumWarmup; Int(0) disables warmup.
	NumWarmup        *int
	NumLeapfrogSteps int
	NumChains        int
	InitialStepSize  float64
	TargetAcceptRate float64
	// AdaptMassMatrix nil selects true.
	AdaptMassMatrix *bool

	// InitialParams is the unconstrained starting point of every chain. It is
	// borrowed for the duration of the run.
	InitialParams pytree.Tree
	Key           tensor.Key

	// Parallel runs chains concurrently. Results are identical to a
	// sequential run.
	Parallel bool

	Logger  logger.Logger
	Metrics *metrics.Sampler
}

// Int returns a pointer to v, for NumWarmup.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for AdaptMassMatrix.
func Bool(v bool) *bool { return &v }

// config is Options with defaults applied and values checked.
type config struct {
	numSamples       int
	numWarmup        int
	numLeapfrogSteps int
	numChains        int
	initialStepSize  float64
	targetAcceptRate float64
	adaptMassMatrix  bool
	initialParams    pytree.Tree
	key              tensor.Key
	parallel         bool
	log              logger.Logger
	metrics          *metrics.Sampler
}

func (o Options) resolve() (config, error) {
	cfg := config{
		numSamples:       o.NumSamples,
		numWarmup:        DefaultNumWarmup,
		numLeapfrogSteps: o.NumLeapfrogSteps,
		numChains:        o.NumChains,
		initialStepSize:  o.InitialStepSize,
		targetAcceptRate: o.TargetAcceptRate,
		adaptMassMatrix:  true,
		initialParams:    o.InitialParams,
		key:              o.Key,
		parallel:         o.Parallel,
		log:              o.Logger,
		metrics:          o.Metrics,
	}
	if o.NumWarmup != nil {
		cfg.numWarmup = *o.NumWarmup
	}
	if o.AdaptMassMatrix != nil {
		cfg.adaptMassMatrix = *o.AdaptMassMatrix
	}
	if cfg.numLeapfrogSteps == 0 {
		cfg.numLeapfrogSteps = DefaultNumLeapfrogSteps
	}
	if cfg.numChains == 0 {
		cfg.numChains = DefaultNumChains
	}
	if cfg.initialStepSize == 0 {
		cfg.initialStepSize = DefaultInitialStepSize
	}
	if cfg.targetAcceptRate == 0 {
		cfg.targetAcceptRate = DefaultTargetAcceptRate
	}
	if cfg.log == nil {
		cfg.log = logger.Discard()
	}

	switch {
	case cfg.numSamples <= 0:
		return config{}, fmt.Errorf("%w: numSamples must be positive, got %d", ErrInvalidConfiguration, cfg.numSamples)
	case cfg.numWarmup < 0:
		return config{}, fmt.Errorf("%w: numWarmup must not be negative, got %d", ErrInvalidConfiguration, cfg.numWarmup)
	case cfg.numLeapfrogSteps < 1:
		return config{}, fmt.Errorf("%w: numLeapfrogSteps must be at least 1, got %d", ErrInvalidConfiguration, cfg.numLeapfrogSteps)
	case cfg.numChains < 1:
		return config{}, fmt.Errorf("%w: numChains must be at least 1, got %d", ErrInvalidConfiguration, cfg.numChains)
	case !(cfg.initialStepSize > 0) || math.IsInf(cfg.initialStepSize, 0):
		return config{}, fmt.Errorf("%w: initialStepSize must be positive and finite, got %g", ErrInvalidConfiguration, cfg.initialStepSize)
	case !(cfg.targetAcceptRate > 0 && cfg.targetAcceptRate < 1):
		return config{}, fmt.Errorf("%w: targetAcceptRate must be in (0, 1), got %g", ErrInvalidConfiguration, cfg.targetAcceptRate)
	case cfg.initialParams.Len() == 0:
		return config{}, fmt.Errorf("%w: initialParams is required", ErrInvalidConfiguration)
	case cfg.key == (tensor.Key{}):
		return config{}, fmt.Errorf("%w: key is required", ErrInvalidConfiguration)
	}
	return cfg, nil
}
