package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/api"
	"github.com/samcharles93/posterior/internal/sampler"
)

var (
	modelName     string
	numSamples    int
	numWarmup     int
	numChains     int
	numLeapfrog   int
	stepSize      float64
	targetAccept  float64
	noAdaptMass   bool
	parallel      bool
	seed          uint64
	outPath       string
	runConfigPath string

	serveAddr     string
	readTimeout   time.Duration
	maxConcurrent int
	maxIterations int

	logLevel  string
	logFormat string
	debug     bool
)

const defaultModel = "eight-schools"

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "built-in model name (see `posterior models`)",
			Value:       defaultModel,
			Destination: &modelName,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Aliases:     []string{"s"},
			Usage:       "PRNG seed",
			Destination: &seed,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "run file (yaml) with sampler settings and data overrides",
			Destination: &runConfigPath,
		},
	}
}

func samplerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "samples",
			Aliases:     []string{"n"},
			Usage:       "draws per chain after warmup",
			Value:       1000,
			Destination: &numSamples,
		},
		&cli.IntFlag{
			Name:        "warmup",
			Usage:       "adaptation iterations per chain",
			Value:       sampler.DefaultNumWarmup,
			Destination: &numWarmup,
		},
		&cli.IntFlag{
			Name:        "chains",
			Usage:       "number of chains",
			Value:       sampler.DefaultNumChains,
			Destination: &numChains,
		},
		&cli.IntFlag{
			Name:        "leapfrog",
			Aliases:     []string{"L"},
			Usage:       "leapfrog steps per transition",
			Value:       sampler.DefaultNumLeapfrogSteps,
			Destination: &numLeapfrog,
		},
		&cli.FloatFlag{
			Name:        "step-size",
			Usage:       "initial leapfrog step size",
			Value:       sampler.DefaultInitialStepSize,
			Destination: &stepSize,
		},
		&cli.FloatFlag{
			Name:        "target-accept",
			Usage:       "target acceptance rate for step size adaptation",
			Value:       sampler.DefaultTargetAcceptRate,
			Destination: &targetAccept,
		},
		&cli.BoolFlag{
			Name:        "no-adapt-mass",
			Usage:       "keep the identity mass matrix during warmup",
			Destination: &noAdaptMass,
		},
		&cli.BoolFlag{
			Name:        "parallel",
			Usage:       "run chains concurrently",
			Destination: &parallel,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "write draws, stats and summary as JSON to this path",
			Destination: &outPath,
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &serveAddr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.IntFlag{
			Name:        "max-concurrent",
			Usage:       "runs sampled at once; further requests wait",
			Value:       api.DefaultMaxConcurrent,
			Destination: &maxConcurrent,
		},
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "upper bound on chains * (warmup + samples) per run",
			Value:       api.DefaultMaxIterations,
			Destination: &maxIterations,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
