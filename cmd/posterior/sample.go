package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/api"
	"github.com/samcharles93/posterior/internal/logger"
	"github.com/samcharles93/posterior/internal/posteriordb"
	"github.com/samcharles93/posterior/internal/sampler"
	"github.com/samcharles93/posterior/internal/summary"
	"github.com/samcharles93/posterior/internal/tensor"
)

func sampleCmd() *cli.Command {
	return &cli.Command{
		Name:  "sample",
		Usage: "Run adaptive HMC on a built-in model and print a posterior summary",
		Flags: slices.Concat(modelFlags(), samplerFlags(), outputFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := loadRunConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}
			applySampleConfig(c, cfg)

			p, err := resolvePosterior(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			bm, err := p.Bind(true)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: bind %s: %v", p.Name, err), 1)
			}
			defer bm.Close()
			init := p.InitialParams(bm.Template())
			defer init.Dispose()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			log.Info("sampling",
				"model", p.Name,
				"samples", numSamples,
				"warmup", numWarmup,
				"chains", numChains,
				"seed", seed,
			)
			start := time.Now()
			res, err := sampler.HMC(ctx, bm.LogProb, sampler.Options{
				NumSamples:       numSamples,
				NumWarmup:        sampler.Int(numWarmup),
				NumLeapfrogSteps: numLeapfrog,
				NumChains:        numChains,
				InitialStepSize:  stepSize,
				TargetAcceptRate: targetAccept,
				AdaptMassMatrix:  sampler.Bool(!noAdaptMass),
				InitialParams:    init,
				Key:              tensor.NewKey(seed),
				Parallel:         parallel,
				Logger:           log,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: sample: %v", err), 1)
			}
			defer res.Dispose()

			draws, err := bm.Constrain(res.Draws)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: constrain draws: %v", err), 1)
			}
			defer draws.Dispose()
			stats, err := summary.Compute(draws)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: summarize: %v", err), 1)
			}

			fmt.Printf("%s: %d chains x %d draws (%d warmup) in %s\n\n",
				p.Name, res.Stats.NumChains, res.Stats.NumSamples, res.Stats.NumWarmup,
				time.Since(start).Round(time.Millisecond))
			if err := summary.Write(os.Stdout, stats); err != nil {
				return err
			}
			checks := checkReferences(p.References, stats)
			writeReferences(os.Stdout, checks)
			fmt.Printf("\naccept rate %.3f  step size %.4g  divergences %d\n",
				res.Stats.AcceptRate, res.Stats.StepSize, res.Stats.Divergences)

			if outPath == "" {
				return nil
			}
			out := sampleOutput{
				Model:      p.Name,
				Seed:       seed,
				Stats:      api.NewRunStats(res.Stats),
				Summary:    stats,
				References: checks,
				Draws:      api.DrawsOf(draws),
			}
			if err := writeJSONFile(outPath, out); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
			}
			log.Info("wrote draws", "path", outPath)
			return nil
		},
	}
}

// resolvePosterior looks up modelName and applies data overrides from cfg.
func resolvePosterior(cfg Config) (*posteriordb.Posterior, error) {
	p, err := posteriordb.Lookup(modelName)
	if err != nil {
		return nil, err
	}
	if len(cfg.Data) > 0 {
		p = p.WithData(cfg.Data)
	}
	return p, nil
}
