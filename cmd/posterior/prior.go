package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/model"
	"github.com/samcharles93/posterior/internal/pytree"
	"github.com/samcharles93/posterior/internal/tensor"
)

type priorOutput struct {
	Model         string               `json:"model"`
	Seed          uint64               `json:"seed"`
	Params        map[string][]float64 `json:"params"`
	Unconstrained map[string][]float64 `json:"unconstrained"`
	Observed      map[string][]float64 `json:"observed,omitempty"`
}

func priorCmd() *cli.Command {
	return &cli.Command{
		Name:  "prior",
		Usage: "Draw one set of params from the priors of a built-in model",
		Flags: modelFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			out, err := drawPrior(c, false)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printJSON(os.Stdout, out)
		},
	}
}

func simulateCmd() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Draw params from the priors, then observations given those params",
		Flags: modelFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			out, err := drawPrior(c, true)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printJSON(os.Stdout, out)
		},
	}
}

// drawPrior binds the model without observations, draws params from the
// priors and, with simulate set, observations from the likelihood. The
// param and observation draws use independent keys split off the seed.
func drawPrior(c *cli.Command, simulate bool) (*priorOutput, error) {
	cfg, err := loadRunConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyModelConfig(c, cfg)
	p, err := resolvePosterior(cfg)
	if err != nil {
		return nil, err
	}
	bm, err := p.Bind(false)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", p.Name, err)
	}
	defer bm.Close()

	priorKey, simKey := tensor.NewKey(seed).Split2()
	params, err := bm.SamplePrior(priorKey)
	if err != nil {
		return nil, fmt.Errorf("sample prior: %w", err)
	}
	defer params.Dispose()
	constrained, err := bm.Constrain(params)
	if err != nil {
		return nil, err
	}
	defer constrained.Dispose()

	out := &priorOutput{
		Model:         p.Name,
		Seed:          seed,
		Params:        treeValues(constrained),
		Unconstrained: treeValues(params),
	}
	if simulate {
		if out.Observed, err = simulateObserved(bm, params, simKey); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func simulateObserved(bm *model.BoundModel, params pytree.Tree, key tensor.Key) (map[string][]float64, error) {
	sims, err := bm.Simulate(params, key)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	out := make(map[string][]float64, len(sims))
	for name, v := range sims {
		out[name] = v.Values()
		v.Dispose()
	}
	return out, nil
}

func treeValues(t pytree.Tree) map[string][]float64 {
	out := make(map[string][]float64, t.Len())
	names := t.Names()
	for i, leaf := range t.Leaves() {
		out[names[i]] = leaf.Values()
	}
	return out
}
