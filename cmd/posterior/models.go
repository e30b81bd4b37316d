package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/posteriordb"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls"},
		Usage:   "List built-in models",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%-24s %-28s %s\n", "NAME", "PARAMS", "DESCRIPTION")
			for _, p := range posteriordb.All() {
				m, err := p.Model()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", p.Name, err), 1)
				}
				params := strings.Join(m.Names().Params, ",")
				fmt.Printf("%-24s %-28s %s\n", p.Name, params, p.Description)
			}
			return nil
		},
	}
}
