package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print build information as JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			info := version.Resolve()
			if c.Bool("json") {
				return printJSON(os.Stdout, info)
			}
			fmt.Printf("posterior %s\n", info)
			if info.BuildTime != "" {
				fmt.Printf("built      %s\n", info.BuildTime)
			}
			if info.GoVersion != "" {
				fmt.Printf("toolchain  %s\n", info.GoVersion)
			}
			return nil
		},
	}
}
