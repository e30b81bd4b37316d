package main

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/posterior/internal/api"
	"github.com/samcharles93/posterior/internal/logger"
	"github.com/samcharles93/posterior/internal/metrics"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST API for sampling runs",
		Flags: serveFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(c, LoadConfig())

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			store := api.NewRunStore()
			defer store.Close()
			service := api.NewSamplingService(api.ServiceConfig{
				MaxConcurrent: maxConcurrent,
				MaxIterations: maxIterations,
				Metrics:       metrics.New(reg),
				Logger:        log,
			})
			server := api.NewServer(store, service, reg)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", serveAddr, "max_concurrent", maxConcurrent)
			sc := echo.StartConfig{
				Address: serveAddr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
