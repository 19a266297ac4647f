package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"finbot/internal/cli"
	apphttp "finbot/internal/http"
	"finbot/internal/log"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the assistant over HTTP:

  GET  /api/period?q=<text>
  GET  /api/artifact?q=<text>  (or ?year=&month=)
  GET  /api/balances
  POST /api/balances/refresh
  GET  /api/status
  GET  /api/history?limit=N
  GET  /healthz, /readyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.bootstrap(cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			return runServer(app)
		},
	}
}

func runServer(app *cli.App) error {
	cfg, logger := app.Config, app.Logger

	serverOpts := []apphttp.Option{
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithArtifactMemo(cfg.ArtifactCacheSize, cfg.ArtifactCacheTTL),
		apphttp.WithRequestTimeout(cfg.RenderTimeout + cfg.SettleDelay + time.Minute),
		apphttp.WithReadinessCheck("workspace", func(ctx context.Context) error {
			_, err := app.Backend.Service.OpenWorkspace(ctx, app.Backend.Workspace)
			return err
		}),
	}
	if app.Journal != nil {
		serverOpts = append(serverOpts, apphttp.WithReadinessCheck("journal", app.Journal.Ping))
	}
	srv := apphttp.NewServer(":"+cfg.Port, app.Assistant, serverOpts...)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting finbot server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldWorkspace, app.Backend.Workspace,
		"journal", app.Journal != nil,
		"events", app.Events != nil)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = srv.Close()
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}
