package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/llmgate/pkg/auth"
	"github.com/pario-ai/llmgate/pkg/backend"
	"github.com/pario-ai/llmgate/pkg/cache"
	"github.com/pario-ai/llmgate/pkg/config"
	"github.com/pario-ai/llmgate/pkg/gateway"
	"github.com/pario-ai/llmgate/pkg/logging"
	"github.com/pario-ai/llmgate/pkg/metrics"
	"github.com/pario-ai/llmgate/pkg/ratelimit"
	"github.com/pario-ai/llmgate/pkg/server"
	"github.com/pario-ai/llmgate/pkg/tracker"
)

const warmupPrompt = "Hello!"

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inference gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.New(cfg.LogLevel, cfg.Environment)
			defer func() { _ = logger.Sync() }()

			issuer, err := auth.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.TokenTTL())
			if err != nil {
				return fmt.Errorf("init issuer: %w", err)
			}

			client, err := backend.New(cfg.Backend.URL, cfg.Backend.Model)
			if err != nil {
				return fmt.Errorf("init backend: %w", err)
			}

			var promptCache *cache.Cache
			if cfg.Cache.Enabled {
				promptCache = cache.New(cfg.Cache.Capacity)
			}

			agg := metrics.NewAggregator()
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				metrics.NewCollector(agg),
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window())

			deps := gateway.Deps{
				Store:   auth.NewStore(cfg.Users),
				Issuer:  issuer,
				Limiter: limiter,
				Cache:   promptCache,
				Metrics: agg,
				Backend: client,
				Logger:  logger,
				Timeout: cfg.Backend.Timeout,
			}
			if cfg.History.DBPath != "" {
				tr, err := tracker.New(cfg.History.DBPath, cfg.History.RetentionDays)
				if err != nil {
					return fmt.Errorf("init tracker: %w", err)
				}
				defer func() { _ = tr.Close() }()
				deps.Recorder = tr
			}
			gw := gateway.New(deps)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.RateLimit.SweepInterval > 0 {
				go limiter.Run(ctx, cfg.RateLimit.SweepInterval)
			}

			if client.Health(ctx) {
				logger.Info("backend available", zap.String("url", cfg.Backend.URL), zap.String("model", cfg.Backend.Model))
			} else {
				logger.Warn("backend not available, ensure it is running", zap.String("url", cfg.Backend.URL))
			}
			if cfg.Backend.Warmup {
				go warmup(ctx, client, logger)
			}

			srv := server.New(cfg, gw, client, reg, logger)
			logger.Info("starting llmgate",
				zap.String("config", configPath),
				zap.String("api_version", cfg.APIVersion),
				zap.Int("rate_limit_requests", cfg.RateLimit.Requests),
				zap.Int("rate_limit_window_seconds", cfg.RateLimit.WindowSeconds),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func warmup(ctx context.Context, client *backend.Client, logger *zap.Logger) {
	d, err := client.Warmup(ctx, warmupPrompt)
	if err != nil {
		logger.Warn("model warmup failed", zap.Error(err))
		return
	}
	logger.Info("model warmup complete", zap.Float64("seconds", logging.Millis(d)/1000))
}
