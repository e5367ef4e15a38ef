package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/facetrace-ai/facetrace/pkg/cache"
	"github.com/facetrace-ai/facetrace/pkg/config"
	"github.com/facetrace-ai/facetrace/pkg/fingerprint"
	"github.com/facetrace-ai/facetrace/pkg/metrics"
	"github.com/facetrace-ai/facetrace/pkg/render"
	"github.com/facetrace-ai/facetrace/pkg/resolver"
	"github.com/facetrace-ai/facetrace/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the overlay rendering API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
				log.SetLevel(lvl)
			} else {
				log.Warn("Unknown log level, keeping info", "level", cfg.LogLevel)
			}

			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = store.Close() }()

			recorder := metrics.NewNoop()
			if cfg.Metrics.Enabled {
				provider, meter, err := metrics.NewPrometheusProvider("facetrace")
				if err != nil {
					return fmt.Errorf("init metrics: %w", err)
				}
				defer func() { _ = provider.Shutdown(context.Background()) }()
				recorder, err = metrics.New(meter)
				if err != nil {
					return fmt.Errorf("init metrics: %w", err)
				}
			}

			sweeper := cache.NewSweeper(store, cfg.Cache.SweepInterval, recorder)
			sweeper.Start()
			defer sweeper.Stop()

			res := resolver.New(
				fingerprint.New(cfg.Cache.PerceptualGridSize),
				store,
				render.New(),
				recorder,
				resolver.Options{
					TTLSuccess:          cfg.Cache.TTLSuccess,
					TTLFailure:          cfg.Cache.TTLFailure,
					SimilarityThreshold: cfg.Cache.SimilarityThreshold,
				},
			)

			srv := server.New(cfg, res, store, sweeper)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	return cmd
}
