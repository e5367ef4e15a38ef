package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/facetrace-ai/facetrace/pkg/cache"
	"github.com/facetrace-ai/facetrace/pkg/cache/sqlite"
	"github.com/facetrace-ai/facetrace/pkg/config"
)

func openStore(cfg *config.Config) (*sqlite.Store, error) {
	return sqlite.New(cfg.DBPath, cache.Policy{
		FailureRetention: cfg.Cache.FailureRetention,
		StaleRetention:   cfg.Cache.StaleRetention,
	})
}

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Entries:        %d (%d live, %d expired)\n", stats.Entries, stats.Live, stats.Expired)
			fmt.Printf("Successes:      %d\n", stats.Successes)
			fmt.Printf("Failures:       %d\n", stats.Failures)
			fmt.Printf("Stored hits:    %d\n", stats.StoredHits)
			fmt.Printf("Artifact data:  %s\n", humanize.Bytes(uint64(stats.ArtifactBytes)))
			fmt.Printf("Mean compute:   %.0f ms\n", stats.MeanProcessingMs)
			saved := time.Duration(float64(stats.StoredHits)*stats.MeanProcessingMs) * time.Millisecond
			fmt.Printf("Compute saved:  %s (estimated)\n", saved.Truncate(time.Millisecond))
			return nil
		},
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Cache is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EXACT KEY\tSTATUS\tCREATED\tEXPIRES\tHITS\tSIZE")
			for _, e := range entries {
				fmt.Fprintf(w, "%.12s\t%s\t%s\t%s\t%d\t%s\n",
					e.ExactKey, e.Status,
					e.CreatedAt.Format("2006-01-02T15:04:05"),
					e.ExpiresAt.Format("2006-01-02T15:04:05"),
					e.HitCount, humanize.Bytes(uint64(e.ArtifactBytes)))
			}
			return w.Flush()
		},
	}
	recentCmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and reclaimable entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.SweepExpired(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries.\n", removed)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.Clear(context.Background(), expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Removed %d expired entries.\n", removed)
			} else {
				fmt.Printf("Removed %d entries.\n", removed)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.AddCommand(statsCmd, recentCmd, sweepCmd, clearCmd)
	return cmd
}
