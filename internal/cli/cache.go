package cli

import (
	"errors"
	"fmt"

	"github.com/raaihank/scan-redactor/internal/cache"
	"github.com/spf13/cobra"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the OCR page cache",
	}
	cmd.AddCommand(newCacheStatsCommand(a), newCacheClearCommand(a))
	return cmd
}

func (a *app) openCache() (*cache.PageCache, error) {
	if !a.cfg.Cache.Enabled {
		return nil, errors.New("OCR cache is disabled; set cache.enabled in the configuration")
	}
	return cache.NewPageCache(cache.ConfigFrom(a.cfg.Cache), a.log)
}

func newCacheStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit rate and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.openCache()
			if err != nil {
				return err
			}
			defer pc.Close()

			stats, err := pc.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "Pages cached: %d\n", stats.TotalKeys)
			fmt.Fprintf(out, "Hit rate:     %.1f%% (%d hits, %d misses)\n", stats.HitRate*100, stats.Hits, stats.Misses)
			fmt.Fprintf(out, "Memory:       %.1f MB\n", float64(stats.MemoryUsage)/(1<<20))
			return nil
		},
	}
}

func newCacheClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.openCache()
			if err != nil {
				return err
			}
			defer pc.Close()

			if err := pc.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OCR cache cleared")
			return nil
		},
	}
}
