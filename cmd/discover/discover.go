// Package discover implements the discovery and recheck run commands.
package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/pipeline"
)

// Command creates the discover command: one full catalog diff plus detail
// fetches for every new identifier.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one catalog discovery pass",
		Long:  "Fetch the full catalog, diff it against the known identifier set, fetch details for new identifiers, classify them, and record the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), settings, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
				return p.RunDiscovery(ctx)
			})
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}
	return cmd
}

// RecheckCommand creates the recheck command: re-evaluate every watchlist
// entry without touching the catalog diff.
func RecheckCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "recheck",
		Short: "Re-evaluate all watchlist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), settings, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
				return p.RunRecheck(ctx)
			})
		},
	}
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Steam.MaxWorkers, "workers", viper.GetInt("steam.maxworkers"), "Concurrent detail fetch workers")
	cmd.Flags().IntVar(&settings.Discovery.FirstRunCap, "first-run-cap", viper.GetInt("discovery.firstruncap"), "Cap on detail fetches when no previous snapshot exists (0 = unlimited)")
	cmd.Flags().BoolVar(&settings.Discovery.ExportCSV, "export", viper.GetBool("discovery.exportcsv"), "Write a CSV of unreleased discoveries")
	cmd.Flags().BoolVar(&settings.Discovery.RecheckWatchlist, "recheck-watchlist", viper.GetBool("discovery.recheckwatchlist"), "Also re-evaluate watchlist entries during the run")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}
	return nil
}

func printSummary(result *pipeline.RunResult) {
	if result.NothingToDo {
		fmt.Println("Nothing to do: no new identifiers and no watchlist entries to recheck.")
		return
	}
	s := result.Summary
	fmt.Printf("Run %s finished in %s\n", s.Date, s.Elapsed.Round(time.Second))
	fmt.Printf("  new identifiers:  %d\n", s.NewIdentifiers)
	fmt.Printf("  fetched:          %d\n", s.Fetched)
	for _, stage := range []string{"public_unreleased", "early_stage", "minimal_data"} {
		if count := s.StageCounts[stage]; count > 0 {
			fmt.Printf("  %-17s %d\n", stage+":", count)
		}
	}
	fmt.Printf("  released (skip):  %d\n", s.ReleasedFiltered)
	fmt.Printf("  duplicate flags:  %d\n", s.DuplicateFlags)
	fmt.Printf("  watchlist:        %d tracked, %d promoted\n", s.WatchlistSize, s.Promotions)
	if s.ExportPath != "" {
		fmt.Printf("  export:           %s\n", s.ExportPath)
	}
}
