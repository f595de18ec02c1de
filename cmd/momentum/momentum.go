// Package momentum implements the momentum ranking command.
package momentum

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/momentum"
	"github.com/dwang48/steam-scraper/internal/notify"
)

// Command creates the momentum command: compute follower growth rankings
// over one or more lookback windows and persist the published rows.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		windows  []int
		dateFlag string
		topN     int
	)

	cmd := &cobra.Command{
		Use:   "momentum",
		Short: "Rank unreleased titles by follower growth",
		Long:  "Compute per-day metric growth over the configured lookback windows, rank qualifying unreleased titles, and store the rows at or above the publish percentile.",
		RunE: func(cmd *cobra.Command, args []string) error {
			calcDate := time.Now().UTC()
			if dateFlag != "" {
				parsed, err := time.Parse(datastore.DateLayout, dateFlag)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", dateFlag, err)
				}
				calcDate = parsed
			}
			if len(windows) == 0 {
				windows = settings.Momentum.Windows
			}
			if len(windows) == 0 {
				windows = []int{7, 30}
			}
			return run(settings, windows, calcDate, topN)
		},
	}

	cmd.Flags().IntSliceVar(&windows, "window", viper.GetIntSlice("momentum.windows"), "Lookback windows in days (repeatable)")
	cmd.Flags().StringVar(&dateFlag, "date", "", "Calculation date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&topN, "top", viper.GetInt("notify.topn"), "Rows to print and notify per window")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		slog.Warn("Failed to bind momentum flags", "error", err)
	}

	return cmd
}

func run(settings *conf.Settings, windows []int, calcDate time.Time, topN int) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled, enable output.sqlite or output.mysql")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close datastore", "error", err)
		}
	}()

	notifier, err := notify.New(settings.Notify.Enabled, settings.Notify.URLs, settings.Notify.Timeout)
	if err != nil {
		return err
	}

	engine := momentum.NewEngine(store, momentum.Config{
		MinBaseline:       int64(settings.Momentum.MinBaseline),
		PublishPercentile: settings.Momentum.PublishPercentile,
	})

	dateKey := calcDate.Format(datastore.DateLayout)
	for _, windowDays := range windows {
		summary, err := engine.ComputeWindow(windowDays, calcDate)
		if err != nil {
			return err
		}
		fmt.Printf("Window %dd ending %s: %d candidates, %d published\n",
			summary.WindowDays, summary.CalcDate, summary.Candidates, summary.Published)

		rows, err := store.GetMomentumResults(windowDays, dateKey, topN)
		if err != nil {
			return err
		}
		for _, row := range rows {
			fmt.Printf("%3d. %-40s +%.1f/day  (baseline %d, latest %d, %s, p%.2f)\n",
				row.Rank, row.Name, row.DeltaPerDay, row.Baseline, row.Latest, row.MetricName, row.Percentile)
		}
		if err := notifier.SendMomentumHighlights(windowDays, dateKey, rows, topN); err != nil {
			slog.Warn("Momentum notification failed", "window_days", windowDays, "error", err)
		}
	}
	return nil
}
