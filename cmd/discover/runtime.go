package discover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/notify"
	"github.com/dwang48/steam-scraper/internal/observability"
	"github.com/dwang48/steam-scraper/internal/observability/metrics"
	"github.com/dwang48/steam-scraper/internal/pipeline"
	"github.com/dwang48/steam-scraper/internal/steam"
)

// runPipeline assembles the store, client, and notifier, runs the given
// pipeline operation, and prints the result.
func runPipeline(ctx context.Context, settings *conf.Settings, run func(context.Context, *pipeline.Pipeline) (*pipeline.RunResult, error)) error {
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

	var scraperMetrics *metrics.ScraperMetrics
	if m, err := observability.NewMetrics(); err != nil {
		slog.Warn("Metrics disabled", "error", err)
	} else {
		scraperMetrics = m.Scraper
	}

	client, err := steam.NewClient(steam.ConfigFromSettings(settings), scraperMetrics)
	if err != nil {
		return err
	}
	defer client.Close()

	notifier, err := notify.New(settings.Notify.Enabled, settings.Notify.URLs, settings.Notify.Timeout)
	if err != nil {
		return err
	}

	result, err := run(ctx, pipeline.New(settings, store, client, notifier, scraperMetrics))
	if err != nil {
		return err
	}
	printSummary(result)
	return nil
}
