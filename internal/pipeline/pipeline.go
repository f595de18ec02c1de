// Package pipeline orchestrates discovery runs: catalog diff, parallel
// detail fetches, classification, duplicate flagging, watchlist tracking,
// and batch persistence. Workers only fetch; every mutation of shared state
// happens in the single aggregation loop.
package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dwang48/steam-scraper/internal/classify"
	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/dedup"
	"github.com/dwang48/steam-scraper/internal/diff"
	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/export"
	"github.com/dwang48/steam-scraper/internal/logging"
	"github.com/dwang48/steam-scraper/internal/momentum"
	"github.com/dwang48/steam-scraper/internal/notify"
	"github.com/dwang48/steam-scraper/internal/observability/metrics"
	"github.com/dwang48/steam-scraper/internal/steam"
	"github.com/dwang48/steam-scraper/internal/watchlist"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "pipeline.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "pipeline", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize pipeline file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "pipeline")
		closeLogger = func() error { return nil }
	}
}

// progressLogEvery controls how often the aggregation loop reports progress.
const progressLogEvery = 100

// Fetcher is the upstream surface the pipeline needs. *steam.Client
// satisfies it.
type Fetcher interface {
	FetchAppList(ctx context.Context) ([]int64, error)
	FetchDetailsBatch(ctx context.Context, appIDs []int64, workers int) <-chan steam.FetchResult
}

// RunResult reports one finished run.
type RunResult struct {
	BatchID     uint
	NothingToDo bool
	Summary     notify.RunSummary
}

// Pipeline wires the discovery components together for one or more runs.
type Pipeline struct {
	settings  *conf.Settings
	store     datastore.Interface
	fetcher   Fetcher
	notifier  *notify.Notifier
	estimator momentum.WishlistEstimator
	metrics   *metrics.ScraperMetrics
}

// New creates a pipeline. The notifier may be nil (no notifications) and
// the estimator defaults to the stock genre estimator.
func New(settings *conf.Settings, store datastore.Interface, fetcher Fetcher, notifier *notify.Notifier, m *metrics.ScraperMetrics) *Pipeline {
	return &Pipeline{
		settings:  settings,
		store:     store,
		fetcher:   fetcher,
		notifier:  notifier,
		estimator: momentum.NewGenreEstimator(),
		metrics:   m,
	}
}

// SetEstimator replaces the wishlist estimator.
func (p *Pipeline) SetEstimator(estimator momentum.WishlistEstimator) {
	if estimator != nil {
		p.estimator = estimator
	}
}

// RunDiscovery executes one full discovery run: fetch the catalog, diff it
// against the known set, fetch details for the new identifiers (plus
// watchlist rechecks when configured), classify, flag duplicates, track the
// watchlist, and persist everything as one batch.
func (p *Pipeline) RunDiscovery(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	today := start.UTC().Format(datastore.DateLayout)

	currentIDs, err := p.fetcher.FetchAppList(ctx)
	if err != nil {
		// Run-level failure: nothing has been written yet.
		return nil, err
	}

	knownIDs, err := p.store.KnownAppIDs()
	if err != nil {
		return nil, err
	}
	firstRun := len(knownIDs) == 0

	newIDs := diff.NewAppIDs(currentIDs, knownIDs)
	if firstRun && p.settings.Discovery.FirstRunCap > 0 {
		capped := diff.Cap(newIDs, p.settings.Discovery.FirstRunCap)
		if len(capped) < len(newIDs) {
			logger.Warn("First run: capping detail fetches",
				"catalog_size", len(newIDs),
				"cap", p.settings.Discovery.FirstRunCap)
		}
		newIDs = capped
	}

	tracker, err := watchlist.NewTracker(p.store, p.settings.Discovery.CheckpointEvery, p.metrics)
	if err != nil {
		return nil, err
	}

	newSet := make(map[int64]struct{}, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = struct{}{}
	}
	targets := append([]int64(nil), newIDs...)
	if p.settings.Discovery.RecheckWatchlist {
		for _, id := range tracker.AppIDs() {
			if _, isNew := newSet[id]; !isNew {
				targets = append(targets, id)
			}
		}
	}

	logger.Info("Discovery run starting",
		"date", today,
		"catalog_size", len(currentIDs),
		"new_identifiers", len(newIDs),
		"recheck_identifiers", len(targets)-len(newIDs),
		"first_run", firstRun)

	if len(targets) == 0 {
		// Nothing to fetch; refresh the known set so delisted ids drop out.
		if err := p.store.ReplaceKnownAppIDs(currentIDs); err != nil {
			return nil, err
		}
		logger.Info("Nothing to do", "date", today)
		p.metrics.RecordRunDuration("discover", time.Since(start))
		return &RunResult{
			NothingToDo: true,
			Summary:     notify.RunSummary{Date: today, Elapsed: time.Since(start)},
		}, nil
	}

	batch := &datastore.DiscoveryBatch{
		RunID:           uuid.New().String(),
		SourceName:      p.sourceName(),
		RunStartedAt:    start,
		IngestedForDate: today,
		Parameters:      p.runParameters(len(newIDs), len(targets)-len(newIDs), firstRun),
	}
	if err := p.store.CreateBatch(batch); err != nil {
		return nil, err
	}

	detector, err := p.newDetector()
	if err != nil {
		return nil, err
	}

	outcome, err := p.aggregate(ctx, targets, newSet, tracker, detector, today)
	// The tracker checkpoints partial progress even on a cancelled run.
	if flushErr := tracker.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return nil, err
	}

	if err := p.store.SaveBatchSnapshots(batch.ID, outcome.snapshots); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceKnownAppIDs(currentIDs); err != nil {
		return nil, err
	}
	if err := p.store.CompleteBatch(batch.ID, time.Now()); err != nil {
		return nil, err
	}

	exportPath := ""
	if p.settings.Discovery.ExportCSV && len(outcome.discoveries) > 0 {
		exportPath, err = export.WriteDiscoveries(p.settings.Main.DataDir, today, outcome.discoveries)
		if err != nil {
			// Export failure does not invalidate the committed batch.
			logger.Warn("CSV export failed", "error", err.Error())
			exportPath = ""
		}
	}

	elapsed := time.Since(start)
	p.metrics.RecordRunDuration("discover", elapsed)

	summary := notify.RunSummary{
		Date:             today,
		NewIdentifiers:   len(newIDs),
		Fetched:          outcome.fetched,
		StageCounts:      outcome.stageCounts,
		ReleasedFiltered: outcome.releasedFiltered,
		DuplicateFlags:   outcome.duplicateFlags,
		Promotions:       tracker.Promotions(),
		WatchlistSize:    tracker.Size(),
		ExportPath:       exportPath,
		Elapsed:          elapsed,
	}
	logger.Info("Discovery run finished",
		"date", today,
		"fetched", summary.Fetched,
		"released_filtered", summary.ReleasedFiltered,
		"duplicate_flags", summary.DuplicateFlags,
		"watchlist_size", summary.WatchlistSize,
		"promotions", summary.Promotions,
		"elapsed", elapsed.Round(time.Second).String())

	if p.notifier != nil {
		if err := p.notifier.SendRunSummary(&summary); err != nil {
			logger.Warn("Run summary notification failed", "error", err.Error())
		}
	}

	return &RunResult{BatchID: batch.ID, Summary: summary}, nil
}

// RunRecheck re-evaluates every watchlist entry without touching the
// catalog diff. Used to poll unresolved identifiers between full runs.
func (p *Pipeline) RunRecheck(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	today := start.UTC().Format(datastore.DateLayout)

	tracker, err := watchlist.NewTracker(p.store, p.settings.Discovery.CheckpointEvery, p.metrics)
	if err != nil {
		return nil, err
	}
	targets := tracker.AppIDs()
	if len(targets) == 0 {
		logger.Info("Watchlist empty, nothing to recheck")
		return &RunResult{
			NothingToDo: true,
			Summary:     notify.RunSummary{Date: today, Elapsed: time.Since(start)},
		}, nil
	}

	batch := &datastore.DiscoveryBatch{
		RunID:           uuid.New().String(),
		SourceName:      p.sourceName() + "_recheck",
		RunStartedAt:    start,
		IngestedForDate: today,
		Parameters:      p.runParameters(0, len(targets), false),
	}
	if err := p.store.CreateBatch(batch); err != nil {
		return nil, err
	}

	detector, err := p.newDetector()
	if err != nil {
		return nil, err
	}

	outcome, err := p.aggregate(ctx, targets, nil, tracker, detector, today)
	if flushErr := tracker.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return nil, err
	}

	if err := p.store.SaveBatchSnapshots(batch.ID, outcome.snapshots); err != nil {
		return nil, err
	}
	if err := p.store.CompleteBatch(batch.ID, time.Now()); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	p.metrics.RecordRunDuration("recheck", elapsed)

	summary := notify.RunSummary{
		Date:          today,
		Fetched:       outcome.fetched,
		StageCounts:   outcome.stageCounts,
		Promotions:    tracker.Promotions(),
		WatchlistSize: tracker.Size(),
		Elapsed:       elapsed,
	}
	logger.Info("Recheck run finished",
		"date", today,
		"fetched", summary.Fetched,
		"promotions", summary.Promotions,
		"watchlist_size", summary.WatchlistSize)

	return &RunResult{BatchID: batch.ID, Summary: summary}, nil
}

// aggregateOutcome accumulates the single-writer state for one run.
type aggregateOutcome struct {
	fetched          int
	releasedFiltered int
	duplicateFlags   int
	stageCounts      map[string]int
	snapshots        []datastore.SnapshotInput
	discoveries      []*steam.AppDetails
}

// aggregate drains the worker pool's completion-order results and applies
// them to the run state. This is the only goroutine that mutates the
// tracker, the detector, or the accumulated rows.
func (p *Pipeline) aggregate(
	ctx context.Context,
	targets []int64,
	newSet map[int64]struct{},
	tracker *watchlist.Tracker,
	detector *dedup.Detector,
	today string,
) (*aggregateOutcome, error) {
	outcome := &aggregateOutcome{stageCounts: make(map[string]int)}
	asOf := time.Now().UTC()

	results := p.fetcher.FetchDetailsBatch(ctx, targets, p.settings.Steam.MaxWorkers)
	for result := range results {
		outcome.fetched++

		classified := classify.Classify(result, asOf)
		p.metrics.RecordClassification(string(classified.Stage))

		var name, appType string
		if classified.Details != nil {
			name = classified.Details.Name
			appType = classified.Details.Type
		}
		if _, err := tracker.Observe(watchlist.Observation{
			AppID:  result.AppID,
			Status: watchlist.StatusFromResult(classified),
			Name:   name,
			Type:   appType,
			Date:   today,
		}); err != nil {
			return outcome, err
		}

		if !classified.Tracked() {
			outcome.releasedFiltered++
			continue
		}

		input := datastore.SnapshotInput{
			AppID:           result.AppID,
			DetectionStage:  string(classified.Stage),
			APIResponseType: appType,
			DiscoveryDate:   today,
			IngestedForDate: today,
		}
		if details := classified.Details; details != nil {
			input.Name = details.Name
			input.Type = details.Type
			input.Developers = details.Developers
			input.Publishers = details.Publishers
			input.Categories = details.Categories
			input.Genres = details.Genres
			input.ReleaseDateRaw = details.ReleaseDateRaw
			input.Followers = details.Followers
			if details.Followers != nil {
				est := p.estimator.Estimate(*details.Followers, details.Genres)
				input.WishlistsEst = &est
			}

			if details.Name != "" {
				candidates := detector.Candidates(result.AppID, details.Name, details.Developers)
				if len(candidates) > 0 {
					input.PotentialDuplicate = true
					outcome.duplicateFlags++
					p.metrics.RecordDuplicateFlag()
					logger.Debug("Duplicate candidate",
						"app_id", result.AppID,
						"name", details.Name,
						"best_match", candidates[0].Name,
						"score", candidates[0].Score)
				}
				detector.Add(dedup.KnownTitle{
					AppID:      result.AppID,
					Name:       details.Name,
					Developers: details.Developers,
				})
			}

			if classified.Stage == classify.StagePublicUnreleased {
				if _, isNew := newSet[result.AppID]; isNew {
					outcome.discoveries = append(outcome.discoveries, details)
				}
			}
		}
		outcome.stageCounts[string(classified.Stage)]++
		outcome.snapshots = append(outcome.snapshots, input)

		if outcome.fetched%progressLogEvery == 0 {
			logger.Info("Fetch progress", "fetched", outcome.fetched, "total", len(targets))
		}
	}

	if err := ctx.Err(); err != nil {
		return outcome, errors.Newf("run interrupted: %w", err).
			Category(errors.CategoryCancellation).
			Context("fetched", outcome.fetched).
			Context("total", len(targets)).
			Build()
	}
	return outcome, nil
}

// newDetector builds the duplicate detector over the already-known titles.
func (p *Pipeline) newDetector() (*dedup.Detector, error) {
	titles, err := p.store.KnownTitles()
	if err != nil {
		return nil, err
	}
	known := make([]dedup.KnownTitle, 0, len(titles))
	for _, title := range titles {
		known = append(known, dedup.KnownTitle{
			AppID:      title.AppID,
			Name:       title.Name,
			Developers: title.Developers,
		})
	}
	return dedup.NewDetector(known, p.settings.Discovery.DedupThreshold), nil
}

func (p *Pipeline) sourceName() string {
	if p.settings.Main.Name != "" {
		return p.settings.Main.Name
	}
	return "steam_daily"
}

// runParameters serializes the run's knobs into the batch record.
func (p *Pipeline) runParameters(newCount, recheckCount int, firstRun bool) string {
	params := map[string]any{
		"workers":         p.settings.Steam.MaxWorkers,
		"new_count":       newCount,
		"recheck_count":   recheckCount,
		"first_run":       firstRun,
		"dedup_threshold": p.settings.Discovery.DedupThreshold,
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
