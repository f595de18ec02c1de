// Package momentum ranks unreleased titles by interest growth over a
// lookback window. It reads already-committed snapshots and writes only its
// own result rows; recomputing a (window, date) pair replaces the previous
// rows wholesale.
package momentum

import (
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dwang48/steam-scraper/internal/classify"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "momentum.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "momentum", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize momentum file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "momentum")
		closeLogger = func() error { return nil }
	}
}

const (
	// DefaultMinBaseline filters out titles too small for a meaningful
	// growth signal.
	DefaultMinBaseline = 50
	// DefaultPublishPercentile keeps only the top quartile of the
	// qualifying cohort.
	DefaultPublishPercentile = 75.0

	metricFollowers = "followers"
	metricWishlists = "wishlists_est"
)

// Config controls one engine instance.
type Config struct {
	MinBaseline       int64
	PublishPercentile float64
}

// Summary reports one window computation.
type Summary struct {
	WindowDays int
	CalcDate   string
	Candidates int // qualifying cohort size, before the percentile cut
	Published  int // rows retained at or above the publish percentile
}

// Engine computes momentum rankings over persisted snapshots.
type Engine struct {
	store datastore.Interface
	cfg   Config
}

// NewEngine creates an engine. Zero config fields fall back to defaults.
func NewEngine(store datastore.Interface, cfg Config) *Engine {
	if cfg.MinBaseline <= 0 {
		cfg.MinBaseline = DefaultMinBaseline
	}
	if cfg.PublishPercentile <= 0 {
		cfg.PublishPercentile = DefaultPublishPercentile
	}
	return &Engine{store: store, cfg: cfg}
}

// ComputeWindow ranks all qualifying titles for the window ending on
// calcDate and replaces the persisted rows for that (window, date) key.
// The computation is deterministic: equal growth rates tie-break on
// identifier.
func (e *Engine) ComputeWindow(windowDays int, calcDate time.Time) (Summary, error) {
	if windowDays < 1 {
		return Summary{}, errors.Newf("window must be at least one day, got %d", windowDays).
			Category(errors.CategoryValidation).
			Build()
	}

	calcStr := calcDate.Format(datastore.DateLayout)
	startStr := calcDate.AddDate(0, 0, -(windowDays - 1)).Format(datastore.DateLayout)
	summary := Summary{WindowDays: windowDays, CalcDate: calcStr}

	snapshots, err := e.store.SnapshotsBetween(startStr, calcStr)
	if err != nil {
		return summary, errors.Newf("loading window snapshots: %w", err).
			Category(errors.CategoryMomentum).
			Context("window_days", windowDays).
			Context("calc_date", calcStr).
			Build()
	}

	candidates := e.qualify(snapshots, calcDate)
	summary.Candidates = len(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DeltaPerDay != candidates[j].DeltaPerDay {
			return candidates[i].DeltaPerDay > candidates[j].DeltaPerDay
		}
		return candidates[i].AppID < candidates[j].AppID
	})

	total := len(candidates)
	published := make([]datastore.MomentumResult, 0, total)
	for idx := range candidates {
		rank := idx + 1
		percentile := 100.0 * float64(total-rank+1) / float64(total)
		candidates[idx].WindowDays = windowDays
		candidates[idx].CalcDate = calcStr
		candidates[idx].Rank = rank
		candidates[idx].Percentile = math.Round(percentile*100) / 100
		if percentile >= e.cfg.PublishPercentile {
			published = append(published, candidates[idx])
		}
	}
	summary.Published = len(published)

	if err := e.store.ReplaceMomentumResults(windowDays, calcStr, published); err != nil {
		return summary, errors.Newf("publishing momentum results: %w", err).
			Category(errors.CategoryMomentum).
			Context("window_days", windowDays).
			Context("calc_date", calcStr).
			Build()
	}

	logger.Info("Momentum window computed",
		"window_days", windowDays,
		"calc_date", calcStr,
		"candidates", summary.Candidates,
		"published", summary.Published)
	return summary, nil
}

// qualify groups the window's snapshots per game and applies the skip
// rules: missing endpoint metrics, baseline below the minimum, no longer
// unreleased, or flat/declining growth.
func (e *Engine) qualify(snapshots []datastore.GameSnapshot, calcDate time.Time) []datastore.MomentumResult {
	grouped := make(map[uint][]*datastore.GameSnapshot)
	order := make([]uint, 0)
	for i := range snapshots {
		snapshot := &snapshots[i]
		if _, seen := grouped[snapshot.GameID]; !seen {
			order = append(order, snapshot.GameID)
		}
		grouped[snapshot.GameID] = append(grouped[snapshot.GameID], snapshot)
	}

	var out []datastore.MomentumResult
	for _, gameID := range order {
		series := grouped[gameID]
		first := series[0]
		last := series[len(series)-1]

		baseline, baselineMetric := primaryMetric(first)
		latest, _ := primaryMetric(last)
		if baseline == nil || latest == nil {
			continue
		}
		if *baseline < e.cfg.MinBaseline {
			continue
		}
		if !snapshotUnreleased(last, calcDate) {
			continue
		}

		days := daysBetween(first.IngestedForDate, last.IngestedForDate)
		delta := *latest - *baseline
		if delta <= 0 {
			continue
		}

		out = append(out, datastore.MomentumResult{
			GameID:      gameID,
			AppID:       last.Game.SteamAppID,
			Name:        last.Game.Name,
			MetricName:  baselineMetric,
			Baseline:    *baseline,
			Latest:      *latest,
			Delta:       delta,
			Days:        days,
			DeltaPerDay: float64(delta) / float64(days),
			DeltaRate:   float64(delta) / float64(*baseline),
			Metadata:    endpointMetadata(first, last),
		})
	}
	return out
}

// sampleMetadata is the JSON shape stored in MomentumResult.Metadata. It
// preserves the raw endpoint sample so published rows can be audited without
// re-reading the snapshot table.
type sampleMetadata struct {
	BaselineDate         string `json:"baseline_date"`
	LatestDate           string `json:"latest_date"`
	BaselineFollowers    *int64 `json:"baseline_followers"`
	LatestFollowers      *int64 `json:"latest_followers"`
	BaselineWishlistsEst *int64 `json:"baseline_wishlists_est"`
	LatestWishlistsEst   *int64 `json:"latest_wishlists_est"`
}

func endpointMetadata(first, last *datastore.GameSnapshot) string {
	encoded, err := json.Marshal(sampleMetadata{
		BaselineDate:         first.IngestedForDate,
		LatestDate:           last.IngestedForDate,
		BaselineFollowers:    first.Followers,
		LatestFollowers:      last.Followers,
		BaselineWishlistsEst: first.WishlistsEst,
		LatestWishlistsEst:   last.WishlistsEst,
	})
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// primaryMetric picks the growth metric for one snapshot: followers when
// recorded, estimated wishlists otherwise.
func primaryMetric(snapshot *datastore.GameSnapshot) (*int64, string) {
	if snapshot.Followers != nil {
		return snapshot.Followers, metricFollowers
	}
	if snapshot.WishlistsEst != nil {
		return snapshot.WishlistsEst, metricWishlists
	}
	return nil, ""
}

// snapshotUnreleased re-applies the discovery-time unreleased heuristic to
// the window's latest snapshot. Early and minimal stages count as unreleased
// outright; for stages that mention a release state the date text decides.
func snapshotUnreleased(snapshot *datastore.GameSnapshot, calcDate time.Time) bool {
	stage := strings.ToLower(snapshot.DetectionStage)
	if stage != "" && !strings.Contains(stage, "released") {
		return true
	}
	return classify.UnreleasedByDate(snapshot.ReleaseDateRaw, calcDate)
}

// daysBetween returns the day span between two stored dates, at least 1 so
// same-day windows do not divide by zero.
func daysBetween(startDate, endDate string) int {
	start, err1 := time.Parse(datastore.DateLayout, startDate)
	end, err2 := time.Parse(datastore.DateLayout, endDate)
	if err1 != nil || err2 != nil {
		return 1
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}
