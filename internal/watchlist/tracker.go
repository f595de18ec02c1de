// Package watchlist tracks unresolved catalog identifiers across runs. An
// identifier enters the watchlist when its listing is not yet publicly
// visible and leaves it only by promotion (becoming a named, resolvable
// record) or explicit operator removal.
package watchlist

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/dwang48/steam-scraper/internal/classify"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/logging"
	"github.com/dwang48/steam-scraper/internal/observability/metrics"
	"github.com/dwang48/steam-scraper/internal/steam"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "watchlist.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "watchlist", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize watchlist file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "watchlist")
		closeLogger = func() error { return nil }
	}
}

// Status is one watchlist state. StatusAccessible is terminal and triggers
// promotion out of the tracker in the same run.
type Status string

const (
	StatusEarlyStage  Status = "early_stage"
	StatusMinimalData Status = "minimal_data"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
	StatusAccessible  Status = "accessible"
)

// StatusFromResult maps a classified fetch outcome onto a watchlist status.
// Any named record counts as accessible, whether unreleased or released.
func StatusFromResult(result classify.Result) Status {
	switch result.FetchStatus {
	case steam.StatusRateLimited:
		return StatusRateLimited
	case steam.StatusBlocked, steam.StatusError:
		return StatusError
	case steam.StatusFailed:
		return StatusEarlyStage
	}
	switch result.Stage {
	case classify.StageMinimalData:
		return StatusMinimalData
	case classify.StagePublicUnreleased, classify.StageReleased:
		return StatusAccessible
	default:
		return StatusEarlyStage
	}
}

// DefaultCheckpointEvery is the default number of observations between
// checkpoint saves.
const DefaultCheckpointEvery = 100

// Observation is one per-identifier outcome handed to the tracker by the
// run's aggregation step.
type Observation struct {
	AppID  int64
	Status Status
	Name   string
	Type   string
	Date   string // datastore.DateLayout
}

// Tracker holds the watchlist state for one run. Workers never touch it
// directly; the pipeline's single aggregation goroutine feeds observations
// in. The mutex guards against accidental concurrent use, it is not a
// license for multi-writer access.
type Tracker struct {
	mu              sync.Mutex
	store           datastore.Interface
	metrics         *metrics.ScraperMetrics
	entries         map[int64]*datastore.WatchlistEntry
	dirty           map[int64]struct{}
	checkpointEvery int
	sinceCheckpoint int
	promotions      int
}

// NewTracker creates a tracker backed by the given store and loads the
// persisted watchlist into memory.
func NewTracker(store datastore.Interface, checkpointEvery int, m *metrics.ScraperMetrics) (*Tracker, error) {
	if checkpointEvery <= 0 {
		checkpointEvery = DefaultCheckpointEvery
	}

	persisted, err := store.GetWatchlist()
	if err != nil {
		return nil, errors.Newf("loading watchlist: %w", err).
			Category(errors.CategoryWatchlist).
			Build()
	}

	entries := make(map[int64]*datastore.WatchlistEntry, len(persisted))
	for i := range persisted {
		entry := persisted[i]
		entries[entry.AppID] = &entry
	}

	logger.Info("Watchlist loaded", "entries", len(entries), "checkpoint_every", checkpointEvery)
	m.SetWatchlistSize(len(entries))

	return &Tracker{
		store:           store,
		metrics:         m,
		entries:         entries,
		dirty:           make(map[int64]struct{}),
		checkpointEvery: checkpointEvery,
	}, nil
}

// Observe applies one identifier's outcome to the tracker. Returns whether
// the identifier was promoted out of the watchlist. Checkpoint saves happen
// transparently every checkpointEvery observations, so an interrupted run
// loses at most the last partial checkpoint.
func (t *Tracker) Observe(obs Observation) (promoted bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, tracked := t.entries[obs.AppID]

	if obs.Status == StatusAccessible {
		if !tracked {
			// Resolved on first contact; never entered the watchlist.
			return false, nil
		}
		if err := t.store.DeleteWatchlistEntry(obs.AppID); err != nil && !errors.IsNotFound(err) {
			return false, errors.Newf("promoting %d: %w", obs.AppID, err).
				Category(errors.CategoryWatchlist).
				Context("app_id", obs.AppID).
				Build()
		}
		delete(t.entries, obs.AppID)
		delete(t.dirty, obs.AppID)
		t.promotions++
		t.metrics.SetWatchlistSize(len(t.entries))
		logger.Info("Promoted to catalog", "app_id", obs.AppID, "name", obs.Name)
		return true, nil
	}

	if !tracked {
		entry = &datastore.WatchlistEntry{
			AppID:         obs.AppID,
			FirstDetected: obs.Date,
			CurrentStatus: string(obs.Status),
		}
		if err := entry.SetHistory([]datastore.StatusEvent{{Date: obs.Date, Status: string(obs.Status)}}); err != nil {
			return false, errors.Newf("encoding status history for %d: %w", obs.AppID, err).
				Category(errors.CategoryWatchlist).
				Build()
		}
		t.entries[obs.AppID] = entry
		t.metrics.SetWatchlistSize(len(t.entries))
	} else if entry.CurrentStatus != string(obs.Status) {
		history := append(entry.History(), datastore.StatusEvent{Date: obs.Date, Status: string(obs.Status)})
		if err := entry.SetHistory(history); err != nil {
			return false, errors.Newf("encoding status history for %d: %w", obs.AppID, err).
				Category(errors.CategoryWatchlist).
				Build()
		}
		entry.CurrentStatus = string(obs.Status)
	}

	// check_count and last_checked move on every check, changed or not.
	entry.CheckCount++
	entry.LastChecked = obs.Date
	if obs.Name != "" {
		entry.LatestName = obs.Name
	}
	if obs.Type != "" {
		entry.LatestType = obs.Type
	}
	t.dirty[obs.AppID] = struct{}{}

	t.sinceCheckpoint++
	if t.sinceCheckpoint >= t.checkpointEvery {
		if err := t.flushLocked(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Flush persists all unsaved entries. Called at the end of a run and by the
// periodic checkpoints.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *Tracker) flushLocked() error {
	if len(t.dirty) == 0 {
		t.sinceCheckpoint = 0
		return nil
	}
	batch := make([]*datastore.WatchlistEntry, 0, len(t.dirty))
	for appID := range t.dirty {
		batch = append(batch, t.entries[appID])
	}
	if err := t.store.UpsertWatchlistEntries(batch); err != nil {
		return errors.Newf("checkpointing watchlist: %w", err).
			Category(errors.CategoryWatchlist).
			Context("entries", len(batch)).
			Build()
	}
	logger.Debug("Watchlist checkpoint", "entries", len(batch))
	t.dirty = make(map[int64]struct{})
	t.sinceCheckpoint = 0
	return nil
}

// Size returns the current number of tracked identifiers.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Promotions returns how many identifiers this run promoted out of the
// watchlist.
func (t *Tracker) Promotions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.promotions
}

// AppIDs returns the tracked identifiers, for recheck scheduling.
func (t *Tracker) AppIDs() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}

// Entry returns a copy of one tracked entry, if present.
func (t *Tracker) Entry(appID int64) (datastore.WatchlistEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[appID]
	if !ok {
		return datastore.WatchlistEntry{}, false
	}
	return *entry, true
}
