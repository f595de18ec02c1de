// interfaces.go defines the persistence interface and the shared GORM
// implementation behind the SQLite and MySQL stores.
package datastore

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/errors"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error

	// Catalog identifier set, replaced wholesale each run.
	KnownAppIDs() ([]int64, error)
	ReplaceKnownAppIDs(ids []int64) error

	// Discovery batches and per-title snapshots.
	CreateBatch(batch *DiscoveryBatch) error
	CompleteBatch(batchID uint, completedAt time.Time) error
	SaveBatchSnapshots(batchID uint, snapshots []SnapshotInput) error
	KnownTitles() ([]TitleRecord, error)
	SnapshotsBetween(startDate, endDate string) ([]GameSnapshot, error)

	// Watchlist state.
	GetWatchlist() ([]WatchlistEntry, error)
	GetWatchlistEntry(appID int64) (*WatchlistEntry, error)
	UpsertWatchlistEntries(entries []*WatchlistEntry) error
	DeleteWatchlistEntry(appID int64) error

	// Momentum rankings.
	ReplaceMomentumResults(windowDays int, calcDate string, results []MomentumResult) error
	GetMomentumResults(windowDays int, calcDate string, limit int) ([]MomentumResult, error)
}

// SnapshotInput is one classified observation handed to SaveBatchSnapshots.
// The store derives both the canonical Game upsert and the GameSnapshot row
// from it.
type SnapshotInput struct {
	AppID              int64
	Name               string
	Type               string
	Developers         []string
	Publishers         []string
	Categories         []string
	Genres             []string
	ReleaseDateRaw     string
	DetectionStage     string
	APIResponseType    string
	PotentialDuplicate bool
	Followers          *int64
	WishlistsEst       *int64
	DiscoveryDate      string
	IngestedForDate    string
}

// TitleRecord is the slim projection the duplicate detector reads.
type TitleRecord struct {
	AppID      int64
	Name       string
	Developers []string
}

// DataStore implements the shared parts of Interface over a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a store based on the enabled output in settings. Returns nil
// if no database output is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.Newf("getting underlying db handle: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return sqlDB.Close()
}

// KnownAppIDs returns every identifier seen by any previous run.
func (ds *DataStore) KnownAppIDs() ([]int64, error) {
	var ids []int64
	if err := ds.DB.Model(&KnownAppID{}).Pluck("app_id", &ids).Error; err != nil {
		return nil, errors.Newf("reading known app ids: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return ids, nil
}

// ReplaceKnownAppIDs swaps the known identifier set for the given list in
// one transaction, so a failed run never leaves a half-written set.
func (ds *DataStore) ReplaceKnownAppIDs(ids []int64) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&KnownAppID{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		rows := make([]KnownAppID, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, KnownAppID{AppID: id})
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return errors.Newf("replacing known app ids: %w", err).
			Category(errors.CategoryDatabase).
			Context("count", len(ids)).
			Build()
	}
	return nil
}

// CreateBatch records the start of a run.
func (ds *DataStore) CreateBatch(batch *DiscoveryBatch) error {
	if err := ds.DB.Create(batch).Error; err != nil {
		return errors.Newf("creating discovery batch: %w", err).
			Category(errors.CategoryDatabase).
			Context("source", batch.SourceName).
			Build()
	}
	return nil
}

// CompleteBatch stamps a run's completion time.
func (ds *DataStore) CompleteBatch(batchID uint, completedAt time.Time) error {
	err := ds.DB.Model(&DiscoveryBatch{}).
		Where("id = ?", batchID).
		Update("run_completed_at", completedAt).Error
	if err != nil {
		return errors.Newf("completing discovery batch: %w", err).
			Category(errors.CategoryDatabase).
			Context("batch_id", batchID).
			Build()
	}
	return nil
}

// SaveBatchSnapshots upserts the canonical Game row and inserts one
// GameSnapshot per input, atomically for the whole batch.
func (ds *DataStore) SaveBatchSnapshots(batchID uint, snapshots []SnapshotInput) error {
	if len(snapshots) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for i := range snapshots {
			input := &snapshots[i]

			var game Game
			if err := tx.Where(Game{SteamAppID: input.AppID}).
				FirstOrCreate(&game).Error; err != nil {
				return err
			}

			updates := map[string]any{
				"latest_detection_stage": input.DetectionStage,
			}
			if input.Name != "" {
				updates["name"] = input.Name
			}
			if input.Type != "" {
				updates["type"] = input.Type
			}
			if len(input.Developers) > 0 {
				updates["developers"] = joinList(input.Developers)
			}
			if len(input.Publishers) > 0 {
				updates["publishers"] = joinList(input.Publishers)
			}
			if len(input.Categories) > 0 {
				updates["categories"] = joinList(input.Categories)
			}
			if len(input.Genres) > 0 {
				updates["genres"] = joinList(input.Genres)
			}
			if input.ReleaseDateRaw != "" {
				updates["latest_release_date"] = input.ReleaseDateRaw
			}
			if err := tx.Model(&game).Updates(updates).Error; err != nil {
				return err
			}

			snapshot := GameSnapshot{
				GameID:             game.ID,
				BatchID:            batchID,
				DetectionStage:     input.DetectionStage,
				APIResponseType:    input.APIResponseType,
				PotentialDuplicate: input.PotentialDuplicate,
				Name:               input.Name,
				ReleaseDateRaw:     input.ReleaseDateRaw,
				Genres:             joinList(input.Genres),
				Followers:          input.Followers,
				WishlistsEst:       input.WishlistsEst,
				DiscoveryDate:      input.DiscoveryDate,
				IngestedForDate:    input.IngestedForDate,
			}
			if err := tx.Create(&snapshot).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Newf("saving batch snapshots: %w", err).
			Category(errors.CategoryDatabase).
			Context("batch_id", batchID).
			Context("count", len(snapshots)).
			Build()
	}
	return nil
}

// KnownTitles returns every named game for duplicate comparison.
func (ds *DataStore) KnownTitles() ([]TitleRecord, error) {
	var games []Game
	if err := ds.DB.Where("name <> ''").
		Select("steam_app_id", "name", "developers").
		Find(&games).Error; err != nil {
		return nil, errors.Newf("reading known titles: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	records := make([]TitleRecord, 0, len(games))
	for i := range games {
		records = append(records, TitleRecord{
			AppID:      games[i].SteamAppID,
			Name:       games[i].Name,
			Developers: splitList(games[i].Developers),
		})
	}
	return records, nil
}

// SnapshotsBetween returns snapshots with ingested_for_date inside the
// inclusive range, ordered by game then date, with the Game preloaded.
func (ds *DataStore) SnapshotsBetween(startDate, endDate string) ([]GameSnapshot, error) {
	var snapshots []GameSnapshot
	err := ds.DB.Preload("Game").
		Where("ingested_for_date >= ? AND ingested_for_date <= ?", startDate, endDate).
		Order("game_id, ingested_for_date").
		Find(&snapshots).Error
	if err != nil {
		return nil, errors.Newf("reading snapshots between %s and %s: %w", startDate, endDate, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return snapshots, nil
}

// GetWatchlist returns every tracked entry.
func (ds *DataStore) GetWatchlist() ([]WatchlistEntry, error) {
	var entries []WatchlistEntry
	if err := ds.DB.Order("app_id").Find(&entries).Error; err != nil {
		return nil, errors.Newf("reading watchlist: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return entries, nil
}

// GetWatchlistEntry returns one tracked entry, or a not-found error.
func (ds *DataStore) GetWatchlistEntry(appID int64) (*WatchlistEntry, error) {
	var entry WatchlistEntry
	err := ds.DB.Where("app_id = ?", appID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("watchlist entry %d not found", appID).
				Category(errors.CategoryNotFound).
				Context("app_id", appID).
				Build()
		}
		return nil, errors.Newf("reading watchlist entry %d: %w", appID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return &entry, nil
}

// UpsertWatchlistEntries writes the given entries in one transaction, keyed
// by identifier. Used by the tracker's checkpoint saves.
func (ds *DataStore) UpsertWatchlistEntries(entries []*WatchlistEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			var existing WatchlistEntry
			err := tx.Where("app_id = ?", entry.AppID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(entry).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				entry.ID = existing.ID
				entry.CreatedAt = existing.CreatedAt
				if err := tx.Save(entry).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Newf("upserting watchlist entries: %w", err).
			Category(errors.CategoryDatabase).
			Context("count", len(entries)).
			Build()
	}
	return nil
}

// DeleteWatchlistEntry removes one tracked identifier (promotion or
// operator removal).
func (ds *DataStore) DeleteWatchlistEntry(appID int64) error {
	result := ds.DB.Where("app_id = ?", appID).Delete(&WatchlistEntry{})
	if result.Error != nil {
		return errors.Newf("deleting watchlist entry %d: %w", appID, result.Error).
			Category(errors.CategoryDatabase).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("watchlist entry %d not found", appID).
			Category(errors.CategoryNotFound).
			Context("app_id", appID).
			Build()
	}
	return nil
}

// ReplaceMomentumResults deletes any prior rows for the (window, date) key
// and inserts the fresh set in one transaction, making recomputation
// idempotent.
func (ds *DataStore) ReplaceMomentumResults(windowDays int, calcDate string, results []MomentumResult) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("window_days = ? AND calc_date = ?", windowDays, calcDate).
			Delete(&MomentumResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.CreateInBatches(results, 200).Error
	})
	if err != nil {
		return errors.Newf("replacing momentum results for window=%d date=%s: %w", windowDays, calcDate, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetMomentumResults returns the published rows for a (window, date) key
// ordered by rank. A non-positive limit returns all rows.
func (ds *DataStore) GetMomentumResults(windowDays int, calcDate string, limit int) ([]MomentumResult, error) {
	query := ds.DB.Where("window_days = ? AND calc_date = ?", windowDays, calcDate).
		Order("momentum_rank")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var results []MomentumResult
	if err := query.Find(&results).Error; err != nil {
		return nil, errors.Newf("reading momentum results for window=%d date=%s: %w", windowDays, calcDate, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return results, nil
}

// joinList flattens a string list into the stored comma-joined form.
func joinList(values []string) string {
	return strings.Join(values, ", ")
}

// splitList reverses joinList.
func splitList(stored string) []string {
	if stored == "" {
		return nil
	}
	parts := strings.Split(stored, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
