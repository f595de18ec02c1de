// model.go defines the persisted data model for discovery and momentum.
package datastore

import (
	"encoding/json"
	"time"
)

// DateLayout is the canonical business-date format used across batches,
// snapshots, and momentum results.
const DateLayout = "2006-01-02"

// KnownAppID is one previously seen catalog identifier. The whole table is
// replaced with the latest catalog list at the end of every discovery run.
type KnownAppID struct {
	AppID int64 `gorm:"primaryKey;autoIncrement:false"`
}

// DiscoveryBatch describes one pipeline run: what ran, when, for which
// business date, and with what parameters.
type DiscoveryBatch struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"uniqueIndex;size:36"` // UUID correlating logs and notifications
	SourceName      string `gorm:"index;size:100"`
	RunStartedAt    time.Time
	RunCompletedAt  *time.Time
	IngestedForDate string `gorm:"index;size:10"` // DateLayout
	Parameters      string `gorm:"type:text"`     // JSON-encoded run parameters
}

// Game is the canonical record for one catalog identifier. The latest_*
// columns mirror the most recent snapshot for cheap listing queries.
type Game struct {
	ID                   uint   `gorm:"primaryKey"`
	SteamAppID           int64  `gorm:"uniqueIndex"`
	Name                 string `gorm:"index;size:255"`
	Type                 string `gorm:"size:50"`
	Developers           string `gorm:"size:500"` // comma-joined
	Publishers           string `gorm:"size:500"`
	Categories           string `gorm:"size:500"`
	Genres               string `gorm:"size:500"`
	LatestReleaseDate    string `gorm:"size:120"`
	LatestDetectionStage string `gorm:"size:50"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GameSnapshot is one observation of one game in one batch.
type GameSnapshot struct {
	ID                 uint   `gorm:"primaryKey"`
	GameID             uint   `gorm:"index:idx_snapshot_game_date"`
	BatchID            uint   `gorm:"index"`
	DetectionStage     string `gorm:"size:50;index"`
	APIResponseType    string `gorm:"size:50"`
	PotentialDuplicate bool
	Name               string `gorm:"size:255"`
	ReleaseDateRaw     string `gorm:"size:120"`
	Genres             string `gorm:"size:500"`
	Followers          *int64
	WishlistsEst       *int64
	DiscoveryDate      string `gorm:"size:10"`
	IngestedForDate    string `gorm:"size:10;index:idx_snapshot_game_date"`
	CreatedAt          time.Time

	Game  Game           `gorm:"foreignKey:GameID"`
	Batch DiscoveryBatch `gorm:"foreignKey:BatchID"`
}

// StatusEvent is one watchlist status transition.
type StatusEvent struct {
	Date   string `json:"date"` // DateLayout
	Status string `json:"status"`
}

// WatchlistEntry tracks one unresolved identifier across runs. StatusHistory
// holds the JSON-encoded transition list; use History and SetHistory.
type WatchlistEntry struct {
	ID            uint   `gorm:"primaryKey"`
	AppID         int64  `gorm:"uniqueIndex"`
	FirstDetected string `gorm:"size:10"`
	LastChecked   string `gorm:"size:10"`
	CheckCount    int
	CurrentStatus string `gorm:"size:50;index"`
	LatestName    string `gorm:"size:255"`
	LatestType    string `gorm:"size:50"`
	StatusHistory string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// History decodes the status transition list. A corrupt or empty column
// decodes to nil rather than failing the read path.
func (e *WatchlistEntry) History() []StatusEvent {
	if e.StatusHistory == "" {
		return nil
	}
	var events []StatusEvent
	if err := json.Unmarshal([]byte(e.StatusHistory), &events); err != nil {
		return nil
	}
	return events
}

// SetHistory encodes the status transition list into the stored column.
func (e *WatchlistEntry) SetHistory(events []StatusEvent) error {
	encoded, err := json.Marshal(events)
	if err != nil {
		return err
	}
	e.StatusHistory = string(encoded)
	return nil
}

// MomentumResult is one ranked row of one momentum window computation. Rows
// for a (window_days, calc_date) pair are replaced wholesale on
// recomputation.
type MomentumResult struct {
	ID          uint   `gorm:"primaryKey"`
	WindowDays  int    `gorm:"uniqueIndex:idx_momentum_key,priority:1"`
	CalcDate    string `gorm:"uniqueIndex:idx_momentum_key,priority:2;size:10"`
	GameID      uint   `gorm:"uniqueIndex:idx_momentum_key,priority:3"`
	AppID       int64  `gorm:"index"`
	Name        string `gorm:"size:255"`
	MetricName  string `gorm:"size:30"` // followers or wishlists_est
	Baseline    int64
	Latest      int64
	Delta       int64
	Days        int
	DeltaPerDay float64
	DeltaRate   float64
	// RANK is reserved in MySQL 8, so the column carries an explicit name.
	Rank       int `gorm:"column:momentum_rank"`
	Percentile float64
	// Metadata holds the JSON-encoded window endpoint sample: the snapshot
	// dates and raw follower/wishlist values the ranking was computed from.
	Metadata  string `gorm:"type:text"`
	CreatedAt time.Time

	Game Game `gorm:"foreignKey:GameID"`
}
