package momentum

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
)

var calcDate = time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Main.DataDir = t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(settings.Main.DataDir, "momentum_test.db")

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

// seedSeries writes one snapshot per (date, followers) pair for the given
// app, each in its own batch.
func seedSeries(t *testing.T, store datastore.Interface, appID int64, name, stage, releaseRaw string, points map[string]*int64) {
	t.Helper()
	for date, followers := range points {
		batch := &datastore.DiscoveryBatch{
			SourceName:      "steam_daily",
			RunStartedAt:    time.Now(),
			IngestedForDate: date,
		}
		require.NoError(t, store.CreateBatch(batch))
		require.NoError(t, store.SaveBatchSnapshots(batch.ID, []datastore.SnapshotInput{
			{
				AppID:           appID,
				Name:            name,
				Type:            "game",
				DetectionStage:  stage,
				ReleaseDateRaw:  releaseRaw,
				Followers:       followers,
				IngestedForDate: date,
			},
		}))
	}
}

func followersAt(n int64) *int64 { return &n }

func TestComputeWindowScenario(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	// baseline=100 on day 0, latest=170 on day 7.
	seedSeries(t, store, 100, "Growing Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-21": followersAt(100),
		"2026-08-28": followersAt(170),
	})

	engine := NewEngine(store, Config{MinBaseline: 50, PublishPercentile: 75})
	summary, err := engine.ComputeWindow(8, calcDate)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Published)

	rows, err := store.GetMomentumResults(8, "2026-08-28", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, int64(100), row.Baseline)
	assert.Equal(t, int64(170), row.Latest)
	assert.Equal(t, int64(70), row.Delta)
	assert.Equal(t, 7, row.Days)
	assert.InDelta(t, 10.0, row.DeltaPerDay, 1e-9)
	assert.InDelta(t, 0.7, row.DeltaRate, 1e-9)
	assert.Equal(t, 1, row.Rank)
	assert.InDelta(t, 100.0, row.Percentile, 1e-9)
	assert.Equal(t, "followers", row.MetricName)

	// The endpoint sample is preserved alongside the derived numbers.
	var meta sampleMetadata
	require.NoError(t, json.Unmarshal([]byte(row.Metadata), &meta))
	assert.Equal(t, "2026-08-21", meta.BaselineDate)
	assert.Equal(t, "2026-08-28", meta.LatestDate)
	require.NotNil(t, meta.BaselineFollowers)
	require.NotNil(t, meta.LatestFollowers)
	assert.Equal(t, int64(100), *meta.BaselineFollowers)
	assert.Equal(t, int64(170), *meta.LatestFollowers)
	assert.Nil(t, meta.BaselineWishlistsEst)
	assert.Nil(t, meta.LatestWishlistsEst)
}

func TestComputeWindowSkipRules(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	// Below minimum baseline.
	seedSeries(t, store, 1, "Tiny Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-22": followersAt(10),
		"2026-08-28": followersAt(90),
	})
	// Flat growth.
	seedSeries(t, store, 2, "Flat Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-22": followersAt(200),
		"2026-08-28": followersAt(200),
	})
	// Declining.
	seedSeries(t, store, 3, "Shrinking Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-22": followersAt(300),
		"2026-08-28": followersAt(250),
	})
	// Missing metric at one endpoint.
	seedSeries(t, store, 4, "Unmeasured Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-22": nil,
		"2026-08-28": followersAt(500),
	})
	// Released by the calculation date.
	seedSeries(t, store, 5, "Launched Game", "released", "Aug 20, 2026", map[string]*int64{
		"2026-08-22": followersAt(400),
		"2026-08-28": followersAt(900),
	})
	// The one qualifier.
	seedSeries(t, store, 6, "Qualifying Game", "public_unreleased", "Coming soon", map[string]*int64{
		"2026-08-22": followersAt(100),
		"2026-08-28": followersAt(160),
	})

	engine := NewEngine(store, Config{MinBaseline: 50, PublishPercentile: 75})
	summary, err := engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)

	rows, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(6), rows[0].AppID)
}

func TestComputeWindowRanksArePermutation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	growth := []int64{10, 40, 20, 50, 30}
	for i, delta := range growth {
		appID := int64(i + 1)
		seedSeries(t, store, appID, "Game", "public_unreleased", "Coming soon", map[string]*int64{
			"2026-08-22": followersAt(100),
			"2026-08-28": followersAt(100 + delta),
		})
	}

	// Publish everything so the whole cohort is observable.
	engine := NewEngine(store, Config{MinBaseline: 50, PublishPercentile: 1})
	summary, err := engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Candidates)
	assert.Equal(t, 5, summary.Published)

	rows, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	seenRanks := make(map[int]bool)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Rank, "rows come back in rank order")
		seenRanks[row.Rank] = true
		if i > 0 {
			assert.GreaterOrEqual(t, rows[i-1].DeltaPerDay, row.DeltaPerDay)
			assert.GreaterOrEqual(t, rows[i-1].Percentile, row.Percentile)
		}
	}
	assert.Len(t, seenRanks, 5, "ranks form a permutation of 1..N")
	assert.Equal(t, int64(4), rows[0].AppID, "largest delta ranks first")
}

func TestComputeWindowDeterministic(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for _, appID := range []int64{1, 2, 3} {
		seedSeries(t, store, appID, "Game", "public_unreleased", "Coming soon", map[string]*int64{
			"2026-08-22": followersAt(100),
			"2026-08-28": followersAt(150), // identical growth forces tie-breaking
		})
	}

	engine := NewEngine(store, Config{MinBaseline: 50, PublishPercentile: 1})
	_, err := engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)
	first, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)

	_, err = engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)
	second, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].AppID, second[i].AppID)
		assert.Equal(t, first[i].Rank, second[i].Rank)
		assert.Equal(t, first[i].Percentile, second[i].Percentile)
	}
}

func TestComputeWindowWishlistFallback(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	wishlists := func(n int64) *int64 { return &n }
	for _, point := range []struct {
		date string
		est  *int64
	}{
		{"2026-08-22", wishlists(1000)},
		{"2026-08-28", wishlists(1400)},
	} {
		batch := &datastore.DiscoveryBatch{SourceName: "steam_daily", RunStartedAt: time.Now(), IngestedForDate: point.date}
		require.NoError(t, store.CreateBatch(batch))
		require.NoError(t, store.SaveBatchSnapshots(batch.ID, []datastore.SnapshotInput{
			{
				AppID:           77,
				Name:            "Wishlist Game",
				DetectionStage:  "public_unreleased",
				ReleaseDateRaw:  "Coming soon",
				WishlistsEst:    point.est,
				IngestedForDate: point.date,
			},
		}))
	}

	engine := NewEngine(store, Config{MinBaseline: 50, PublishPercentile: 75})
	_, err := engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)

	rows, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "wishlists_est", rows[0].MetricName)
	assert.Equal(t, int64(400), rows[0].Delta)

	var meta sampleMetadata
	require.NoError(t, json.Unmarshal([]byte(rows[0].Metadata), &meta))
	assert.Nil(t, meta.BaselineFollowers)
	require.NotNil(t, meta.LatestWishlistsEst)
	assert.Equal(t, int64(1400), *meta.LatestWishlistsEst)
}

func TestComputeWindowEmptyCohortClearsKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceMomentumResults(7, "2026-08-28", []datastore.MomentumResult{
		{WindowDays: 7, CalcDate: "2026-08-28", GameID: 1, AppID: 1, Rank: 1, Percentile: 100},
	}))

	engine := NewEngine(store, Config{})
	summary, err := engine.ComputeWindow(7, calcDate)
	require.NoError(t, err)
	assert.Zero(t, summary.Candidates)

	rows, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)
	assert.Empty(t, rows, "recomputation with no qualifiers clears stale rows")
}

func TestComputeWindowRejectsBadWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	engine := NewEngine(store, Config{})
	_, err := engine.ComputeWindow(0, calcDate)
	require.Error(t, err)
}

func TestGenreEstimator(t *testing.T) {
	t.Parallel()

	est := NewGenreEstimator()
	assert.Equal(t, int64(1000), est.Estimate(100, nil), "default multiplier applies without genres")
	assert.Equal(t, int64(1200), est.Estimate(100, []string{"Strategy"}))
	assert.Equal(t, int64(1200), est.Estimate(100, []string{"Casual", "Strategy"}), "highest multiplier wins")
	assert.Zero(t, est.Estimate(0, []string{"Indie"}))
}
