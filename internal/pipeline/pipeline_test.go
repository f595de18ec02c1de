package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/steam"
)

// stubFetcher serves canned catalog lists and detail results.
type stubFetcher struct {
	appList    []int64
	appListErr error
	results    map[int64]steam.FetchResult
}

func (s *stubFetcher) FetchAppList(context.Context) ([]int64, error) {
	if s.appListErr != nil {
		return nil, s.appListErr
	}
	return s.appList, nil
}

func (s *stubFetcher) FetchDetailsBatch(ctx context.Context, appIDs []int64, workers int) <-chan steam.FetchResult {
	out := make(chan steam.FetchResult, len(appIDs))
	go func() {
		defer close(out)
		for _, id := range appIDs {
			result, ok := s.results[id]
			if !ok {
				result = steam.FetchResult{AppID: id, Status: steam.StatusFailed}
			}
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func unreleasedDetails(appID int64, name string) steam.FetchResult {
	return steam.FetchResult{
		AppID:  appID,
		Status: steam.StatusSuccess,
		Details: &steam.AppDetails{
			AppID:           appID,
			Type:            "game",
			Name:            name,
			HasReleaseInfo:  true,
			ComingSoon:      true,
			ComingSoonKnown: true,
			ReleaseDateRaw:  "Coming soon",
			Developers:      []string{"Test Studio"},
			Genres:          []string{"Indie"},
		},
	}
}

func releasedDetails(appID int64, name string) steam.FetchResult {
	return steam.FetchResult{
		AppID:  appID,
		Status: steam.StatusSuccess,
		Details: &steam.AppDetails{
			AppID:           appID,
			Type:            "game",
			Name:            name,
			HasReleaseInfo:  true,
			ComingSoonKnown: true,
			ReleaseDateRaw:  "Oct 10, 2007",
		},
	}
}

func newTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Main.Name = "steam_daily"
	settings.Main.DataDir = t.TempDir()
	settings.Steam.MaxWorkers = 4
	settings.Discovery.FirstRunCap = 1000
	settings.Discovery.CheckpointEvery = 10
	settings.Discovery.DedupThreshold = 0.85
	settings.Discovery.ExportCSV = true
	settings.Discovery.RecheckWatchlist = true
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(settings.Main.DataDir, "pipeline_test.db")
	return settings
}

func newTestStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestRunDiscovery(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	fetcher := &stubFetcher{
		appList: []int64{1, 2, 3},
		results: map[int64]steam.FetchResult{
			1: unreleasedDetails(1, "Future Hit"),
			2: {AppID: 2, Status: steam.StatusFailed},
			3: releasedDetails(3, "Old News"),
		},
	}

	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunDiscovery(context.Background())
	require.NoError(t, err)
	require.False(t, result.NothingToDo)
	require.NotZero(t, result.BatchID)

	assert.Equal(t, 3, result.Summary.Fetched)
	assert.Equal(t, 3, result.Summary.NewIdentifiers)
	assert.Equal(t, 1, result.Summary.ReleasedFiltered)
	assert.Equal(t, 1, result.Summary.StageCounts["public_unreleased"])
	assert.Equal(t, 1, result.Summary.StageCounts["early_stage"])

	// The known set now reflects the whole current catalog.
	ids, err := store.KnownAppIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	// Only the unresolved identifier is tracked.
	entries, err := store.GetWatchlist()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].AppID)
	assert.Equal(t, 1, entries[0].CheckCount)

	// Snapshots exist for tracked stages, none for the released title.
	today := time.Now().UTC().Format(datastore.DateLayout)
	snapshots, err := store.SnapshotsBetween(today, today)
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	// The named unreleased discovery was exported.
	assert.NotEmpty(t, result.Summary.ExportPath)
}

func TestRunDiscoveryNothingToDo(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)
	require.NoError(t, store.ReplaceKnownAppIDs([]int64{1, 2}))

	fetcher := &stubFetcher{appList: []int64{1, 2}}
	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunDiscovery(context.Background())
	require.NoError(t, err)
	assert.True(t, result.NothingToDo)
	assert.Zero(t, result.BatchID, "no batch record for an empty run")
}

func TestRunDiscoveryAppListFailureIsFatal(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	fetcher := &stubFetcher{appListErr: fmt.Errorf("catalog unavailable")}
	p := New(settings, store, fetcher, nil, nil)
	_, err := p.RunDiscovery(context.Background())
	require.Error(t, err)

	// Nothing was written.
	ids, idsErr := store.KnownAppIDs()
	require.NoError(t, idsErr)
	assert.Empty(t, ids)
}

func TestRunDiscoveryFirstRunCap(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	settings.Discovery.FirstRunCap = 2
	store := newTestStore(t, settings)

	fetcher := &stubFetcher{
		appList: []int64{1, 2, 3, 4, 5},
		results: map[int64]steam.FetchResult{},
	}
	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunDiscovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Fetched, "first run fetches only up to the cap")

	// The full catalog still becomes the known set, so the next run does
	// not refetch the capped remainder as new.
	ids, err := store.KnownAppIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 5)
}

func TestRunDiscoveryFlagsDuplicates(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	// Seed a known title from an earlier run.
	batch := &datastore.DiscoveryBatch{SourceName: "steam_daily", RunStartedAt: time.Now(), IngestedForDate: "2026-08-27"}
	require.NoError(t, store.CreateBatch(batch))
	require.NoError(t, store.SaveBatchSnapshots(batch.ID, []datastore.SnapshotInput{
		{
			AppID:           100,
			Name:            "Wicked Little Witch",
			Type:            "game",
			Developers:      []string{"Broom Studio"},
			DetectionStage:  "public_unreleased",
			IngestedForDate: "2026-08-27",
		},
	}))
	require.NoError(t, store.ReplaceKnownAppIDs([]int64{100}))

	fetcher := &stubFetcher{
		appList: []int64{100, 200},
		results: map[int64]steam.FetchResult{
			200: unreleasedDetails(200, "Wicked Little Witch Demo"),
		},
	}
	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunDiscovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.DuplicateFlags)

	today := time.Now().UTC().Format(datastore.DateLayout)
	snapshots, err := store.SnapshotsBetween(today, today)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.True(t, snapshots[0].PotentialDuplicate)
}

func TestRunDiscoveryRechecksWatchlist(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	// A previously tracked identifier, not new in this catalog.
	entry := &datastore.WatchlistEntry{
		AppID:         7,
		FirstDetected: "2026-08-20",
		LastChecked:   "2026-08-20",
		CheckCount:    1,
		CurrentStatus: "early_stage",
	}
	require.NoError(t, entry.SetHistory([]datastore.StatusEvent{{Date: "2026-08-20", Status: "early_stage"}}))
	require.NoError(t, store.UpsertWatchlistEntries([]*datastore.WatchlistEntry{entry}))
	require.NoError(t, store.ReplaceKnownAppIDs([]int64{7}))

	fetcher := &stubFetcher{
		appList: []int64{7},
		results: map[int64]steam.FetchResult{
			7: unreleasedDetails(7, "Now Visible"),
		},
	}
	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunDiscovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Fetched, "watchlist identifiers are rechecked even with no new ids")
	assert.Equal(t, 1, result.Summary.Promotions)

	entries, err := store.GetWatchlist()
	require.NoError(t, err)
	assert.Empty(t, entries, "resolved identifier was promoted out")
}

func TestRunRecheck(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	for _, id := range []int64{11, 12} {
		entry := &datastore.WatchlistEntry{
			AppID:         id,
			FirstDetected: "2026-08-20",
			LastChecked:   "2026-08-20",
			CheckCount:    2,
			CurrentStatus: "early_stage",
		}
		require.NoError(t, entry.SetHistory([]datastore.StatusEvent{{Date: "2026-08-20", Status: "early_stage"}}))
		require.NoError(t, store.UpsertWatchlistEntries([]*datastore.WatchlistEntry{entry}))
	}

	fetcher := &stubFetcher{
		results: map[int64]steam.FetchResult{
			11: unreleasedDetails(11, "Resolved Game"),
			12: {AppID: 12, Status: steam.StatusRateLimited},
		},
	}
	p := New(settings, store, fetcher, nil, nil)
	result, err := p.RunRecheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Fetched)
	assert.Equal(t, 1, result.Summary.Promotions)

	entries, err := store.GetWatchlist()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(12), entries[0].AppID)
	assert.Equal(t, 3, entries[0].CheckCount)
	assert.Equal(t, "rate_limited", entries[0].CurrentStatus)
}

func TestRunRecheckEmptyWatchlist(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	store := newTestStore(t, settings)

	p := New(settings, store, &stubFetcher{}, nil, nil)
	result, err := p.RunRecheck(context.Background())
	require.NoError(t, err)
	assert.True(t, result.NothingToDo)
}
