package watchlist

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/errors"
)

func newTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "watchlist_cmd_test.db")
	return settings
}

func seedEntries(t *testing.T, settings *conf.Settings, entries []*datastore.WatchlistEntry) {
	t.Helper()
	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	require.NoError(t, store.UpsertWatchlistEntries(entries))
	require.NoError(t, store.Close())
}

func execute(t *testing.T, settings *conf.Settings, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := Command(settings)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)

	entry := &datastore.WatchlistEntry{
		AppID:         7,
		FirstDetected: "2026-08-20",
		LastChecked:   "2026-08-27",
		CheckCount:    4,
		CurrentStatus: "minimal_data",
		LatestName:    "Quiet Launch",
	}
	require.NoError(t, entry.SetHistory([]datastore.StatusEvent{
		{Date: "2026-08-20", Status: "early_stage"},
		{Date: "2026-08-25", Status: "minimal_data"},
	}))
	seedEntries(t, settings, []*datastore.WatchlistEntry{entry})

	out := execute(t, settings, "history", "7")
	assert.Contains(t, out, "App 7  Quiet Launch")
	assert.Contains(t, out, "Status minimal_data, 4 checks since 2026-08-20")
	assert.Contains(t, out, "2026-08-20  early_stage")
	assert.Contains(t, out, "2026-08-25  minimal_data")
}

func TestHistoryCommandUnknownEntry(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	seedEntries(t, settings, nil)

	cmd := Command(settings)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"history", "404"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStatsCommand(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	seedEntries(t, settings, []*datastore.WatchlistEntry{
		{AppID: 1, FirstDetected: "2026-08-18", LastChecked: "2026-08-27", CheckCount: 3, CurrentStatus: "early_stage"},
		{AppID: 2, FirstDetected: "2026-08-21", LastChecked: "2026-08-27", CheckCount: 1, CurrentStatus: "early_stage"},
		{AppID: 3, FirstDetected: "2026-08-22", LastChecked: "2026-08-27", CheckCount: 2, CurrentStatus: "rate_limited"},
	})

	out := execute(t, settings, "stats")
	assert.Contains(t, out, "Entries: 3")
	assert.Contains(t, out, "early_stage:   2")
	assert.Contains(t, out, "rate_limited:  1")
	assert.Contains(t, out, "Oldest first detection: 2026-08-18")
	assert.Contains(t, out, "Average checks per entry: 2.0")
}

func TestListCommandFiltersByStatus(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	seedEntries(t, settings, []*datastore.WatchlistEntry{
		{AppID: 10, FirstDetected: "2026-08-20", LastChecked: "2026-08-27", CheckCount: 2, CurrentStatus: "early_stage", LatestName: "Alpha"},
		{AppID: 11, FirstDetected: "2026-08-20", LastChecked: "2026-08-27", CheckCount: 2, CurrentStatus: "error", LatestName: "Beta"},
	})

	out := execute(t, settings, "list", "--status", "error")
	assert.Contains(t, out, "Beta")
	assert.NotContains(t, out, "Alpha")
}

func TestRemoveCommand(t *testing.T) {
	t.Parallel()
	settings := newTestSettings(t)
	seedEntries(t, settings, []*datastore.WatchlistEntry{
		{AppID: 42, FirstDetected: "2026-08-20", LastChecked: "2026-08-27", CheckCount: 1, CurrentStatus: "early_stage"},
	})

	out := execute(t, settings, "remove", "42")
	assert.Contains(t, out, "Removed 42")

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	defer store.Close()
	_, err := store.GetWatchlistEntry(42)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
