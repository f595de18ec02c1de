package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/dwang48/steam-scraper/internal/conf"
)

// TestMySQLStoreIntegration spins up a disposable MySQL server and runs the
// same persistence flow the SQLite tests cover. Requires Docker; skipped in
// short mode.
func TestMySQLStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("steam_scraper"),
		tcmysql.WithUsername("scraper"),
		tcmysql.WithPassword("scraper"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Output.MySQL.Enabled = true
	settings.Output.MySQL.Host = host
	settings.Output.MySQL.Port = port.Port()
	settings.Output.MySQL.Database = "steam_scraper"
	settings.Output.MySQL.Username = "scraper"
	settings.Output.MySQL.Password = "scraper"

	store := New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	require.NoError(t, store.ReplaceKnownAppIDs([]int64{1, 2, 3}))
	ids, err := store.KnownAppIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	batch := &DiscoveryBatch{
		SourceName:      "steam_daily",
		RunStartedAt:    time.Now(),
		IngestedForDate: "2026-08-28",
	}
	require.NoError(t, store.CreateBatch(batch))
	require.NoError(t, store.SaveBatchSnapshots(batch.ID, []SnapshotInput{
		{
			AppID:           42,
			Name:            "Container Game",
			Type:            "game",
			DetectionStage:  "public_unreleased",
			IngestedForDate: "2026-08-28",
		},
	}))

	titles, err := store.KnownTitles()
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "Container Game", titles[0].Name)

	require.NoError(t, store.ReplaceMomentumResults(7, "2026-08-28", []MomentumResult{
		{WindowDays: 7, CalcDate: "2026-08-28", GameID: 1, AppID: 42, Rank: 1, Percentile: 100},
	}))
	rows, err := store.GetMomentumResults(7, "2026-08-28", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
