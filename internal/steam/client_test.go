package steam

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appListPattern = `=~^https://api\.steampowered\.com/ISteamApps/GetAppList`
	detailsPattern = `=~^https://store\.steampowered\.com/api/appdetails`
)

// fastRetryPolicy keeps the production attempt counts but removes the waits
// so tests run instantly.
func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		TransientPause:    time.Millisecond,
		RateLimitAttempts: 3,
		RateLimitWait:     time.Millisecond,
		JitterFraction:    0,
	}
}

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Retry = fastRetryPolicy()
	cfg.Timeout = 5 * time.Second

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	transport := httpmock.NewMockTransport()
	client.http.SetTransport(transport)
	return client, transport
}

func detailsBody(appID int64, name, appType, releaseDate string, comingSoon bool) string {
	return fmt.Sprintf(`{
		"%d": {
			"success": true,
			"data": {
				"type": %q,
				"name": %q,
				"short_description": "A game.",
				"developers": ["Dev Studio"],
				"publishers": ["Pub Corp"],
				"genres": [{"id": "23", "description": "Indie"}],
				"categories": [{"id": "2", "description": "Single-player"}],
				"release_date": {"coming_soon": %t, "date": %q}
			}
		}
	}`, appID, appType, name, comingSoon, releaseDate)
}

func TestFetchAppList(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", appListPattern,
		httpmock.NewStringResponder(http.StatusOK,
			`{"applist":{"apps":[{"appid":10,"name":"Counter-Strike"},{"appid":570,"name":"Dota 2"},{"appid":0,"name":""}]}}`))

	ids, err := client.FetchAppList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 570}, ids, "zero ids should be dropped")
}

func TestFetchAppListServerError(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", appListPattern,
		httpmock.NewStringResponder(http.StatusInternalServerError, "oops"))

	_, err := client.FetchAppList(context.Background())
	require.Error(t, err)
}

func TestFetchAppDetailsSuccess(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewStringResponder(http.StatusOK,
			detailsBody(570, "Dota 2", "game", "Coming soon", true)))

	result := client.FetchAppDetails(context.Background(), 570)
	require.True(t, result.OK())
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "Dota 2", result.Details.Name)
	assert.Equal(t, "game", result.Details.Type)
	assert.True(t, result.Details.ComingSoon)
	assert.True(t, result.Details.ComingSoonKnown)
	assert.True(t, result.Details.HasReleaseInfo)
	assert.Equal(t, "Coming soon", result.Details.ReleaseDateRaw)
	assert.Equal(t, []string{"Dev Studio"}, result.Details.Developers)
	assert.Equal(t, []string{"Indie"}, result.Details.Genres)
}

func TestFetchAppDetailsNoData(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewStringResponder(http.StatusOK, `{"99999": {"success": false}}`))

	result := client.FetchAppDetails(context.Background(), 99999)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Nil(t, result.Details)
	assert.Equal(t, 1, transport.GetTotalCallCount(), "a structured no-data answer must not be retried")
}

func TestFetchAppDetailsBlockedNoRetry(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewStringResponder(http.StatusForbidden, "forbidden"))

	result := client.FetchAppDetails(context.Background(), 570)
	assert.Equal(t, StatusBlocked, result.Status)
	assert.Equal(t, 1, transport.GetTotalCallCount(), "403 is permanent and must not be retried")
}

func TestFetchAppDetailsRateLimited(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"))

	result := client.FetchAppDetails(context.Background(), 570)
	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Equal(t, 3, transport.GetTotalCallCount(), "429 retries up to the rate limit budget")
}

func TestFetchAppDetailsRateLimitRecovers(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	calls := 0
	transport.RegisterResponder("GET", detailsPattern,
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				detailsBody(570, "Dota 2", "game", "To be announced", false)), nil
		})

	result := client.FetchAppDetails(context.Background(), 570)
	require.True(t, result.OK())
	assert.Equal(t, 2, calls)
}

func TestFetchAppDetailsTransientExhausted(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewErrorResponder(fmt.Errorf("connection reset")))

	result := client.FetchAppDetails(context.Background(), 570)
	assert.Equal(t, StatusError, result.Status)
	require.Error(t, result.Err)
	assert.Equal(t, 3, transport.GetTotalCallCount(), "transient errors retry up to the attempt budget")
}

func TestFetchAppDetailsServerErrorThenSuccess(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	calls := 0
	transport.RegisterResponder("GET", detailsPattern,
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, "bad gateway"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				detailsBody(440, "Team Fortress 2", "game", "Oct 10, 2007", false)), nil
		})

	result := client.FetchAppDetails(context.Background(), 440)
	require.True(t, result.OK())
	assert.Equal(t, "Team Fortress 2", result.Details.Name)
	assert.Equal(t, 3, calls)
}

func TestFetchAppDetailsCaches(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t)

	transport.RegisterResponder("GET", detailsPattern,
		httpmock.NewStringResponder(http.StatusOK,
			detailsBody(570, "Dota 2", "game", "Coming soon", true)))

	first := client.FetchAppDetails(context.Background(), 570)
	second := client.FetchAppDetails(context.Background(), 570)
	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, 1, transport.GetTotalCallCount(), "second fetch should be served from cache")
}

func TestFetchAppDetailsCancelledContext(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := client.FetchAppDetails(ctx, 570)
	assert.Equal(t, StatusError, result.Status)
}
