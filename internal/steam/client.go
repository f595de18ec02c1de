// Package steam implements the resilient client for the Steam Web API: the
// full catalog app list and the per-app details endpoint. Fetch failures are
// classified and returned as data so a single bad identifier can never abort
// a run.
package steam

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"

	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/httpclient"
	"github.com/dwang48/steam-scraper/internal/logging"
	"github.com/dwang48/steam-scraper/internal/observability/metrics"
)

// Package-level logger specific to the steam service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "steam.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "steam", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize steam file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "steam")
		closeLogger = func() error { return nil }
	}
}

// Config holds the client configuration.
type Config struct {
	AppListURL string        // catalog list endpoint
	DetailsURL string        // details endpoint with a %d placeholder for the app id
	Timeout    time.Duration // per-request timeout
	CacheTTL   time.Duration // successful details cache TTL
	UserAgent  string
	Retry      RetryPolicy
}

// DefaultConfig returns the production endpoints and retry schedule.
func DefaultConfig() Config {
	return Config{
		AppListURL: "https://api.steampowered.com/ISteamApps/GetAppList/v2/",
		DetailsURL: "https://store.steampowered.com/api/appdetails?appids=%d&cc=us&l=en",
		Timeout:    30 * time.Second,
		CacheTTL:   15 * time.Minute,
		UserAgent:  "steam-scraper",
		Retry:      DefaultRetryPolicy(),
	}
}

// Client provides methods for the two upstream operations: the full app list
// and details-by-identifier. Thread-safe; a single client is shared by all
// pool workers.
type Client struct {
	config  Config
	http    *httpclient.Client
	cache   *cache.Cache
	metrics *metrics.ScraperMetrics

	firstCallOnce sync.Once
}

// NewClient creates a new Steam API client.
func NewClient(config Config, m *metrics.ScraperMetrics) (*Client, error) {
	if config.AppListURL == "" {
		config.AppListURL = DefaultConfig().AppListURL
	}
	if config.DetailsURL == "" {
		config.DetailsURL = DefaultConfig().DetailsURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.DefaultTimeout = config.Timeout
	httpCfg.UserAgent = config.UserAgent

	client := &Client{
		config:  config,
		http:    httpclient.New(&httpCfg),
		cache:   cache.New(config.CacheTTL, config.CacheTTL*2),
		metrics: m,
	}

	logger.Info("Steam client initialized",
		"applist_url", config.AppListURL,
		"cache_ttl", config.CacheTTL,
		"max_retries", config.Retry.MaxAttempts,
		"rate_limit_tries", config.Retry.RateLimitAttempts)

	return client, nil
}

// Close releases the client resources and the service log file.
func (c *Client) Close() {
	c.http.Close()
	logger.Info("Closing Steam client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing steam logger: %v", err)
		}
	}
}

// FetchAppList downloads the full catalog identifier list. This is a
// run-level operation: any failure here is fatal for the run and is returned
// as an error rather than classified as per-identifier data.
func (c *Client) FetchAppList(ctx context.Context) ([]int64, error) {
	start := time.Now()

	resp, err := c.http.Get(ctx, c.config.AppListURL)
	if err != nil {
		c.metrics.RecordFetch("applist", "error", time.Since(start))
		return nil, errors.Newf("fetching app list: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", c.config.AppListURL).
			Component("steam-api").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordFetch("applist", "error", time.Since(start))
		return nil, errors.Newf("app list returned status %d", resp.StatusCode).
			Category(httpErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Component("steam-api").
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordFetch("applist", "error", time.Since(start))
		return nil, errors.Newf("reading app list response: %w", err).
			Category(errors.CategoryNetwork).
			Component("steam-api").
			Build()
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		c.metrics.RecordFetch("applist", "error", time.Since(start))
		return nil, errors.Newf("parsing app list response: %w", err).
			Category(errors.CategoryJSONParsing).
			Context("response_size", len(body)).
			Component("steam-api").
			Build()
	}

	apps, err := root.GetObjectArray("applist", "apps")
	if err != nil {
		c.metrics.RecordFetch("applist", "error", time.Since(start))
		return nil, errors.Newf("app list payload missing applist.apps: %w", err).
			Category(errors.CategoryJSONParsing).
			Component("steam-api").
			Build()
	}

	ids := make([]int64, 0, len(apps))
	for _, app := range apps {
		id, err := app.GetInt64("appid")
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}

	c.metrics.RecordFetch("applist", "success", time.Since(start))
	c.firstCallOnce.Do(func() {
		logger.Info("Steam API reachable", "first_successful_request", c.config.AppListURL)
	})
	logger.Info("Fetched app list", "count", len(ids), "duration_ms", time.Since(start).Milliseconds())
	return ids, nil
}

// FetchAppDetails fetches detail data for one identifier. The outcome is
// always a FetchResult; errors never escape this boundary. Successful
// payloads are cached for the configured TTL.
func (c *Client) FetchAppDetails(ctx context.Context, appID int64) FetchResult {
	cacheKey := strconv.FormatInt(appID, 10)
	if cached, found := c.cache.Get(cacheKey); found {
		if details, ok := cached.(*AppDetails); ok {
			logger.Debug("Details cache hit", "app_id", appID)
			return FetchResult{AppID: appID, Status: StatusSuccess, Details: details}
		}
	}

	result := c.fetchDetailsWithRetry(ctx, appID)
	if result.OK() {
		c.cache.Set(cacheKey, result.Details, cache.DefaultExpiration)
	}
	return result
}

// fetchDetailsWithRetry drives the retry policy: transient failures wait a
// fixed pause, 429 waits escalate with the attempt number, and 403 returns
// immediately as blocked.
func (c *Client) fetchDetailsWithRetry(ctx context.Context, appID int64) FetchResult {
	policy := c.config.Retry
	url := fmt.Sprintf(c.config.DetailsURL, appID)

	transientAttempts := 0
	rateLimitAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return FetchResult{AppID: appID, Status: StatusError, Err: err}
		}

		start := time.Now()
		result, retryable, err := c.fetchDetailsOnce(ctx, appID, url)
		duration := time.Since(start)

		switch {
		case err == nil:
			c.metrics.RecordFetch("appdetails", string(result.Status), duration)
			return result

		case errors.IsCategory(err, errors.CategoryBlocked):
			c.metrics.RecordFetch("appdetails", string(StatusBlocked), duration)
			logger.Debug("App blocked", "app_id", appID)
			return FetchResult{AppID: appID, Status: StatusBlocked, Err: err}

		case errors.IsCategory(err, errors.CategoryRateLimit):
			rateLimitAttempts++
			if rateLimitAttempts >= policy.RateLimitAttempts {
				c.metrics.RecordFetch("appdetails", string(StatusRateLimited), duration)
				logger.Warn("Rate limited, retry budget exhausted",
					"app_id", appID,
					"attempts", rateLimitAttempts)
				return FetchResult{AppID: appID, Status: StatusRateLimited, Err: err}
			}
			wait := policy.RateLimitDelay(rateLimitAttempts)
			c.metrics.RecordRetry("rate_limit")
			logger.Warn("Rate limited, backing off",
				"app_id", appID,
				"attempt", rateLimitAttempts,
				"wait_ms", wait.Milliseconds())
			if sleepErr := sleep(ctx, wait); sleepErr != nil {
				return FetchResult{AppID: appID, Status: StatusError, Err: sleepErr}
			}

		case retryable:
			transientAttempts++
			if transientAttempts >= policy.MaxAttempts {
				c.metrics.RecordFetch("appdetails", string(StatusError), duration)
				logger.Warn("Details fetch failed after retries",
					"app_id", appID,
					"attempts", transientAttempts,
					"error", err.Error())
				return FetchResult{AppID: appID, Status: StatusError, Err: err}
			}
			c.metrics.RecordRetry("transient")
			logger.Debug("Transient fetch failure, retrying",
				"app_id", appID,
				"attempt", transientAttempts,
				"error", err.Error())
			if sleepErr := sleep(ctx, policy.TransientDelay()); sleepErr != nil {
				return FetchResult{AppID: appID, Status: StatusError, Err: sleepErr}
			}

		default:
			c.metrics.RecordFetch("appdetails", string(StatusError), duration)
			return FetchResult{AppID: appID, Status: StatusError, Err: err}
		}
	}
}

// fetchDetailsOnce performs a single details request. The bool result
// reports whether a failure is retryable.
func (c *Client) fetchDetailsOnce(ctx context.Context, appID int64, url string) (FetchResult, bool, error) {
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return FetchResult{}, true, errors.Newf("details request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("app_id", appID).
			Component("steam-api").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return FetchResult{}, false, errors.Newf("details blocked for app %d", appID).
			Category(errors.CategoryBlocked).
			Context("app_id", appID).
			Context("status_code", resp.StatusCode).
			Component("steam-api").
			Build()
	case resp.StatusCode == http.StatusTooManyRequests:
		return FetchResult{}, true, errors.Newf("rate limited fetching app %d", appID).
			Category(errors.CategoryRateLimit).
			Context("app_id", appID).
			Component("steam-api").
			Build()
	case resp.StatusCode != http.StatusOK:
		return FetchResult{}, resp.StatusCode >= 500, errors.Newf("details returned status %d for app %d", resp.StatusCode, appID).
			Category(httpErrorCategory(resp.StatusCode)).
			Context("app_id", appID).
			Context("status_code", resp.StatusCode).
			Component("steam-api").
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, true, errors.Newf("reading details response: %w", err).
			Category(errors.CategoryNetwork).
			Context("app_id", appID).
			Component("steam-api").
			Build()
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return FetchResult{}, true, errors.Newf("parsing details response: %w", err).
			Category(errors.CategoryJSONParsing).
			Context("app_id", appID).
			Context("response_size", len(body)).
			Component("steam-api").
			Build()
	}

	key := strconv.FormatInt(appID, 10)
	success, err := root.GetBoolean(key, "success")
	if err != nil || !success {
		// Structured "not successful" answer: the id has no public data.
		return FetchResult{AppID: appID, Status: StatusFailed}, false, nil
	}

	data, err := root.GetObject(key, "data")
	if err != nil {
		return FetchResult{AppID: appID, Status: StatusFailed}, false, nil
	}

	details := parseDetails(appID, data)
	return FetchResult{AppID: appID, Status: StatusSuccess, Details: details}, false, nil
}

// parseDetails extracts the fields the pipeline consumes. Missing fields are
// tolerated; a payload with no usable name is still returned and classified
// downstream as minimal data.
func parseDetails(appID int64, data *jason.Object) *AppDetails {
	details := &AppDetails{AppID: appID}

	details.Type, _ = data.GetString("type")
	details.Name, _ = data.GetString("name")
	details.Description, _ = data.GetString("short_description")
	details.Website, _ = data.GetString("website")
	details.HeaderImage, _ = data.GetString("header_image")
	details.SupportedLanguages, _ = data.GetString("supported_languages")

	if release, err := data.GetObject("release_date"); err == nil {
		details.HasReleaseInfo = true
		if comingSoon, err := release.GetBoolean("coming_soon"); err == nil {
			details.ComingSoon = comingSoon
			details.ComingSoonKnown = true
		}
		details.ReleaseDateRaw, _ = release.GetString("date")
	}

	details.Developers = stringArray(data, "developers")
	details.Publishers = stringArray(data, "publishers")
	details.Categories = describedArray(data, "categories")
	details.Genres = describedArray(data, "genres")

	if followers, err := data.GetInt64("followers"); err == nil {
		details.Followers = &followers
	}

	return details
}

func stringArray(data *jason.Object, key string) []string {
	values, err := data.GetStringArray(key)
	if err != nil {
		return nil
	}
	return values
}

// describedArray flattens Steam's [{id, description}] arrays into the
// description strings.
func describedArray(data *jason.Object, key string) []string {
	objects, err := data.GetObjectArray(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(objects))
	for _, obj := range objects {
		if desc, err := obj.GetString("description"); err == nil && desc != "" {
			out = append(out, desc)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// httpErrorCategory maps an HTTP status code onto an error category.
func httpErrorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusForbidden:
		return errors.CategoryBlocked
	case http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	default:
		return errors.CategoryHTTP
	}
}
