package steam

import (
	"github.com/dwang48/steam-scraper/internal/conf"
)

// ConfigFromSettings maps the viper settings tree onto a client Config,
// falling back to defaults for anything left unset.
func ConfigFromSettings(settings *conf.Settings) Config {
	config := DefaultConfig()
	s := settings.Steam
	if s.AppListURL != "" {
		config.AppListURL = s.AppListURL
	}
	if s.DetailsURL != "" {
		config.DetailsURL = s.DetailsURL
	}
	if s.Timeout > 0 {
		config.Timeout = s.Timeout
	}
	if s.CacheTTL > 0 {
		config.CacheTTL = s.CacheTTL
	}
	if s.UserAgent != "" {
		config.UserAgent = s.UserAgent
	}
	if s.MaxRetries > 0 {
		config.Retry.MaxAttempts = s.MaxRetries
	}
	if s.RetryPause > 0 {
		config.Retry.TransientPause = s.RetryPause
	}
	if s.RateLimitTries > 0 {
		config.Retry.RateLimitAttempts = s.RateLimitTries
	}
	if s.RateLimitWait > 0 {
		config.Retry.RateLimitWait = s.RateLimitWait
	}
	return config
}
