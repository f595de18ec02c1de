package conf

import (
	"fmt"
	"log/slog"
	"strings"
)

// ValidateSettings checks the loaded settings for values that would make a
// run misbehave in non-obvious ways.
func ValidateSettings(settings *Settings) error {
	var errs []string

	if settings.Steam.AppListURL == "" {
		errs = append(errs, "steam.applisturl must not be empty")
	}
	if !strings.Contains(settings.Steam.DetailsURL, "%d") {
		errs = append(errs, "steam.detailsurl must contain a %d placeholder for the app id")
	}
	if settings.Steam.MaxWorkers <= 0 {
		errs = append(errs, "steam.maxworkers must be positive")
	}
	if settings.Steam.MaxRetries <= 0 {
		errs = append(errs, "steam.maxretries must be positive")
	}
	if settings.Steam.RateLimitTries <= 0 {
		errs = append(errs, "steam.ratelimittries must be positive")
	}

	if settings.Discovery.CheckpointEvery <= 0 {
		errs = append(errs, "discovery.checkpointevery must be positive")
	}
	if settings.Discovery.DedupThreshold < 0 || settings.Discovery.DedupThreshold > 1 {
		errs = append(errs, "discovery.dedupthreshold must be within [0,1]")
	}

	if len(settings.Momentum.Windows) == 0 {
		errs = append(errs, "momentum.windows must list at least one window length")
	}
	for _, w := range settings.Momentum.Windows {
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("momentum window length %d must be positive", w))
		}
	}
	if settings.Momentum.PublishPercentile < 0 || settings.Momentum.PublishPercentile > 100 {
		errs = append(errs, "momentum.publishpercentile must be within [0,100]")
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		errs = append(errs, "at least one of output.sqlite or output.mysql must be enabled")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		errs = append(errs, "output.sqlite.path must not be empty")
	}

	if settings.Notify.Enabled && len(settings.Notify.URLs) == 0 {
		errs = append(errs, "notify.enabled requires at least one notify.urls entry")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LogLevel maps the configured level name onto a slog.Level. Unknown names
// fall back to info.
func (s *Settings) LogLevel() slog.Level {
	switch strings.ToLower(s.Main.LogLevel) {
	case "trace":
		return slog.Level(-8)
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
