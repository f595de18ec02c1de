// config.go: settings struct and loading for the steam-scraper application.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name     string // application instance name, used in logs and batch records
	LogLevel string // minimum log level: trace, debug, info, warn, error
	DataDir  string // directory for run artifacts (exports, checkpoints)
}

// SteamSettings contains settings for the Steam Web API client.
type SteamSettings struct {
	AppListURL     string        // full catalog identifier list endpoint
	DetailsURL     string        // per-app details endpoint, %d is the app id
	Timeout        time.Duration // per-request timeout
	MaxWorkers     int           // bounded worker pool size for detail fetches
	MaxRetries     int           // attempts for transient network errors
	RetryPause     time.Duration // fixed pause between transient retries
	RateLimitWait  time.Duration // base wait for HTTP 429, multiplied by attempt
	RateLimitTries int           // attempts before a 429 is surfaced as rate_limited
	CacheTTL       time.Duration // details cache TTL
	UserAgent      string        // User-Agent header for store requests
}

// DiscoverySettings controls the daily discovery pipeline.
type DiscoverySettings struct {
	FirstRunCap      int     // cap on detail fetches when no previous snapshot exists
	CheckpointEvery  int     // persist watchlist state every N processed identifiers
	DedupThreshold   float64 // similarity threshold for duplicate candidates
	ExportCSV        bool    // write a CSV of unreleased discoveries per run
	RecheckWatchlist bool    // re-evaluate watchlist entries during discovery runs
}

// MomentumSettings controls the momentum ranking engine.
type MomentumSettings struct {
	Windows           []int   // lookback windows in days
	MinBaseline       int     // minimum baseline metric value to qualify
	PublishPercentile float64 // retain rows at or above this percentile
}

// SQLiteSettings contains SQLite output settings.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains MySQL output settings.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings contains the persistence collaborator settings.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// NotifySettings contains run summary notification settings.
type NotifySettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per-delivery timeout
	TopN    int           // momentum rows to include in the summary
}

// Settings is the root configuration object.
type Settings struct {
	Debug     bool // true to enable debug mode
	Main      MainSettings
	Steam     SteamSettings
	Discovery DiscoverySettings
	Momentum  MomentumSettings
	Output    OutputSettings
	Notify    NotifySettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk (creating a default config file on
// first run) and returns the populated settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		if createErr := createDefaultConfig(configPaths[0]); createErr != nil {
			return createErr
		}
		if readErr := viper.ReadInConfig(); readErr != nil {
			return fmt.Errorf("error reading newly created config file: %w", readErr)
		}
	}
	return nil
}

// createDefaultConfig writes the embedded default config.yaml into the first
// config path so the user has a documented starting point to edit.
func createDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}
	// Sanity check that the embedded default is valid YAML before writing it out.
	var probe map[string]any
	if err := yaml.Unmarshal(defaultConfig, &probe); err != nil {
		return fmt.Errorf("embedded default config is not valid yaml: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for
// config.yaml, most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}
	return []string{
		filepath.Join(configDir, "steam-scraper"),
		".",
	}, nil
}

// GetSettings returns the current settings instance. It may be nil if Load
// has not been called.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return GetSettings()
}
