// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "steam-scraper")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.datadir", "data/")

	viper.SetDefault("steam.applisturl", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	viper.SetDefault("steam.detailsurl", "https://store.steampowered.com/api/appdetails?appids=%d&cc=us&l=en")
	viper.SetDefault("steam.timeout", 30*time.Second)
	viper.SetDefault("steam.maxworkers", 32)
	viper.SetDefault("steam.maxretries", 3)
	viper.SetDefault("steam.retrypause", 5*time.Second)
	viper.SetDefault("steam.ratelimitwait", 30*time.Second)
	viper.SetDefault("steam.ratelimittries", 3)
	viper.SetDefault("steam.cachettl", 15*time.Minute)
	viper.SetDefault("steam.useragent", "steam-scraper")

	viper.SetDefault("discovery.firstruncap", 5000)
	viper.SetDefault("discovery.checkpointevery", 100)
	viper.SetDefault("discovery.dedupthreshold", 0.85)
	viper.SetDefault("discovery.exportcsv", true)
	viper.SetDefault("discovery.recheckwatchlist", true)

	viper.SetDefault("momentum.windows", []int{3, 7})
	viper.SetDefault("momentum.minbaseline", 50)
	viper.SetDefault("momentum.publishpercentile", 75.0)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "steam.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "steam")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "steam")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.urls", []string{})
	viper.SetDefault("notify.timeout", 10*time.Second)
	viper.SetDefault("notify.topn", 10)
}
