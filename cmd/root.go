package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dwang48/steam-scraper/cmd/discover"
	"github.com/dwang48/steam-scraper/cmd/momentum"
	"github.com/dwang48/steam-scraper/cmd/watchlist"
	"github.com/dwang48/steam-scraper/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "steam-scraper",
		Short: "Steam unreleased-title discovery CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		discover.Command(settings),
		discover.RecheckCommand(settings),
		momentum.Command(settings),
		watchlist.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.DataDir, "datadir", viper.GetString("main.datadir"), "Directory for run artifacts")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
