// Package watchlist implements operator commands for inspecting and pruning
// the tracked identifier watchlist.
package watchlist

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/datastore"
)

// Command creates the watchlist command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Inspect and manage the tracked identifier watchlist",
	}
	cmd.AddCommand(
		statsCommand(settings),
		listCommand(settings),
		historyCommand(settings),
		removeCommand(settings),
	)
	return cmd
}

func statsCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize watchlist size and status distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				entries, err := store.GetWatchlist()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entries: %d\n", len(entries))
				if len(entries) == 0 {
					return nil
				}

				byStatus := make(map[string]int)
				oldest := entries[0].FirstDetected
				totalChecks := 0
				for i := range entries {
					byStatus[entries[i].CurrentStatus]++
					totalChecks += entries[i].CheckCount
					if entries[i].FirstDetected < oldest {
						oldest = entries[i].FirstDetected
					}
				}

				statuses := make([]string, 0, len(byStatus))
				for status := range byStatus {
					statuses = append(statuses, status)
				}
				sort.Strings(statuses)
				for _, status := range statuses {
					fmt.Fprintf(out, "  %-14s %d\n", status+":", byStatus[status])
				}
				fmt.Fprintf(out, "Oldest first detection: %s\n", oldest)
				fmt.Fprintf(out, "Average checks per entry: %.1f\n", float64(totalChecks)/float64(len(entries)))
				return nil
			})
		},
	}
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List watchlist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				entries, err := store.GetWatchlist()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-14s %6s  %-10s  %-10s  %s\n",
					"APPID", "STATUS", "CHECKS", "FIRST", "LAST", "NAME")
				shown := 0
				for i := range entries {
					entry := &entries[i]
					if status != "" && entry.CurrentStatus != status {
						continue
					}
					fmt.Fprintf(out, "%-10d %-14s %6d  %-10s  %-10s  %s\n",
						entry.AppID, entry.CurrentStatus, entry.CheckCount,
						entry.FirstDetected, entry.LastChecked, entry.LatestName)
					shown++
					if limit > 0 && shown >= limit {
						break
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show entries with this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many rows (0 = all)")
	return cmd
}

func historyCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "history [appid]",
		Short: "Show the status history of one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid app id %q: %w", args[0], err)
			}
			return withStore(settings, func(store datastore.Interface) error {
				entry, err := store.GetWatchlistEntry(appID)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), entry)
				return nil
			})
		},
	}
}

func printHistory(out io.Writer, entry *datastore.WatchlistEntry) {
	fmt.Fprintf(out, "App %d  %s\n", entry.AppID, entry.LatestName)
	fmt.Fprintf(out, "Status %s, %d checks since %s\n", entry.CurrentStatus, entry.CheckCount, entry.FirstDetected)
	for _, event := range entry.History() {
		fmt.Fprintf(out, "  %s  %s\n", event.Date, event.Status)
	}
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [appid]",
		Short: "Remove one entry from the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid app id %q: %w", args[0], err)
			}
			return withStore(settings, func(store datastore.Interface) error {
				if err := store.DeleteWatchlistEntry(appID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d\n", appID)
				return nil
			})
		},
	}
}

func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled, enable output.sqlite or output.mysql")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close datastore", "error", err)
		}
	}()
	return fn(store)
}
