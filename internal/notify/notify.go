// Package notify delivers run summaries and momentum highlights to operator
// channels (Telegram, Discord, email gateways) via shoutrrr URLs. Delivery
// is best-effort: the pipeline never depends on it succeeding.
package notify

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/dwang48/steam-scraper/internal/datastore"
	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "notify.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "notify", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize notify file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "notify")
		closeLogger = func() error { return nil }
	}
}

// RunSummary carries the counts a finished discovery run reports.
type RunSummary struct {
	Date             string
	NewIdentifiers   int
	Fetched          int
	StageCounts      map[string]int
	ReleasedFiltered int
	DuplicateFlags   int
	Promotions       int
	WatchlistSize    int
	ExportPath       string
	Elapsed          time.Duration
}

// Notifier sends messages through a shared shoutrrr router.
type Notifier struct {
	enabled bool
	urls    []string
	sender  *router.ServiceRouter
}

// New validates the URLs and builds the router. A disabled notifier is
// valid and silently drops every message.
func New(enabled bool, urls []string, timeout time.Duration) (*Notifier, error) {
	n := &Notifier{enabled: enabled, urls: slices.Clone(urls)}
	if !enabled {
		return n, nil
	}
	if len(urls) == 0 {
		return nil, errors.Newf("notifications enabled but no service URLs configured").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("creating notification sender: %w", err).
			Category(errors.CategoryNotification).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	n.sender = sender
	return n, nil
}

// SendRunSummary formats and delivers a discovery run summary. Errors are
// logged and returned but callers treat them as advisory.
func (n *Notifier) SendRunSummary(summary *RunSummary) error {
	if !n.enabled || n.sender == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Discovery run %s finished in %s\n", summary.Date, summary.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "New identifiers: %d, fetched: %d\n", summary.NewIdentifiers, summary.Fetched)
	for _, stage := range []string{"public_unreleased", "early_stage", "minimal_data"} {
		if count := summary.StageCounts[stage]; count > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", stage, count)
		}
	}
	if summary.ReleasedFiltered > 0 {
		fmt.Fprintf(&b, "Already released (filtered): %d\n", summary.ReleasedFiltered)
	}
	if summary.DuplicateFlags > 0 {
		fmt.Fprintf(&b, "Duplicate flags: %d\n", summary.DuplicateFlags)
	}
	fmt.Fprintf(&b, "Watchlist: %d tracked, %d promoted\n", summary.WatchlistSize, summary.Promotions)
	if summary.ExportPath != "" {
		fmt.Fprintf(&b, "Export: %s\n", summary.ExportPath)
	}

	return n.send(fmt.Sprintf("Steam discovery %s", summary.Date), b.String())
}

// SendMomentumHighlights delivers the top published momentum rows for a
// window.
func (n *Notifier) SendMomentumHighlights(windowDays int, calcDate string, rows []datastore.MomentumResult, topN int) error {
	if !n.enabled || n.sender == nil {
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "High-momentum unreleased titles, %dd window ending %s:\n", windowDays, calcDate)
	for _, row := range rows {
		fmt.Fprintf(&b, "%2d. %s  +%.1f/day (baseline %d, %s)\n",
			row.Rank, row.Name, row.DeltaPerDay, row.Baseline, row.MetricName)
	}

	return n.send(fmt.Sprintf("Momentum %dd %s", windowDays, calcDate), b.String())
}

func (n *Notifier) send(title, body string) error {
	params := stypes.Params{}
	params.SetTitle(title)

	sendErrs := n.sender.Send(body, &params)
	var failed int
	for _, err := range sendErrs {
		if err != nil {
			failed++
			logger.Warn("Notification delivery failed", "error", err.Error())
		}
	}
	if failed == len(sendErrs) && failed > 0 {
		return errors.Newf("all %d notification deliveries failed", failed).
			Category(errors.CategoryNotification).
			Build()
	}
	logger.Info("Notification sent", "title", title, "targets", len(sendErrs), "failed", failed)
	return nil
}
