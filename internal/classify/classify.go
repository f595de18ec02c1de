// Package classify assigns a detection stage to each fetched identifier.
// The stage captures how visible the listing currently is: a failed fetch is
// itself a signal of an early, non-public listing, not an error to report.
package classify

import (
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/dwang48/steam-scraper/internal/steam"
)

// Stage is the detection stage attached to each snapshot and watchlist
// entry.
type Stage string

const (
	// StageEarlyStage marks identifiers whose fetch failed, errored, or was
	// rate-limited or blocked.
	StageEarlyStage Stage = "early_stage"
	// StageMinimalData marks successful fetches with no usable title name or
	// ambiguous release metadata.
	StageMinimalData Stage = "minimal_data"
	// StagePublicUnreleased marks named titles whose release metadata says
	// coming soon, or, when the flag is absent, carries a future or
	// unparseable date.
	StagePublicUnreleased Stage = "public_unreleased"
	// StageReleased marks titles the store says have shipped: an explicit
	// coming_soon=false, or a cleanly parsed past release date when the flag
	// is absent. These are filtered out of discovery entirely.
	StageReleased Stage = "released"
)

// Result is one classified identifier. Details is nil for StageEarlyStage.
type Result struct {
	AppID       int64
	Stage       Stage
	FetchStatus steam.FetchStatus
	Details     *steam.AppDetails
}

// Tracked reports whether the result stays in the discovery pipeline.
// Released titles are dropped, everything else is recorded.
func (r Result) Tracked() bool {
	return r.Stage != StageReleased
}

// Classify maps one fetch result onto a detection stage as of the given
// time. It never fails: malformed payloads degrade to minimal data.
func Classify(result steam.FetchResult, asOf time.Time) Result {
	out := Result{AppID: result.AppID, FetchStatus: result.Status}

	if !result.OK() {
		out.Stage = StageEarlyStage
		return out
	}

	details := sanitize(result.Details)
	out.Details = details

	if strings.TrimSpace(details.Name) == "" {
		out.Stage = StageMinimalData
		return out
	}
	if !details.HasReleaseInfo {
		out.Stage = StageMinimalData
		return out
	}
	if details.ComingSoon {
		out.Stage = StagePublicUnreleased
		return out
	}
	if details.ComingSoonKnown {
		// The store explicitly says the title shipped.
		out.Stage = StageReleased
		return out
	}
	if UnreleasedByDate(details.ReleaseDateRaw, asOf) {
		out.Stage = StagePublicUnreleased
		return out
	}

	out.Stage = StageReleased
	return out
}

// sanitize strips embedded HTML from the free-text payload fields. The store
// serves marked-up fragments in descriptions and language lists.
func sanitize(details *steam.AppDetails) *steam.AppDetails {
	clean := *details
	clean.Description = cleanText(details.Description)
	clean.SupportedLanguages = cleanText(details.SupportedLanguages)
	return &clean
}

func cleanText(s string) string {
	if s == "" || !strings.ContainsAny(s, "<&") {
		return s
	}
	return strings.TrimSpace(html2text.HTML2Text(s))
}
