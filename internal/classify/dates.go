package classify

import (
	"strings"
	"time"
)

// Steam renders release dates in a handful of locale-dependent layouts plus
// free-form placeholders. Only these layouts count as cleanly parseable.
var releaseDateLayouts = []string{
	"Jan 2, 2006",
	"2 Jan, 2006",
	"January 2, 2006",
	"2 January, 2006",
	"Jan 2006",
	"January 2006",
	"2006",
}

// placeholders that explicitly announce an unreleased title. Matched as a
// substring of the lowercased date text.
var unreleasedPlaceholders = []string{
	"tba",
	"tbd",
	"to be announced",
	"coming soon",
	"soon",
	"when it's ready",
	"wishlist now",
}

// ParseReleaseDate attempts to parse Steam's human-readable release date
// text. The bool result reports whether the text parsed cleanly.
func ParseReleaseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnreleasedByDate applies the release-date tie-break: placeholder,
// unparseable, or future-parsed dates are treated as unreleased; only a
// cleanly parsed past date counts as released. The asymmetry is intentional:
// tracking a released title a little longer is cheaper than losing an
// unreleased one.
func UnreleasedByDate(raw string, asOf time.Time) bool {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return true
	}
	for _, placeholder := range unreleasedPlaceholders {
		if strings.Contains(trimmed, placeholder) {
			return true
		}
	}
	parsed, ok := ParseReleaseDate(raw)
	if !ok {
		return true
	}
	return !parsed.Before(asOf)
}
