// Package dedup flags probable duplicate listings of the same title: demos,
// playtests, prologues, and regional re-listings that share a name with an
// already-known record. The detector only flags candidates; it never merges
// or deletes anything.
package dedup

import (
	"sort"
	"strings"
)

// DefaultThreshold is the minimum similarity score for a duplicate flag.
const DefaultThreshold = 0.85

// KnownTitle is a previously recorded title the detector compares against.
type KnownTitle struct {
	AppID      int64
	Name       string
	Developers []string
}

// Candidate is one previously known title scoring at or above the
// threshold. SharedDevelopers is an auxiliary corroborating signal, never a
// gating condition.
type Candidate struct {
	AppID            int64
	Name             string
	Score            float64
	SharedDevelopers []string
}

// Detector compares incoming titles against a known set, caching normalized
// forms of the known names. Not safe for concurrent mutation; the pipeline
// uses it from its single aggregation step.
type Detector struct {
	threshold  float64
	known      []KnownTitle
	normalized []string
}

// NewDetector builds a detector over the known titles. A non-positive
// threshold falls back to the default.
func NewDetector(known []KnownTitle, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	normalized := make([]string, len(known))
	for i, title := range known {
		normalized[i] = Normalize(title.Name)
	}
	return &Detector{threshold: threshold, known: known, normalized: normalized}
}

// Candidates returns all known titles similar to the given name at or above
// the threshold, sorted descending by score. A title never matches itself:
// pass appID to exclude the record under test.
func (d *Detector) Candidates(appID int64, name string, developers []string) []Candidate {
	normalized := Normalize(name)
	if normalized == "" {
		return nil
	}

	var out []Candidate
	for i, title := range d.known {
		if title.AppID == appID {
			continue
		}
		score := Similarity(normalized, d.normalized[i])
		if score < d.threshold {
			continue
		}
		out = append(out, Candidate{
			AppID:            title.AppID,
			Name:             title.Name,
			Score:            score,
			SharedDevelopers: developerOverlap(developers, title.Developers),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AppID < out[j].AppID
	})
	return out
}

// Add registers a newly discovered title so later names in the same run are
// compared against it too.
func (d *Detector) Add(title KnownTitle) {
	d.known = append(d.known, title)
	d.normalized = append(d.normalized, Normalize(title.Name))
}

// developerOverlap returns the case-insensitive intersection of two
// developer lists, preserving the first list's original casing.
func developerOverlap(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(b))
	for _, dev := range b {
		set[strings.ToLower(strings.TrimSpace(dev))] = struct{}{}
	}
	var shared []string
	for _, dev := range a {
		if _, ok := set[strings.ToLower(strings.TrimSpace(dev))]; ok {
			shared = append(shared, dev)
		}
	}
	return shared
}
