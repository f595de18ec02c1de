// Package diff computes the catalog set difference between the identifiers
// seen today and the identifiers known from all previous runs.
package diff

// NewAppIDs returns the identifiers present in current but absent from
// known, preserving current's order. Identifiers that disappeared from the
// catalog are ignored; delistings are not tracked here.
func NewAppIDs(current, known []int64) []int64 {
	if len(current) == 0 {
		return nil
	}

	knownSet := make(map[int64]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	var fresh []int64
	seen := make(map[int64]struct{}, len(current))
	for _, id := range current {
		if _, ok := knownSet[id]; ok {
			continue
		}
		// The upstream list occasionally repeats an id.
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

// Cap truncates ids to at most n, keeping the head. Used to bound the very
// first run, where the whole catalog counts as new.
func Cap(ids []int64, n int) []int64 {
	if n <= 0 || len(ids) <= n {
		return ids
	}
	return ids[:n]
}
