package momentum

import "strings"

// WishlistEstimator derives an estimated wishlist count from a follower
// count when no direct wishlist data exists. Implementations must be pure:
// the engine may call them from multiple windows over the same snapshots.
type WishlistEstimator interface {
	Estimate(followers int64, genres []string) int64
}

// GenreEstimator scales follower counts by a per-genre multiplier. Follower
// counts track wishlists at roughly an order of magnitude below; some genres
// convert interest into wishlists more readily than others.
type GenreEstimator struct {
	Multipliers map[string]float64
	Default     float64
}

// NewGenreEstimator returns the stock estimator.
func NewGenreEstimator() *GenreEstimator {
	return &GenreEstimator{
		Multipliers: map[string]float64{
			"strategy":   12,
			"simulation": 12,
			"rpg":        11,
			"indie":      10,
			"adventure":  9,
			"casual":     7,
			"sports":     7,
		},
		Default: 10,
	}
}

// Estimate applies the highest multiplier among the title's genres.
func (e *GenreEstimator) Estimate(followers int64, genres []string) int64 {
	if followers <= 0 {
		return 0
	}
	multiplier := e.Default
	for _, genre := range genres {
		if m, ok := e.Multipliers[strings.ToLower(strings.TrimSpace(genre))]; ok && m > multiplier {
			multiplier = m
		}
	}
	return int64(float64(followers) * multiplier)
}
