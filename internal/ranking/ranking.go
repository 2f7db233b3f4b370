// Package ranking orders players by competitive rating and tracks how a
// player's position moves between observations.
package ranking

import (
	"slices"

	"github.com/MrWong99/companionhub/internal/progression"
)

// Rank returns a copy of standings sorted by rating, highest first. Equal
// ratings keep their input order, so callers should pass standings in
// record insertion order.
func Rank(standings []progression.Standing) []progression.Standing {
	out := slices.Clone(standings)
	slices.SortStableFunc(out, func(a, b progression.Standing) int {
		return b.Rating - a.Rating
	})
	return out
}

// Position returns the 1-based position of userID in ranked, or 0 if the
// user is not present.
func Position(ranked []progression.Standing, userID string) int {
	for i, s := range ranked {
		if s.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// Direction is the sign of a rank movement.
type Direction int

const (
	// Unchanged covers equal ranks as well as a missing previous or current
	// rank.
	Unchanged Direction = iota
	Improved
	Dropped
)

// Delta describes rank movement since the previous observation.
type Delta struct {
	Direction Direction

	// Places is the absolute number of positions moved.
	Places int
}

// Observe compares rank against r.LastRank, then stores rank as the new
// LastRank. A rank of 0 means unranked and is stored as well.
func Observe(r *progression.Record, rank int) Delta {
	last := r.LastRank
	r.LastRank = rank

	switch {
	case last == 0 || rank == 0 || rank == last:
		return Delta{Direction: Unchanged}
	case rank < last:
		return Delta{Direction: Improved, Places: last - rank}
	default:
		return Delta{Direction: Dropped, Places: rank - last}
	}
}
