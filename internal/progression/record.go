// Package progression owns the per-user progression records shared by the
// companion and adventure surfaces.
//
// A [Record] is created lazily on a user's first interaction and lives in a
// [Ledger] for the lifetime of the process. The ledger serialises every
// read-modify-write sequence per user id; see [Ledger.Update].
//
// Feature unlocking is driven by a [ThresholdTable]: after any score change
// [Resolve] lifts the record to the highest level whose score requirement is
// met and grants that level's feature tag.
package progression

import (
	"maps"
	"slices"
	"time"
)

// BaselineFeature is granted to every record on creation.
const BaselineFeature = "chat"

// DefaultBaseRating is the competitive rating assigned to new records.
const DefaultBaseRating = 1200

// DefaultMemoryCapacity bounds the number of entries kept in [Record.Memory].
const DefaultMemoryCapacity = 20

// SessionKind tags the active multi-step flow of a record.
type SessionKind int

const (
	// SessionNone means no multi-step flow is active.
	SessionNone SessionKind = iota

	// SessionLegacy is the free-form question-and-answer legacy project.
	SessionLegacy

	// SessionAdventure is a branching scene-graph adventure.
	SessionAdventure
)

// String returns the human-readable name of the kind.
func (k SessionKind) String() string {
	switch k {
	case SessionNone:
		return "none"
	case SessionLegacy:
		return "legacy"
	case SessionAdventure:
		return "adventure"
	default:
		return "unknown"
	}
}

// Session is a user's position inside a multi-step content flow. The zero
// value is an inactive session.
type Session struct {
	// Kind selects the variant. Only the fields relevant to Kind are set.
	Kind SessionKind

	// GraphID identifies the narrative graph the session walks.
	GraphID string

	// Step is the index of the current step in the graph.
	Step int

	// Answers accumulates free-text answers keyed by question id
	// (legacy sessions only).
	Answers map[string]string

	// Aux carries adventure-specific counters (adventure sessions only).
	Aux map[string]int
}

// Active reports whether a multi-step flow is in progress.
func (s Session) Active() bool {
	return s.Kind != SessionNone
}

func (s Session) clone() Session {
	s.Answers = maps.Clone(s.Answers)
	s.Aux = maps.Clone(s.Aux)
	return s
}

// Record is the mutable progression state of a single user.
//
// Records handed out by [Ledger.Lookup] and [Ledger.GetOrCreate] are copies;
// mutate a record only inside [Ledger.Update].
type Record struct {
	// UserID is the opaque caller identity used as the ledger key.
	UserID string

	// PersonaKey is the chosen companion persona. Empty until the user
	// picks a companion.
	PersonaKey string

	// CompanionName overrides the persona's display name once the user
	// renames their companion.
	CompanionName string

	// Score is the companion bond score. Never negative.
	Score int

	// Level is always the highest threshold level satisfied by Score.
	Level int

	// Features is the ordered set of unlocked feature tags.
	Features []string

	// Rating is the competitive adventure rating.
	Rating int

	// LastRank is the last observed leaderboard position (1-based).
	// Zero means the user has never been ranked.
	LastRank int

	// LastActivity is the time of the last qualifying companion interaction.
	LastActivity time.Time

	// Memory holds the most recent chat exchanges, oldest first.
	Memory []string

	// Session is the active multi-step flow, if any.
	Session Session
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Features = slices.Clone(r.Features)
	r.Memory = slices.Clone(r.Memory)
	r.Session = r.Session.clone()
	return r
}

// HasCompanion reports whether the user has chosen a persona.
func (r *Record) HasCompanion() bool {
	return r.PersonaKey != ""
}

// HasFeature reports whether feature has been unlocked.
func (r *Record) HasFeature(feature string) bool {
	return slices.Contains(r.Features, feature)
}

// grantFeature adds feature to the unlocked set. Granting an already
// present feature is a no-op.
func (r *Record) grantFeature(feature string) bool {
	if feature == "" || r.HasFeature(feature) {
		return false
	}
	r.Features = append(r.Features, feature)
	return true
}

// ApplyScoreDelta adds delta to the bond score, clamping at zero. It does
// not resolve level-ups; call [Resolve] afterwards.
func (r *Record) ApplyScoreDelta(delta int) {
	r.Score += delta
	if r.Score < 0 {
		r.Score = 0
	}
}

// SetScore overwrites the bond score. Reserved for debug tooling.
func (r *Record) SetScore(score int) {
	r.Score = max(score, 0)
}

// ApplyRatingDelta adds delta to the competitive rating. Ratings may go
// down as well as up and are kept apart from the bond score.
func (r *Record) ApplyRatingDelta(delta int) {
	r.Rating += delta
}

// TouchActivity reports whether more than window has elapsed since the last
// activity, then records now as the latest activity unconditionally.
func (r *Record) TouchActivity(now time.Time, window time.Duration) bool {
	bonus := now.Sub(r.LastActivity) > window
	r.LastActivity = now
	return bonus
}

// AppendMemory appends entry to the memory log and evicts the oldest
// entries so that at most capacity remain. A capacity ≤ 0 selects
// [DefaultMemoryCapacity].
func (r *Record) AppendMemory(entry string, capacity int) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	r.Memory = append(r.Memory, entry)
	if over := len(r.Memory) - capacity; over > 0 {
		r.Memory = slices.Delete(r.Memory, 0, over)
	}
}

// ClearSession ends the active flow and returns the kind that was active.
func (r *Record) ClearSession() SessionKind {
	kind := r.Session.Kind
	r.Session = Session{}
	return kind
}
