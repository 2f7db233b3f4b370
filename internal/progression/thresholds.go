package progression

import (
	"errors"
	"fmt"
	"slices"
)

// Feature tags unlocked by the default threshold table.
const (
	FeatureExplore       = "explore"
	FeaturePersonaSkill  = "persona_skill_1"
	FeatureUseName       = "use_name"
	FeatureRename        = "rename"
	FeatureLegacyProject = "legacy_project"
)

// Threshold is a single entry of a [ThresholdTable].
type Threshold struct {
	// Level is the bond level reached once Score is met.
	Level int

	// Score is the minimum bond score for Level.
	Score int

	// Feature is the tag granted on reaching Level.
	Feature string
}

// ThresholdTable maps levels to score requirements. It is immutable and
// shared by every record. Entries are kept in ascending level order.
type ThresholdTable struct {
	entries []Threshold
}

// DefaultThresholds returns the standard levelling path.
func DefaultThresholds() ThresholdTable {
	t, _ := NewThresholdTable([]Threshold{
		{Level: 5, Score: 100, Feature: FeatureExplore},
		{Level: 10, Score: 250, Feature: FeaturePersonaSkill},
		{Level: 20, Score: 500, Feature: FeatureUseName},
		{Level: 50, Score: 2500, Feature: FeatureRename},
		{Level: 100, Score: 10000, Feature: FeatureLegacyProject},
	})
	return t
}

// NewThresholdTable validates entries and returns them as a table sorted by
// level. Levels must be > 1 and unique.
func NewThresholdTable(entries []Threshold) (ThresholdTable, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Threshold) int { return a.Level - b.Level })

	var errs []error
	for i, e := range sorted {
		if e.Level <= 1 {
			errs = append(errs, fmt.Errorf("threshold level %d must be greater than 1", e.Level))
		}
		if e.Score < 0 {
			errs = append(errs, fmt.Errorf("threshold level %d: score %d must not be negative", e.Level, e.Score))
		}
		if i > 0 && sorted[i-1].Level == e.Level {
			errs = append(errs, fmt.Errorf("threshold level %d is duplicated", e.Level))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return ThresholdTable{}, fmt.Errorf("progression: %w", err)
	}
	return ThresholdTable{entries: sorted}, nil
}

// Entries returns a copy of the table in ascending level order.
func (t ThresholdTable) Entries() []Threshold {
	return slices.Clone(t.entries)
}

// Next returns the first threshold whose level exceeds level.
func (t ThresholdTable) Next(level int) (Threshold, bool) {
	for _, e := range t.entries {
		if e.Level > level {
			return e, true
		}
	}
	return Threshold{}, false
}

// LevelOf returns the level that unlocks feature.
func (t ThresholdTable) LevelOf(feature string) (int, bool) {
	for _, e := range t.entries {
		if e.Feature == feature {
			return e.Level, true
		}
	}
	return 0, false
}

// LevelFor returns the highest level whose score requirement is satisfied by
// score, or 1 when none is.
func (t ThresholdTable) LevelFor(score int) int {
	level := 1
	for _, e := range t.entries {
		if score >= e.Score && e.Level > level {
			level = e.Level
		}
	}
	return level
}

// UnlockEvent describes a level-up produced by [Resolve].
type UnlockEvent struct {
	// Level is the newly reached level.
	Level int

	// Feature is the tag associated with Level.
	Feature string

	// Flavor is persona-specific narrative text for Level. Empty means the
	// level has no bespoke text and a generic level-up notice applies.
	Flavor string
}

// FlavorFunc looks up persona flavor text for a level.
type FlavorFunc func(level int) string

// Resolve lifts r to the highest level in table that its score satisfies
// and that exceeds its current level. Several levels may be skipped in one
// call; the highest eligible level wins. The feature tags of that level and
// of every level below it are granted if absent. No event is produced when
// no strictly greater level is met.
func Resolve(r *Record, table ThresholdTable, flavor FlavorFunc) (UnlockEvent, bool) {
	best := -1
	for i, e := range table.entries {
		if r.Score >= e.Score && e.Level > r.Level {
			if best == -1 || e.Level > table.entries[best].Level {
				best = i
			}
		}
	}
	if best == -1 {
		return UnlockEvent{}, false
	}

	unlocked := table.entries[best]
	r.Level = unlocked.Level
	for _, e := range table.entries {
		if e.Level <= unlocked.Level {
			r.grantFeature(e.Feature)
		}
	}

	ev := UnlockEvent{Level: unlocked.Level, Feature: unlocked.Feature}
	if flavor != nil {
		ev.Flavor = flavor(unlocked.Level)
	}
	return ev, true
}
