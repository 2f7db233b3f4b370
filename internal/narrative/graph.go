// Package narrative implements the step-and-choice engine shared by the
// legacy project dialogue and the branching adventures.
//
// A [Graph] is immutable content: an ordered list of steps, each offering
// choices that either move to another step or end the flow with a
// [Result]. [Enter] anchors a record's session at step 0 and [Advance]
// moves it forward one input at a time. The engine touches only the
// record's session and rating. Rendering is left to the caller.
package narrative

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/companionhub/internal/progression"
)

// MatchMode selects how player input is compared against a choice.
type MatchMode int

const (
	// MatchLabel matches the input against the choice label, ignoring case
	// and surrounding whitespace.
	MatchLabel MatchMode = iota

	// MatchKeyword matches when the input contains the label, ignoring case.
	MatchKeyword

	// MatchFreeText accepts any non-blank input.
	MatchFreeText
)

// Result is the outcome of a terminal choice.
type Result struct {
	// RatingDelta is added to the record's competitive rating.
	RatingDelta int
}

// Choice is one way out of a [Step].
type Choice struct {
	Label string
	Text  string
	Match MatchMode

	// AnswerKey, when set, stores the raw input under this key in the
	// session answers.
	AnswerKey string

	Feedback string
	Artwork  string

	// Exactly one of Next and Result is set.
	Next   *int
	Result *Result
}

// Terminal reports whether the choice ends the flow.
func (c Choice) Terminal() bool {
	return c.Result != nil
}

func (c Choice) matches(input string) bool {
	switch c.Match {
	case MatchFreeText:
		return strings.TrimSpace(input) != ""
	case MatchKeyword:
		return strings.Contains(strings.ToLower(input), strings.ToLower(c.Label))
	default:
		return strings.EqualFold(strings.TrimSpace(input), c.Label)
	}
}

// Step is a single node of a [Graph].
type Step struct {
	Text    string
	Artwork string

	// Prompt is shown instead of a choice list when the step has no
	// labelled choices.
	Prompt string

	Choices []Choice
}

// Labelled reports whether the step offers labelled choices that can be
// listed to the player.
func (s Step) Labelled() bool {
	for _, c := range s.Choices {
		if c.Match == MatchLabel {
			return true
		}
	}
	return false
}

// Labels returns the labels of every choice in declaration order.
func (s Step) Labels() []string {
	out := make([]string, 0, len(s.Choices))
	for _, c := range s.Choices {
		out = append(out, c.Label)
	}
	return out
}

func (s Step) choose(input string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.matches(input) {
			return c, true
		}
	}
	return Choice{}, false
}

// Graph is an immutable scene graph.
type Graph struct {
	ID    string
	Title string
	Kind  progression.SessionKind

	// Retry is the guidance returned when input matches no choice.
	Retry string

	Steps []Step
}

// Validate checks structural invariants: at least one step, every step has
// choices, labels are unique per step ignoring case, every choice has
// exactly one of Next or Result, and every Next is a valid step index.
func (g *Graph) Validate() error {
	if len(g.Steps) == 0 {
		return fmt.Errorf("narrative: graph %q has no steps", g.ID)
	}
	if g.Kind == progression.SessionNone {
		return fmt.Errorf("narrative: graph %q has no session kind", g.ID)
	}

	var errs []error
	for i, step := range g.Steps {
		if len(step.Choices) == 0 {
			errs = append(errs, fmt.Errorf("step %d has no choices", i))
		}
		seen := make(map[string]bool, len(step.Choices))
		for j, c := range step.Choices {
			key := strings.ToLower(strings.TrimSpace(c.Label))
			if key == "" && c.Match != MatchFreeText {
				errs = append(errs, fmt.Errorf("step %d choice %d: label is required", i, j))
			}
			if key != "" && seen[key] {
				errs = append(errs, fmt.Errorf("step %d: duplicate choice label %q", i, c.Label))
			}
			seen[key] = true

			switch {
			case c.Next == nil && c.Result == nil:
				errs = append(errs, fmt.Errorf("step %d choice %q: needs a next step or a result", i, c.Label))
			case c.Next != nil && c.Result != nil:
				errs = append(errs, fmt.Errorf("step %d choice %q: next step and result are mutually exclusive", i, c.Label))
			case c.Next != nil && (*c.Next < 0 || *c.Next >= len(g.Steps)):
				errs = append(errs, fmt.Errorf("step %d choice %q: next step %d out of range", i, c.Label, *c.Next))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("narrative: graph %q: %w", g.ID, err)
	}
	return nil
}

// LegacyProjectID identifies the built-in legacy project graph.
const LegacyProjectID = "legacy_project"

// LegacyMemoryKey is the answer key holding the player's most important
// memory.
const LegacyMemoryKey = "memory"

// LegacyProject returns the two-step legacy dialogue: a confirmation
// followed by a free-text question.
func LegacyProject() *Graph {
	next := 1
	return &Graph{
		ID:    LegacyProjectID,
		Title: "Our Legacy",
		Kind:  progression.SessionLegacy,
		Retry: "I'm not sure what you mean. Please answer the question to continue our project.",
		Steps: []Step{
			{
				Text:   "Would you like to create our 'Legacy' together?",
				Prompt: "Type `/legacy yes` to begin.",
				Choices: []Choice{{
					Label:    "yes",
					Match:    MatchKeyword,
					Feedback: "Wonderful!",
					Next:     &next,
				}},
			},
			{
				Text:   "First, what was our single most important memory together?",
				Prompt: "Answer with `/legacy [your memory]`.",
				Choices: []Choice{{
					Match:     MatchFreeText,
					AnswerKey: LegacyMemoryKey,
					Result:    &Result{},
				}},
			},
		},
	}
}
