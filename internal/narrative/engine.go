package narrative

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/MrWong99/companionhub/internal/progression"
)

// ChoicesCommand lists the current step's labelled choices without
// advancing.
const ChoicesCommand = "choices"

// auxMoves counts accepted choices in an adventure session.
const auxMoves = "moves"

var (
	// ErrSessionActive is returned by [Enter] when the record already has a
	// flow in progress.
	ErrSessionActive = errors.New("narrative: a session is already active")

	// ErrGraphMismatch is returned by [Advance] when the record's session
	// walks a different graph than the one supplied.
	ErrGraphMismatch = errors.New("narrative: session belongs to another graph")

	// ErrStepOutOfRange is returned when the session points past the end
	// of its graph.
	ErrStepOutOfRange = errors.New("narrative: session step out of range")
)

// Outcome classifies the result of [Advance].
type Outcome int

const (
	// OutcomeNoSession means the record has no active flow.
	OutcomeNoSession Outcome = iota

	// OutcomeInvalid means the input matched no choice. Nothing changed.
	OutcomeInvalid

	// OutcomeChoices means the player asked for the choice list. Nothing
	// changed.
	OutcomeChoices

	// OutcomeTransition means the session moved to another step.
	OutcomeTransition

	// OutcomeTerminal means the flow ended and the session was cleared.
	OutcomeTerminal
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoSession:
		return "no_session"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeChoices:
		return "choices"
	case OutcomeTransition:
		return "transition"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Presentation is what the player sees on arriving at a step.
type Presentation struct {
	Index   int
	Text    string
	Artwork string

	// Prompt is set for steps without labelled choices.
	Prompt string

	// Choices lists the labelled choices, if any.
	Choices []Choice
}

func present(g *Graph, idx int) Presentation {
	step := g.Steps[idx]
	p := Presentation{Index: idx, Text: step.Text, Artwork: step.Artwork, Prompt: step.Prompt}
	if step.Labelled() {
		p.Choices = step.Choices
	}
	return p
}

// StepResult is the outcome of a single [Advance] call.
type StepResult struct {
	Outcome Outcome

	// Retry is the graph's retry guidance (OutcomeInvalid).
	Retry string

	// Choices lists the current step's choices (OutcomeChoices).
	Choices []Choice

	// Chosen is the matched choice (OutcomeTransition, OutcomeTerminal).
	Chosen Choice

	// Next is the new step (OutcomeTransition).
	Next Presentation

	// Result, Rating and Answers describe the finished flow
	// (OutcomeTerminal). Rating is the record's rating after the delta.
	Result  Result
	Rating  int
	Answers map[string]string
	Moves   int
}

// Enter starts a session on g at step 0 and returns its presentation.
func Enter(r *progression.Record, g *Graph) (Presentation, error) {
	if r.Session.Active() {
		return Presentation{}, ErrSessionActive
	}
	if len(g.Steps) == 0 {
		return Presentation{}, ErrStepOutOfRange
	}
	s := progression.Session{Kind: g.Kind, GraphID: g.ID}
	switch g.Kind {
	case progression.SessionLegacy:
		s.Answers = make(map[string]string)
	case progression.SessionAdventure:
		s.Aux = map[string]int{auxMoves: 0}
	}
	r.Session = s
	return present(g, 0), nil
}

// Current returns the presentation of the session's current step.
func Current(r *progression.Record, g *Graph) (Presentation, error) {
	if err := check(r, g); err != nil {
		return Presentation{}, err
	}
	return present(g, r.Session.Step), nil
}

func check(r *progression.Record, g *Graph) error {
	if r.Session.GraphID != g.ID || r.Session.Kind != g.Kind {
		return fmt.Errorf("%w: %q is not %q", ErrGraphMismatch, r.Session.GraphID, g.ID)
	}
	if r.Session.Step < 0 || r.Session.Step >= len(g.Steps) {
		return fmt.Errorf("%w: step %d of %q", ErrStepOutOfRange, r.Session.Step, g.ID)
	}
	return nil
}

// Advance resolves input against the current step of r's session.
//
// Invalid input and the choices command leave r untouched. A transition
// moves the step pointer. A terminal choice applies its rating delta and
// clears the session. Errors indicate content integrity problems and also
// leave r untouched.
func Advance(r *progression.Record, g *Graph, input string) (StepResult, error) {
	if !r.Session.Active() {
		return StepResult{Outcome: OutcomeNoSession}, nil
	}
	if err := check(r, g); err != nil {
		return StepResult{}, err
	}

	step := g.Steps[r.Session.Step]
	if step.Labelled() && strings.EqualFold(strings.TrimSpace(input), ChoicesCommand) {
		return StepResult{Outcome: OutcomeChoices, Choices: step.Choices}, nil
	}

	chosen, ok := step.choose(input)
	if !ok {
		return StepResult{Outcome: OutcomeInvalid, Retry: g.Retry}, nil
	}

	if chosen.AnswerKey != "" {
		if r.Session.Answers == nil {
			r.Session.Answers = make(map[string]string)
		}
		r.Session.Answers[chosen.AnswerKey] = strings.TrimSpace(input)
	}
	if r.Session.Aux != nil {
		r.Session.Aux[auxMoves]++
	}

	if !chosen.Terminal() {
		r.Session.Step = *chosen.Next
		return StepResult{
			Outcome: OutcomeTransition,
			Chosen:  chosen,
			Next:    present(g, r.Session.Step),
		}, nil
	}

	res := StepResult{
		Outcome: OutcomeTerminal,
		Chosen:  chosen,
		Result:  *chosen.Result,
		Answers: maps.Clone(r.Session.Answers),
		Moves:   r.Session.Aux[auxMoves],
	}
	r.ApplyRatingDelta(chosen.Result.RatingDelta)
	r.ClearSession()
	res.Rating = r.Rating
	return res, nil
}
