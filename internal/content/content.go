// Package content holds the immutable persona and adventure definitions that
// drive the hub.
//
// A [Store] is built once at startup from a YAML (or JSON) document by
// [Load] or [LoadFile]. Everything is validated up front; a malformed
// document fails the load instead of surfacing mid-session. After
// construction the store is read-only and safe for concurrent use.
package content

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/MrWong99/companionhub/internal/mood"
	"github.com/MrWong99/companionhub/internal/narrative"
)

var (
	// ErrUnknownPersona is returned when a persona key is not defined.
	ErrUnknownPersona = errors.New("content: unknown persona")

	// ErrUnknownAdventure is returned when an adventure id is not defined.
	ErrUnknownAdventure = errors.New("content: unknown adventure")
)

// DefaultBondState applies while the score is below every bond threshold.
var DefaultBondState = BondState{Name: "Acquaintance", Tone: []string{"polite"}}

// BondState is a named relationship stage with tone descriptors.
type BondState struct {
	Threshold int
	Name      string
	Tone      []string
}

// Skill is a persona-specific command unlocked by the persona skill feature.
type Skill struct {
	// Command is the tool-facing name, e.g. "dream".
	Command string

	// Usage is shown in the status ability list.
	Usage string

	// Prompt is the assembled prompt template. {name} and {input} are
	// substituted.
	Prompt string
}

// Render fills the skill prompt template.
func (s Skill) Render(companionName, input string) string {
	return strings.NewReplacer("{name}", companionName, "{input}", input).Replace(s.Prompt)
}

// Persona is an immutable companion definition.
type Persona struct {
	Key         string
	Name        string
	Icon        string
	Description string
	Traits      []string
	Interests   []string

	// BondStates is sorted by ascending Threshold.
	BondStates []BondState

	artwork       map[mood.Tag]string
	levelFlavor   map[int]string
	featureLabels map[string]string

	Skill *Skill
}

// BondState returns the highest bond state whose threshold is at most score,
// or [DefaultBondState].
func (p *Persona) BondState(score int) BondState {
	state := DefaultBondState
	for _, b := range p.BondStates {
		if score >= b.Threshold {
			state = b
		}
	}
	return state
}

// Artwork returns the artwork URL for tag.
func (p *Persona) Artwork(tag mood.Tag) string {
	return p.artwork[tag]
}

// Flavor returns the level-up flavor text for level, voiced as
// companionName. It returns "" when the level has no bespoke text.
func (p *Persona) Flavor(level int, companionName string) string {
	text, ok := p.levelFlavor[level]
	if !ok {
		return ""
	}
	return strings.ReplaceAll(text, "{name}", companionName)
}

// FeatureLabel returns the ability label shown for an unlocked feature.
func (p *Persona) FeatureLabel(feature string) (string, bool) {
	label, ok := p.featureLabels[feature]
	return label, ok && label != ""
}

// Interested reports whether text mentions any of the persona's interests.
func (p *Persona) Interested(text string) bool {
	msg := strings.ToLower(text)
	for _, interest := range p.Interests {
		if interest != "" && strings.Contains(msg, strings.ToLower(interest)) {
			return true
		}
	}
	return false
}

// Adventure is an immutable playable scene graph with its lobby metadata.
type Adventure struct {
	ID        string
	Title     string
	Icon      string
	MenuLabel string

	// Finish is the headline of the terminal summary.
	Finish string

	Graph *narrative.Graph
}

// Store is the read-only content document.
type Store struct {
	personas   map[string]*Persona
	adventures map[string]*Adventure
}

// NormalizeKey lowercases and trims a persona key or adventure id.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Persona returns the persona for key. Keys are matched case-insensitively.
func (s *Store) Persona(key string) (*Persona, error) {
	p, ok := s.personas[NormalizeKey(key)]
	if !ok {
		return nil, ErrUnknownPersona
	}
	return p, nil
}

// HasPersona reports whether key names a persona.
func (s *Store) HasPersona(key string) bool {
	_, ok := s.personas[NormalizeKey(key)]
	return ok
}

// Personas returns all personas ordered by key.
func (s *Store) Personas() []*Persona {
	keys := slices.Sorted(maps.Keys(s.personas))
	out := make([]*Persona, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.personas[k])
	}
	return out
}

// Adventure returns the adventure for id.
func (s *Store) Adventure(id string) (*Adventure, error) {
	a, ok := s.adventures[NormalizeKey(id)]
	if !ok {
		return nil, ErrUnknownAdventure
	}
	return a, nil
}

// Adventures returns all adventures ordered by id.
func (s *Store) Adventures() []*Adventure {
	ids := slices.Sorted(maps.Keys(s.adventures))
	out := make([]*Adventure, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.adventures[id])
	}
	return out
}
