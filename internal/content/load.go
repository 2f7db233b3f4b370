package content

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/companionhub/internal/mood"
	"github.com/MrWong99/companionhub/internal/narrative"
	"github.com/MrWong99/companionhub/internal/progression"
)

// Document is the on-disk layout of the content file.
//
// Example:
//
//	level_flavor:
//	  5: "Ask me to `/explore` a place!"
//	personas:
//	  kai:
//	    name: Kai
//	    traits: [playful, loyal]
//	    artwork:
//	      neutral: https://example.com/kai.png
//	adventures:
//	  f1:
//	    title: Monza Grand Prix
//	    steps: [...]
type Document struct {
	// LevelFlavor holds flavor text shared by every persona, keyed by level.
	LevelFlavor map[int]string `yaml:"level_flavor"`

	// FeatureLabels holds ability labels shared by every persona.
	FeatureLabels map[string]string `yaml:"feature_labels"`

	Personas   map[string]PersonaDoc   `yaml:"personas" validate:"required,min=1,dive,keys,required,endkeys"`
	Adventures map[string]AdventureDoc `yaml:"adventures" validate:"dive,keys,required,endkeys"`
}

// PersonaDoc is the document form of a [Persona].
type PersonaDoc struct {
	Name          string            `yaml:"name" validate:"required"`
	Icon          string            `yaml:"icon"`
	Description   string            `yaml:"description"`
	Traits        []string          `yaml:"traits" validate:"required,min=1,dive,required"`
	Interests     []string          `yaml:"interests" validate:"dive,required"`
	BondStates    []BondStateDoc    `yaml:"bond_states" validate:"dive"`
	Artwork       map[string]string `yaml:"artwork" validate:"required,dive,keys,oneof=comfort affection amusement curiosity neutral,endkeys,url"`
	LevelFlavor   map[int]string    `yaml:"level_flavor"`
	FeatureLabels map[string]string `yaml:"feature_labels"`
	Skill         *SkillDoc         `yaml:"skill" validate:"omitempty"`
}

// BondStateDoc is the document form of a [BondState].
type BondStateDoc struct {
	Threshold int      `yaml:"threshold" validate:"min=0"`
	Name      string   `yaml:"name" validate:"required"`
	Tone      []string `yaml:"tone" validate:"required,min=1,dive,required"`
}

// SkillDoc is the document form of a [Skill].
type SkillDoc struct {
	Command string `yaml:"command" validate:"required"`
	Usage   string `yaml:"usage"`
	Prompt  string `yaml:"prompt" validate:"required"`
}

// AdventureDoc is the document form of an [Adventure].
type AdventureDoc struct {
	Title     string    `yaml:"title" validate:"required"`
	Icon      string    `yaml:"icon"`
	MenuLabel string    `yaml:"menu_label"`
	Retry     string    `yaml:"retry"`
	Finish    string    `yaml:"finish"`
	Steps     []StepDoc `yaml:"steps" validate:"required,min=1,dive"`
}

// StepDoc is one step of an [AdventureDoc].
type StepDoc struct {
	Text    string      `yaml:"text" validate:"required"`
	Artwork string      `yaml:"artwork" validate:"omitempty,url"`
	Choices []ChoiceDoc `yaml:"choices" validate:"required,min=1,dive"`
}

// ChoiceDoc is one labelled choice of a [StepDoc].
type ChoiceDoc struct {
	Label    string     `yaml:"label" validate:"required"`
	Text     string     `yaml:"text"`
	Feedback string     `yaml:"feedback" validate:"required"`
	Artwork  string     `yaml:"artwork" validate:"omitempty,url"`
	Next     *int       `yaml:"next" validate:"omitempty,min=0"`
	Result   *ResultDoc `yaml:"result" validate:"required_without=Next,excluded_with=Next"`
}

// ResultDoc is the terminal outcome of a [ChoiceDoc].
type ResultDoc struct {
	RatingDelta int `yaml:"rating_delta"`
}

const (
	defaultRetry  = "That's not a valid choice right now."
	defaultFinish = "Finished!"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadFile reads and builds the content store at path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("content: load %q: %w", path, err)
	}
	return s, nil
}

// Load decodes a content document from r, validates it and builds a
// [Store]. JSON input is accepted as well since it is valid YAML.
func Load(r io.Reader) (*Store, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("content: decode: %w", err)
	}
	return Build(doc)
}

// Build validates doc and converts it into a [Store].
func Build(doc Document) (*Store, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	s := &Store{
		personas:   make(map[string]*Persona, len(doc.Personas)),
		adventures: make(map[string]*Adventure, len(doc.Adventures)),
	}

	var errs []error
	for key, pd := range doc.Personas {
		p := buildPersona(NormalizeKey(key), pd, doc)
		if _, dup := s.personas[p.Key]; dup {
			errs = append(errs, fmt.Errorf("persona %q: duplicate key", key))
			continue
		}
		s.personas[p.Key] = p
	}
	for id, ad := range doc.Adventures {
		a := buildAdventure(NormalizeKey(id), ad)
		if err := a.Graph.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := s.adventures[a.ID]; dup {
			errs = append(errs, fmt.Errorf("adventure %q: duplicate id", id))
			continue
		}
		s.adventures[a.ID] = a
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	return s, nil
}

// ReservedCommands are the built-in tool names a persona skill command may
// not shadow.
var ReservedCommands = []string{
	"validate", "start", "choose", "chat", "explore", "rename", "legacy",
	"debug_levelup", "lobby", "leaderboard", "play", "action", "endgame",
}

func validateDocument(doc Document) error {
	errs := structErrors("", doc)

	for _, key := range slices.Sorted(maps.Keys(doc.Personas)) {
		pd := doc.Personas[key]
		prefix := "personas." + key
		errs = append(errs, structErrors(prefix, pd)...)
		for _, tag := range mood.All() {
			if _, ok := pd.Artwork[string(tag)]; !ok {
				errs = append(errs, fmt.Errorf("%s.artwork: missing %q", prefix, tag))
			}
		}
		if pd.Skill != nil && slices.Contains(ReservedCommands, NormalizeKey(pd.Skill.Command)) {
			errs = append(errs, fmt.Errorf("%s.skill.command: %q is reserved", prefix, pd.Skill.Command))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(doc.Adventures)) {
		errs = append(errs, structErrors("adventures."+id, doc.Adventures[id])...)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("content: invalid document: %w", err)
	}
	return nil
}

// structErrors validates v and reports each failed field under prefix.
func structErrors(prefix string, v any) []error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{fmt.Errorf("validate: %w", err)}
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(prefix, fe))
	}
	return errs
}

func fieldError(prefix string, fe validator.FieldError) error {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	if prefix != "" {
		field = prefix + "." + field
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %q (%s)", field, fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s: failed %q", field, fe.Tag())
}

func buildPersona(key string, pd PersonaDoc, doc Document) *Persona {
	p := &Persona{
		Key:           key,
		Name:          pd.Name,
		Icon:          pd.Icon,
		Description:   pd.Description,
		Traits:        slices.Clone(pd.Traits),
		Interests:     slices.Clone(pd.Interests),
		artwork:       make(map[mood.Tag]string, len(pd.Artwork)),
		levelFlavor:   make(map[int]string, len(doc.LevelFlavor)+len(pd.LevelFlavor)),
		featureLabels: make(map[string]string, len(doc.FeatureLabels)+len(pd.FeatureLabels)),
	}
	for _, b := range pd.BondStates {
		p.BondStates = append(p.BondStates, BondState{Threshold: b.Threshold, Name: b.Name, Tone: slices.Clone(b.Tone)})
	}
	slices.SortStableFunc(p.BondStates, func(a, b BondState) int { return a.Threshold - b.Threshold })

	for tag, url := range pd.Artwork {
		p.artwork[mood.Tag(tag)] = url
	}
	maps.Copy(p.levelFlavor, doc.LevelFlavor)
	maps.Copy(p.levelFlavor, pd.LevelFlavor)
	maps.Copy(p.featureLabels, doc.FeatureLabels)
	maps.Copy(p.featureLabels, pd.FeatureLabels)

	if pd.Skill != nil {
		p.Skill = &Skill{Command: NormalizeKey(pd.Skill.Command), Usage: pd.Skill.Usage, Prompt: pd.Skill.Prompt}
		if p.Skill.Usage != "" {
			if _, ok := p.featureLabels[progression.FeaturePersonaSkill]; !ok {
				p.featureLabels[progression.FeaturePersonaSkill] = p.Skill.Usage
			}
		}
	}
	return p
}

func buildAdventure(id string, ad AdventureDoc) *Adventure {
	g := &narrative.Graph{
		ID:    id,
		Title: ad.Title,
		Kind:  progression.SessionAdventure,
		Retry: cmp.Or(ad.Retry, defaultRetry),
		Steps: make([]narrative.Step, 0, len(ad.Steps)),
	}
	for _, sd := range ad.Steps {
		step := narrative.Step{Text: sd.Text, Artwork: sd.Artwork}
		for _, cd := range sd.Choices {
			c := narrative.Choice{
				Label:    cd.Label,
				Text:     cd.Text,
				Match:    narrative.MatchLabel,
				Feedback: cd.Feedback,
				Artwork:  cd.Artwork,
			}
			if cd.Next != nil {
				next := *cd.Next
				c.Next = &next
			}
			if cd.Result != nil {
				c.Result = &narrative.Result{RatingDelta: cd.Result.RatingDelta}
			}
			step.Choices = append(step.Choices, c)
		}
		g.Steps = append(g.Steps, step)
	}
	return &Adventure{
		ID:        id,
		Title:     ad.Title,
		Icon:      ad.Icon,
		MenuLabel: cmp.Or(ad.MenuLabel, ad.Title),
		Finish:    cmp.Or(ad.Finish, defaultFinish),
		Graph:     g,
	}
}
