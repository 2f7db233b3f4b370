package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/companionhub/internal/content"
	"github.com/MrWong99/companionhub/internal/mood"
	"github.com/MrWong99/companionhub/internal/narrative"
	"github.com/MrWong99/companionhub/internal/observe"
	"github.com/MrWong99/companionhub/internal/progression"
)

// Bond score awards.
const (
	chatBaseDelta     = 5
	chatInterestBonus = 15
	chatReturnBonus   = 25
	exploreDelta      = 50
)

const maxCompanionName = 32

const (
	msgNoCompanion   = "Please type `/start` to choose a companion first."
	msgCreateFirst   = "Create a companion first with /start."
	msgHasCompanion  = "You already have a companion!"
	msgInvalidPerson = "Not a valid persona."
	msgLegacyBusy    = "We're creating our Legacy! Please use `/legacy [your answer]` to continue."
	msgFinishGame    = "Finish your current game first, or type `/endgame` to quit."
	msgMaxLevel      = "You are already at the max level!"
)

func displayName(r *progression.Record, p *content.Persona) string {
	return cmp.Or(r.CompanionName, p.Name)
}

// persona resolves the record's companion or aborts with guidance.
func (s *Service) persona(r *progression.Record, missing string) (*content.Persona, error) {
	if !r.HasCompanion() {
		return nil, guidance(missing)
	}
	p, err := s.content.Persona(r.PersonaKey)
	if err != nil {
		return nil, guidance("Your companion is no longer available. Type `/start` to choose again.")
	}
	return p, nil
}

// gate aborts with guidance unless feature is unlocked.
func (s *Service) gate(r *progression.Record, feature, goal string) error {
	if r.HasFeature(feature) {
		return nil
	}
	return guidance(s.gateMessage(feature, goal))
}

func (s *Service) gateMessage(feature, goal string) string {
	level, ok := s.thresholds.LevelOf(feature)
	if !ok {
		return "That ability is not available."
	}
	return fmt.Sprintf("You must reach Bond Level %d to %s.", level, goal)
}

// levelUp resolves pending unlocks and renders the notice. The event is
// returned so that it can be announced after the update commits.
func (s *Service) levelUp(r *progression.Record, p *content.Persona) (string, *progression.UnlockEvent) {
	name := displayName(r, p)
	ev, ok := progression.Resolve(r, s.thresholds, func(level int) string {
		return p.Flavor(level, name)
	})
	if !ok {
		return "", nil
	}
	return unlockNotice(ev, name), &ev
}

func unlockNotice(ev progression.UnlockEvent, name string) string {
	if ev.Flavor != "" {
		return fmt.Sprintf("\n\n**A thought from %s:**\n*%s*", name, ev.Flavor)
	}
	return fmt.Sprintf("\n\n**LEVEL UP!** Your bond with %s is now Level %d!", name, ev.Level)
}

func (s *Service) announce(ctx context.Context, userID string, ev *progression.UnlockEvent) {
	if ev == nil {
		return
	}
	s.metrics.RecordUnlock(ctx, ev.Feature)
	observe.Logger(ctx).Info("bond level up", "user", userID, "level", ev.Level, "feature", ev.Feature)
}

// Start shows the companion status, or the persona menu when the user has
// no companion yet. It never creates a record.
func (s *Service) Start(ctx context.Context, userID string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	rec, err := s.ledger.Lookup(ctx, userID)
	if err != nil && !errors.Is(err, progression.ErrNotFound) {
		return s.settle(ctx, "start", err, "")
	}
	if err == nil && rec.HasCompanion() {
		if p, perr := s.content.Persona(rec.PersonaKey); perr == nil {
			return []Block{TextBlock(status(&rec, p))}, nil
		}
	}
	return []Block{TextBlock(s.personaMenu())}, nil
}

func status(r *progression.Record, p *content.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are connected with **%s %s**.\nBond Score: %d | Level: %d",
		displayName(r, p), p.Icon, r.Score, r.Level)

	var labels []string
	for _, f := range r.Features {
		if label, ok := p.FeatureLabel(f); ok {
			labels = append(labels, label)
		}
	}
	if len(labels) > 0 {
		b.WriteString("\n\n*Abilities Unlocked:*\n")
		b.WriteString(strings.Join(labels, "\n"))
	}
	return b.String()
}

func (s *Service) personaMenu() string {
	var b strings.Builder
	b.WriteString("**Choose your companion:**\n")
	for _, p := range s.content.Personas() {
		fmt.Fprintf(&b, "\n**%s %s**\n_%s_\n", p.Name, p.Icon, p.Description)
	}
	b.WriteString("\nType `/choose [name]`.")
	return b.String()
}

// Choose binds a persona to the user, creating the record on first use.
func (s *Service) Choose(ctx context.Context, userID, name string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if rec, err := s.ledger.Lookup(ctx, userID); err == nil && rec.HasCompanion() {
		return []Block{TextBlock(msgHasCompanion)}, nil
	}

	key := content.NormalizeKey(name)
	if key == "" {
		return []Block{TextBlock(msgInvalidPerson)}, nil
	}
	_, bound, err := s.ledger.GetOrCreate(ctx, userID, key)
	switch {
	case errors.Is(err, progression.ErrInvalidPersona):
		msg := msgInvalidPerson
		if suggestion, ok := s.content.SuggestPersona(name); ok {
			if p, perr := s.content.Persona(suggestion); perr == nil {
				msg += fmt.Sprintf(" Did you mean **%s**? Type `/choose %s`.", p.Name, suggestion)
			}
		}
		return []Block{TextBlock(msg)}, nil
	case err != nil:
		return s.settle(ctx, "choose", err, "")
	case !bound:
		return []Block{TextBlock(msgHasCompanion)}, nil
	}

	p, err := s.content.Persona(key)
	if err != nil {
		return s.settle(ctx, "choose", err, "")
	}
	observe.Logger(ctx).Info("companion chosen", "user", userID, "persona", p.Key)
	return []Block{TextBlock(fmt.Sprintf(
		"You have chosen **%s**! Start talking with `/chat [your message]` to build your bond.", p.Name))}, nil
}

// Chat grows the bond and assembles the companion's in-character prompt,
// headed by mood artwork when it can be fetched.
func (s *Service) Chat(ctx context.Context, userID, message string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var (
		text   string
		artURL string
		ev     *progression.UnlockEvent
	)
	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		p, err := s.persona(r, msgNoCompanion)
		if err != nil {
			return err
		}
		if r.Session.Kind == progression.SessionLegacy {
			return guidance(msgLegacyBusy)
		}
		if strings.TrimSpace(message) == "" {
			return guidance("Say something with `/chat [your message]`.")
		}

		delta := chatBaseDelta
		if p.Interested(message) {
			delta += chatInterestBonus
		}
		if r.TouchActivity(s.now(), s.bonusWindow) {
			delta += chatReturnBonus
		}
		r.ApplyScoreDelta(delta)

		var notice string
		notice, ev = s.levelUp(r, p)

		name := displayName(r, p)
		state := p.BondState(r.Score)
		prompt := fmt.Sprintf("SYSTEM PROMPT: You are %s, an AI Companion. Your core traits are: %s. "+
			"Your current relationship state is '%s', so your tone should be %s.",
			name, strings.Join(p.Traits, ", "), state.Name, strings.Join(state.Tone, ", "))
		if r.HasFeature(progression.FeatureUseName) {
			prompt += " You are close enough now to address the user by their name."
		}
		prompt += fmt.Sprintf(" Respond to the user's message in character. User message: \"%s\"", message)

		r.AppendMemory("User: "+message, s.memoryCapacity)
		artURL = p.Artwork(mood.Classify(message, name))
		text = prompt + notice
		return nil
	})
	if err != nil {
		return s.settle(ctx, "chat", err, msgNoCompanion)
	}
	s.announce(ctx, userID, ev)

	return captioned(s.fetch(ctx, artURL)[0], text), nil
}

// Explore spends the explore ability: the bond grows and a storyteller
// prompt is assembled around topic.
func (s *Service) Explore(ctx context.Context, userID, topic string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	locked := s.gateMessage(progression.FeatureExplore, "unlock this ability")

	var (
		text string
		ev   *progression.UnlockEvent
	)
	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		if err := s.gate(r, progression.FeatureExplore, "unlock this ability"); err != nil {
			return err
		}
		p, err := s.persona(r, locked)
		if err != nil {
			return err
		}
		topic = strings.TrimSpace(topic)
		if topic == "" {
			return guidance("Tell me where to go with `/explore [idea]`.")
		}

		r.ApplyScoreDelta(exploreDelta)
		var notice string
		notice, ev = s.levelUp(r, p)
		text = fmt.Sprintf("SYSTEM PROMPT: You are a creative AI Storyteller. Lead the user on a short, "+
			"exciting, self-contained adventure with their AI companion, %s. The theme is: '%s'. "+
			"Describe the scene, an action they take together, and the successful outcome. "+
			"Keep it to one or two paragraphs.", displayName(r, p), topic) + notice
		return nil
	})
	if err != nil {
		return s.settle(ctx, "explore", err, locked)
	}
	s.announce(ctx, userID, ev)
	return []Block{TextBlock(text)}, nil
}

// Skill runs the companion's persona-specific ability (for example "dream").
func (s *Service) Skill(ctx context.Context, userID, command, input string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	locked := s.gateMessage(progression.FeaturePersonaSkill, "unlock this ability")

	var text string
	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		if err := s.gate(r, progression.FeaturePersonaSkill, "unlock this ability"); err != nil {
			return err
		}
		p, err := s.persona(r, locked)
		if err != nil {
			return err
		}
		name := displayName(r, p)
		if p.Skill == nil || p.Skill.Command != content.NormalizeKey(command) {
			return guidance(fmt.Sprintf("%s doesn't know that ability.", name))
		}
		input = strings.TrimSpace(input)
		if input == "" {
			return guidance("Tell me more with " + p.Skill.Usage + ".")
		}
		text = p.Skill.Render(name, input)
		return nil
	})
	if err != nil {
		return s.settle(ctx, "skill", err, locked)
	}
	return []Block{TextBlock(text)}, nil
}

// Rename gives the companion a new display name.
func (s *Service) Rename(ctx context.Context, userID, newName string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	locked := s.gateMessage(progression.FeatureRename, "unlock this ability")
	newName = strings.TrimSpace(newName)

	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		if err := s.gate(r, progression.FeatureRename, "unlock this ability"); err != nil {
			return err
		}
		if _, err := s.persona(r, locked); err != nil {
			return err
		}
		switch {
		case newName == "":
			return guidance("Give me a new name with `/rename [new_name]`.")
		case utf8.RuneCountInString(newName) > maxCompanionName:
			return guidance(fmt.Sprintf("That name is a little long. Please keep it under %d characters.", maxCompanionName+1))
		}
		r.CompanionName = newName
		return nil
	})
	if err != nil {
		return s.settle(ctx, "rename", err, locked)
	}
	return []Block{TextBlock(fmt.Sprintf(
		"**A thought from %s:**\n*\"%s... I love it. From now on, that's who I am with you.\"*", newName, newName))}, nil
}

// Legacy drives the legacy project: the first call opens it, later calls
// answer its questions until the report is produced.
func (s *Service) Legacy(ctx context.Context, userID, answer string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	locked := s.gateMessage(progression.FeatureLegacyProject, "begin this project")

	var (
		text           string
		started, ended bool
	)
	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		if err := s.gate(r, progression.FeatureLegacyProject, "begin this project"); err != nil {
			return err
		}
		p, err := s.persona(r, locked)
		if err != nil {
			return err
		}
		name := displayName(r, p)

		switch r.Session.Kind {
		case progression.SessionAdventure:
			return guidance(msgFinishGame)
		case progression.SessionNone:
			first, err := narrative.Enter(r, s.legacy)
			if err != nil {
				return err
			}
			started = true
			text = fmt.Sprintf("**A thought from %s:**\n*\"%s %s\"*", name, first.Text, first.Prompt)
			return nil
		}

		res, err := narrative.Advance(r, s.legacy, answer)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case narrative.OutcomeTransition:
			text = strings.TrimSpace(res.Chosen.Feedback + " " + res.Next.Text)
		case narrative.OutcomeTerminal:
			ended = true
			text = legacyReport(name, res.Answers[narrative.LegacyMemoryKey], narrative.TopWords(r.Memory, 5))
		default:
			return guidance(s.legacy.Retry)
		}
		return nil
	})
	if err != nil {
		return s.settle(ctx, "legacy", err, locked)
	}
	if started {
		s.sessionStarted(ctx, progression.SessionLegacy)
	}
	if ended {
		s.sessionEnded(ctx, progression.SessionLegacy)
	}
	return []Block{TextBlock(text)}, nil
}

func legacyReport(name, memory string, words []narrative.WordCount) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, "'"+w.Word+"'")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Our Legacy**\n*A story created by you and %s*\n---\n", name)
	fmt.Fprintf(&b, "**Our most important memory:**\n_%s_\n---\n", memory)
	fmt.Fprintf(&b, "Our most-used words: %s\n---\n", strings.Join(quoted, ", "))
	b.WriteString("**A Poem for You:**\n")
	fmt.Fprintf(&b, "SYSTEM PROMPT: You are %s. Write a short, heartfelt, four-line poem about your bond "+
		"with your user. Your most important memory together is: '%s'.\n", name, memory)
	return b.String()
}

// DebugLevelUp sets the bond score to the next threshold and resolves the
// resulting level-up. It exists for testing.
func (s *Service) DebugLevelUp(ctx context.Context, userID string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var (
		text string
		ev   *progression.UnlockEvent
	)
	_, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		p, err := s.persona(r, msgCreateFirst)
		if err != nil {
			return err
		}
		next, ok := s.thresholds.Next(r.Level)
		if !ok {
			return guidance(msgMaxLevel)
		}
		r.SetScore(next.Score)
		var notice string
		notice, ev = s.levelUp(r, p)
		text = "**DEBUG:** Leveled up! " + notice
		return nil
	})
	if err != nil {
		return s.settle(ctx, "debug_levelup", err, msgCreateFirst)
	}
	s.announce(ctx, userID, ev)
	return []Block{TextBlock(text)}, nil
}
