package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/companionhub/internal/content"
	"github.com/MrWong99/companionhub/internal/narrative"
	"github.com/MrWong99/companionhub/internal/progression"
	"github.com/MrWong99/companionhub/internal/ranking"
)

const (
	msgAlreadyPlaying = "You're already in a game! Use `/action` to play or `/endgame` to quit."
	msgGameEnded      = "Game ended. Type `/lobby` to start a new one."
	msgNoGame         = "You are not in a game."
	msgEmptyBoard     = "The leaderboard is empty."
	msgGameGone       = "That game is no longer available. Type `/lobby` to start a new one."
)

var medals = map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}

// Lobby shows the player's rating, their rank movement since the last visit
// and the playable adventures. The record is created on first visit.
func (s *Service) Lobby(ctx context.Context, userID string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Update(ctx, userID, true, func(*progression.Record) error { return nil }); err != nil {
		return s.settle(ctx, "lobby", err, "")
	}

	ranked := ranking.Rank(s.ledger.Snapshot())
	pos := ranking.Position(ranked, userID)

	var delta ranking.Delta
	rec, err := s.ledger.Update(ctx, userID, false, func(r *progression.Record) error {
		delta = ranking.Observe(r, pos)
		return nil
	})
	if err != nil {
		return s.settle(ctx, "lobby", err, "")
	}

	rank := "Unranked"
	if pos > 0 {
		rank = fmt.Sprintf("Rank: #%d", pos)
		switch delta.Direction {
		case ranking.Improved:
			rank += fmt.Sprintf(" (▲%d)", delta.Places)
		case ranking.Dropped:
			rank += fmt.Sprintf(" (▼%d)", delta.Places)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Welcome to The Player's Hub!**\nYour Rating: **%d ELO** 🏆 | %s\n\n", rec.Rating, rank)
	for _, a := range s.content.Adventures() {
		fmt.Fprintf(&b, "* **/play %s**: %s %s\n", a.ID, a.Icon, a.MenuLabel)
	}
	b.WriteString("* **/leaderboard**: 📊 View Standings\n\n")
	b.WriteString("*To play an active game, use **/action [your choice]**.*")
	return []Block{TextBlock(b.String())}, nil
}

// Leaderboard lists the top players by rating.
func (s *Service) Leaderboard(context.Context) ([]Block, error) {
	ranked := ranking.Rank(s.ledger.Snapshot())
	if len(ranked) == 0 {
		return []Block{TextBlock(msgEmptyBoard)}, nil
	}

	var b strings.Builder
	b.WriteString("**🏆 ELO Leaderboard 🏆**\n\n")
	for i, st := range ranked[:min(len(ranked), s.leaderboardSize)] {
		row := fmt.Sprintf("%d. Player-%s - %d ELO", i+1, shortID(st.UserID), st.Rating)
		if m, ok := medals[i+1]; ok {
			row += " " + m
		}
		b.WriteString(row + "\n")
	}
	return []Block{TextBlock(b.String())}, nil
}

func shortID(id string) string {
	r := []rune(id)
	return string(r[:min(len(r), 6)])
}

// Play starts an adventure. At most one session may be active per player.
func (s *Service) Play(ctx context.Context, userID, gameID string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	adv, err := s.content.Adventure(gameID)
	if errors.Is(err, content.ErrUnknownAdventure) {
		return []Block{TextBlock(fmt.Sprintf(
			"There is no game called '%s'. Type `/lobby` to see what you can play.", strings.TrimSpace(gameID)))}, nil
	}

	var first narrative.Presentation
	_, err = s.ledger.Update(ctx, userID, true, func(r *progression.Record) error {
		switch r.Session.Kind {
		case progression.SessionAdventure:
			return guidance(msgAlreadyPlaying)
		case progression.SessionLegacy:
			return guidance(msgLegacyBusy)
		}
		var err error
		first, err = narrative.Enter(r, adv.Graph)
		return err
	})
	if err != nil {
		return s.settle(ctx, "play", err, "")
	}
	s.sessionStarted(ctx, progression.SessionAdventure)

	text := fmt.Sprintf("%s Welcome to the %s!\n\n%s\n\n**Type `/action %s` to see your options.**",
		adv.Icon, adv.Title, first.Text, narrative.ChoicesCommand)
	return captioned(s.fetch(ctx, first.Artwork)[0], text), nil
}

// actionPlan is the response planned under the record lock.
type actionPlan struct {
	text      string
	feedback  string
	memeURL   string
	sceneURL  string
	sceneText string
	ended     bool
	finished  bool
	game      string
	moves     int
}

// Action advances the player's adventure with a choice label, or lists the
// available choices for the "choices" command.
func (s *Service) Action(ctx context.Context, userID, move string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var plan actionPlan
	_, err := s.ledger.Update(ctx, userID, true, func(r *progression.Record) error {
		if r.Session.Kind != progression.SessionAdventure {
			return guidance(s.notInGame)
		}
		adv, err := s.content.Adventure(r.Session.GraphID)
		if err != nil {
			r.ClearSession()
			plan = actionPlan{text: msgGameGone, ended: true}
			return nil
		}

		res, err := narrative.Advance(r, adv.Graph, move)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case narrative.OutcomeChoices:
			plan.text = choiceList(res.Choices)
		case narrative.OutcomeTransition:
			plan.feedback = "➡️ " + res.Chosen.Feedback
			plan.memeURL = res.Chosen.Artwork
			plan.sceneURL = res.Next.Artwork
			plan.sceneText = fmt.Sprintf("\n%s\n\n**Type `/action %s` to see your new options.**",
				res.Next.Text, narrative.ChoicesCommand)
		case narrative.OutcomeTerminal:
			plan.feedback = "➡️ " + res.Chosen.Feedback
			plan.memeURL = res.Chosen.Artwork
			plan.sceneText = fmt.Sprintf("\n🏁 %s **Rating Change: %+d ELO** (New Rating: %d)",
				adv.Finish, res.Result.RatingDelta, res.Rating)
			plan.ended = true
			plan.finished = true
			plan.game = adv.ID
			plan.moves = res.Moves
		default:
			return guidance(res.Retry)
		}
		return nil
	})
	if err != nil {
		return s.settle(ctx, "action", err, s.notInGame)
	}
	if plan.ended {
		s.sessionEnded(ctx, progression.SessionAdventure)
	}
	if plan.finished {
		s.metrics.RecordAdventureFinished(ctx, plan.game, plan.moves)
	}
	if plan.text != "" {
		return []Block{TextBlock(plan.text)}, nil
	}

	imgs := s.fetch(ctx, plan.memeURL, plan.sceneURL)
	blocks := captioned(imgs[0], plan.feedback)
	return append(blocks, captioned(imgs[1], plan.sceneText)...), nil
}

func choiceList(choices []narrative.Choice) string {
	lines := make([]string, 0, len(choices))
	for _, c := range choices {
		lines = append(lines, fmt.Sprintf("**[%s]** %s", c.Label, c.Text))
	}
	example := "A"
	if len(choices) > 0 {
		example = choices[0].Label
	}
	return strings.Join(lines, "\n") + "\n\nType `/action [your choice]` (e.g., /action " + example + ")"
}

// EndGame abandons the player's active session, whatever its kind.
func (s *Service) EndGame(ctx context.Context, userID string) ([]Block, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var ended progression.SessionKind
	_, err := s.ledger.Update(ctx, userID, true, func(r *progression.Record) error {
		ended = r.ClearSession()
		if ended == progression.SessionNone {
			return guidance(msgNoGame)
		}
		return nil
	})
	if err != nil {
		return s.settle(ctx, "endgame", err, msgNoGame)
	}
	s.sessionEnded(ctx, ended)
	return []Block{TextBlock(msgGameEnded)}, nil
}
