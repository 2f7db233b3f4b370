package mcpserver

import (
	"context"
	"fmt"

	"github.com/MrWong99/companionhub/internal/hub"
)

// UserInput carries only the caller identity.
type UserInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
}

// ChooseInput selects a companion persona.
type ChooseInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Name   string `json:"name" jsonschema:"persona name"`
}

// ChatInput is a message to the companion.
type ChatInput struct {
	UserID  string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Message string `json:"message" jsonschema:"your message"`
}

// ExploreInput is the theme of a story adventure.
type ExploreInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Topic  string `json:"topic" jsonschema:"the theme for your adventure"`
}

// SkillInput is the free text handed to a persona skill.
type SkillInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Input  string `json:"input" jsonschema:"what the companion should work with"`
}

// RenameInput is the companion's new display name.
type RenameInput struct {
	UserID  string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	NewName string `json:"new_name" jsonschema:"the new name for your companion"`
}

// LegacyInput is an optional answer for the legacy project.
type LegacyInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Text   string `json:"text,omitempty" jsonschema:"your answer; omit to start or resume the project"`
}

// PlayInput names the adventure to start.
type PlayInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Game   string `json:"game" jsonschema:"the game to start"`
}

// ActionInput is a choice label or the choices command.
type ActionInput struct {
	UserID string `json:"user_id" jsonschema:"caller identity supplied by the dispatcher"`
	Move   string `json:"move" jsonschema:"your choice or command"`
}

func (s *Server) registerCompanionTools() {
	addTool(s, "validate", "Returns the owner number for the dispatcher handshake.",
		func(context.Context, struct{}) ([]hub.Block, error) {
			return []hub.Block{hub.TextBlock(s.hub.Validate())}, nil
		})
	addTool(s, "start", "Shows your companion's status, or the personas you can choose from.",
		func(ctx context.Context, in UserInput) ([]hub.Block, error) {
			return s.hub.Start(ctx, in.UserID)
		})
	addTool(s, "choose", "Chooses your companion persona.",
		func(ctx context.Context, in ChooseInput) ([]hub.Block, error) {
			return s.hub.Choose(ctx, in.UserID, in.Name)
		})
	addTool(s, "chat", "Talks with your companion and grows your bond.",
		func(ctx context.Context, in ChatInput) ([]hub.Block, error) {
			return s.hub.Chat(ctx, in.UserID, in.Message)
		})
	addTool(s, "explore", "Goes on a short story adventure with your companion.",
		func(ctx context.Context, in ExploreInput) ([]hub.Block, error) {
			return s.hub.Explore(ctx, in.UserID, in.Topic)
		})
	for _, cmd := range s.hub.SkillCommands() {
		addTool(s, cmd, fmt.Sprintf("Uses your companion's %s ability.", cmd),
			func(ctx context.Context, in SkillInput) ([]hub.Block, error) {
				return s.hub.Skill(ctx, in.UserID, cmd, in.Input)
			})
	}
	addTool(s, "rename", "Gives your companion a new name.",
		func(ctx context.Context, in RenameInput) ([]hub.Block, error) {
			return s.hub.Rename(ctx, in.UserID, in.NewName)
		})
	addTool(s, "legacy", "Starts or continues the legacy project with your companion.",
		func(ctx context.Context, in LegacyInput) ([]hub.Block, error) {
			return s.hub.Legacy(ctx, in.UserID, in.Text)
		})
	addTool(s, "debug_levelup", "Grants enough bond score to reach the next level.",
		func(ctx context.Context, in UserInput) ([]hub.Block, error) {
			return s.hub.DebugLevelUp(ctx, in.UserID)
		})
}

func (s *Server) registerArenaTools() {
	addTool(s, "lobby", "Shows your rating, your rank and the games you can play.",
		func(ctx context.Context, in UserInput) ([]hub.Block, error) {
			return s.hub.Lobby(ctx, in.UserID)
		})
	addTool(s, "leaderboard", "Shows the top players by rating.",
		func(ctx context.Context, _ struct{}) ([]hub.Block, error) {
			return s.hub.Leaderboard(ctx)
		})
	addTool(s, "play", "Starts a game.",
		func(ctx context.Context, in PlayInput) ([]hub.Block, error) {
			return s.hub.Play(ctx, in.UserID, in.Game)
		})
	addTool(s, "action", "Makes a choice in your current game, or lists the choices.",
		func(ctx context.Context, in ActionInput) ([]hub.Block, error) {
			return s.hub.Action(ctx, in.UserID, in.Move)
		})
	addTool(s, "endgame", "Quits your current game.",
		func(ctx context.Context, in UserInput) ([]hub.Block, error) {
			return s.hub.EndGame(ctx, in.UserID)
		})
}
