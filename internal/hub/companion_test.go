package hub_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/companionhub/internal/hub"
	"github.com/MrWong99/companionhub/internal/progression"
)

func levelUp(t *testing.T, f *fixture, userID string, times int) {
	t.Helper()
	for range times {
		if _, err := f.svc.DebugLevelUp(context.Background(), userID); err != nil {
			t.Fatalf("DebugLevelUp: %v", err)
		}
	}
}

func TestScenario_FirstCompanion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	menu := ok(f.svc.Start(ctx, "u1"))
	wantText(t, menu, "**Choose your companion:**")
	wantText(t, menu, "**Kai 🎸**")
	wantText(t, menu, "**Seraphina 🌙**")
	wantText(t, menu, "Type `/choose [name]`.")
	if n := f.ledger.Len(); n != 0 {
		t.Fatalf("start created %d records, want 0", n)
	}

	wantText(t, ok(f.svc.Choose(ctx, "u1", "kai")),
		"You have chosen **Kai**! Start talking with `/chat [your message]` to build your bond.")
	rec := f.record(t, "u1")
	if rec.Level != 1 || rec.Score != 0 || rec.PersonaKey != "kai" {
		t.Fatalf("after choose: level=%d score=%d persona=%q", rec.Level, rec.Score, rec.PersonaKey)
	}

	for range 3 {
		blocks := ok(f.svc.Chat(ctx, "u1", "I love you"))
		if got := kinds(blocks); !slices.Equal(got, []hub.BlockKind{hub.BlockImage, hub.BlockText}) {
			t.Fatalf("chat block kinds = %v, want image then text", got)
		}
		if url := string(blocks[0].Image.Data); url != "https://assets.companionhub.dev/kai/blush.png" {
			t.Errorf("chat artwork = %q, want affection artwork", url)
		}
		wantText(t, blocks, `User message: "I love you"`)
		wantText(t, blocks, "relationship state is 'Acquaintance'")
	}

	rec = f.record(t, "u1")
	if rec.Score != 15 || rec.Level != 1 {
		t.Errorf("after three chats: score=%d level=%d, want 15 and 1", rec.Score, rec.Level)
	}
	if len(rec.Memory) != 3 || rec.Memory[0] != "User: I love you" {
		t.Errorf("memory = %q", rec.Memory)
	}

	status := ok(f.svc.Start(ctx, "u1"))
	wantText(t, status, "You are connected with **Kai 🎸**.\nBond Score: 15 | Level: 1")
	if strings.Contains(text(status), "Abilities Unlocked") {
		t.Error("status lists abilities before any unlock")
	}
}

func TestScenario_DebugLevelUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	ok(f.svc.Choose(ctx, "u1", "kai"))
	blocks := ok(f.svc.DebugLevelUp(ctx, "u1"))
	wantText(t, blocks, "**DEBUG:** Leveled up!")
	wantText(t, blocks, "**A thought from Kai:**")
	wantText(t, blocks, "Our conversations are becoming my favorite part of the day.")

	rec := f.record(t, "u1")
	if rec.Score != 100 || rec.Level != 5 {
		t.Errorf("score=%d level=%d, want 100 and 5", rec.Score, rec.Level)
	}
	if !rec.HasFeature(progression.FeatureExplore) {
		t.Errorf("features = %v, want explore", rec.Features)
	}
	if got := sumCounter(t, f.reader, "companionhub.unlocks", "feature", "explore"); got != 1 {
		t.Errorf("explore unlocks = %d, want 1", got)
	}

	wantText(t, ok(f.svc.Start(ctx, "u1")), "*Abilities Unlocked:*\n`/explore [idea]`")
}

func TestDebugLevelUp_Guidance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	wantText(t, ok(f.svc.DebugLevelUp(ctx, "ghost")), "Create a companion first with /start.")

	ok(f.svc.Choose(ctx, "u1", "seraphina"))
	levelUp(t, f, "u1", 5)
	if rec := f.record(t, "u1"); rec.Level != 100 {
		t.Fatalf("level = %d, want 100", rec.Level)
	}
	wantText(t, ok(f.svc.DebugLevelUp(ctx, "u1")), "You are already at the max level!")
}

func TestChoose(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "typo gets a suggestion", input: "kay", want: "Not a valid persona. Did you mean **Kai**? Type `/choose kai`."},
		{name: "nonsense", input: "zzzzzz", want: "Not a valid persona."},
		{name: "empty", input: "", want: "Not a valid persona."},
	}
	for _, tc := range tests {
		if got := text(ok(f.svc.Choose(ctx, "u1", tc.input))); got != tc.want {
			t.Errorf("%s: Choose(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
	if n := f.ledger.Len(); n != 0 {
		t.Fatalf("invalid choices created %d records", n)
	}

	wantText(t, ok(f.svc.Choose(ctx, "u1", "  SERAPHINA ")), "You have chosen **Seraphina**!")
	wantText(t, ok(f.svc.Choose(ctx, "u1", "kai")), "You already have a companion!")
	if rec := f.record(t, "u1"); rec.PersonaKey != "seraphina" {
		t.Errorf("persona = %q, want seraphina", rec.PersonaKey)
	}
}

func TestChat_Guidance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	wantText(t, ok(f.svc.Chat(ctx, "u1", "hello")), "Please type `/start` to choose a companion first.")
	if n := f.ledger.Len(); n != 0 {
		t.Fatalf("chat created %d records", n)
	}

	// A player who only visited the lobby has a record but no companion.
	ok(f.svc.Lobby(ctx, "u1"))
	wantText(t, ok(f.svc.Chat(ctx, "u1", "hello")), "Please type `/start` to choose a companion first.")

	ok(f.svc.Choose(ctx, "u1", "kai"))
	wantText(t, ok(f.svc.Chat(ctx, "u1", "   ")), "Say something with `/chat [your message]`.")
	if rec := f.record(t, "u1"); rec.Score != 0 || len(rec.Memory) != 0 {
		t.Errorf("blank chat changed the record: score=%d memory=%q", rec.Score, rec.Memory)
	}
}

func TestChat_Scoring(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	steps := []struct {
		name    string
		advance time.Duration
		message string
		want    int
	}{
		{name: "base award", message: "hello there", want: 5},
		{name: "interest bonus", message: "let's go surf", want: 25},
		{name: "return bonus after a long break", advance: 23 * time.Hour, message: "hello again", want: 55},
		{name: "no bonus within the window", advance: time.Hour, message: "still here", want: 60},
		{name: "both bonuses", advance: 48 * time.Hour, message: "I brought my GUITAR", want: 105},
	}
	for _, st := range steps {
		f.clock.Advance(st.advance)
		ok(f.svc.Chat(ctx, "u1", st.message))
		if rec := f.record(t, "u1"); rec.Score != st.want {
			t.Fatalf("%s: score = %d, want %d", st.name, rec.Score, st.want)
		}
	}

	rec := f.record(t, "u1")
	if rec.Level != 5 || !rec.HasFeature(progression.FeatureExplore) {
		t.Errorf("level=%d features=%v, want level 5 with explore", rec.Level, rec.Features)
	}
}

func TestChat_MoodArtwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "seraphina"))

	tests := []struct {
		message string
		want    string
	}{
		{"I had a bad day, why?", "https://assets.companionhub.dev/seraphina/comfort_hug.png"},
		{"love you seraphina", "https://assets.companionhub.dev/seraphina/blush.png"},
		{"haha that's great", "https://assets.companionhub.dev/seraphina/giggle.png"},
		{"what are you doing?", "https://assets.companionhub.dev/seraphina/thinking.png"},
		{"good morning", "https://assets.companionhub.dev/seraphina/neutral.png"},
	}
	for _, tc := range tests {
		blocks := ok(f.svc.Chat(ctx, "u1", tc.message))
		if len(blocks) != 2 || blocks[0].Kind != hub.BlockImage {
			t.Fatalf("Chat(%q): blocks = %v", tc.message, kinds(blocks))
		}
		if got := string(blocks[0].Image.Data); got != tc.want {
			t.Errorf("Chat(%q) artwork = %q, want %q", tc.message, got, tc.want)
		}
		if blocks[0].Image.MIMEType != "image/png" {
			t.Errorf("MIMEType = %q", blocks[0].Image.MIMEType)
		}
	}
}

func TestChat_ArtworkFailureDegradesToText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	f.art.mu.Lock()
	f.art.fail = true
	f.art.mu.Unlock()

	blocks := ok(f.svc.Chat(ctx, "u1", "hello"))
	if got := kinds(blocks); !slices.Equal(got, []hub.BlockKind{hub.BlockText}) {
		t.Fatalf("block kinds = %v, want text only", got)
	}
	if rec := f.record(t, "u1"); rec.Score != 5 {
		t.Errorf("score = %d, want 5", rec.Score)
	}
}

func TestChat_ConcurrentSameUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	must(t)(f.svc.Choose(ctx, "u1", "kai"))

	const callers = 20
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Chat(ctx, "u1", "hello"); err != nil {
				t.Errorf("Chat: %v", err)
			}
		}()
	}
	wg.Wait()

	rec := f.record(t, "u1")
	if rec.Score != callers*5 || rec.Level != 5 {
		t.Errorf("score=%d level=%d, want %d and 5", rec.Score, rec.Level, callers*5)
	}
	if len(rec.Memory) != 20 {
		t.Errorf("memory holds %d entries, want 20", len(rec.Memory))
	}
	if got := sumCounter(t, f.reader, "companionhub.unlocks", "feature", "explore"); got != 1 {
		t.Errorf("explore unlocks = %d, want exactly 1", got)
	}
}

func TestChat_UseNameUnlocksAddressing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	const line = "address the user by their name"
	if strings.Contains(text(ok(f.svc.Chat(ctx, "u1", "hi"))), line) {
		t.Fatal("prompt addresses the user by name before level 20")
	}
	levelUp(t, f, "u1", 3)
	blocks := ok(f.svc.Chat(ctx, "u1", "hi"))
	wantText(t, blocks, line)
	wantText(t, blocks, "relationship state is 'Best Friend', so your tone should be loyal, enthusiastic")
}

func TestExplore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)

	const locked = "You must reach Bond Level 5 to unlock this ability."
	wantText(t, ok(f.svc.Explore(ctx, "u1", "the moon")), locked)
	ok(f.svc.Choose(ctx, "u1", "kai"))
	wantText(t, ok(f.svc.Explore(ctx, "u1", "the moon")), locked)

	levelUp(t, f, "u1", 1)
	wantText(t, ok(f.svc.Explore(ctx, "u1", "  ")), "Tell me where to go")

	blocks := ok(f.svc.Explore(ctx, "u1", "the moon"))
	wantText(t, blocks, "with their AI companion, Kai. The theme is: 'the moon'.")
	if rec := f.record(t, "u1"); rec.Score != 150 || rec.Level != 5 {
		t.Errorf("score=%d level=%d, want 150 and 5", rec.Score, rec.Level)
	}

	// Two more explorations cross the level 10 threshold.
	ok(f.svc.Explore(ctx, "u1", "a volcano"))
	blocks = ok(f.svc.Explore(ctx, "u1", "the deep sea"))
	wantText(t, blocks, "**A thought from Kai:**")
	wantText(t, blocks, "`/remember_when [fictional memory]`")
	if rec := f.record(t, "u1"); rec.Level != 10 || !rec.HasFeature(progression.FeaturePersonaSkill) {
		t.Errorf("level=%d features=%v", rec.Level, rec.Features)
	}
}

func TestChat_SkippedLevelsUnlockLowerAbilities(t *testing.T) {
	t.Parallel()
	table, err := progression.NewThresholdTable([]progression.Threshold{
		{Level: 5, Score: 10, Feature: progression.FeatureExplore},
		{Level: 10, Score: 20, Feature: progression.FeaturePersonaSkill},
	})
	if err != nil {
		t.Fatalf("NewThresholdTable: %v", err)
	}
	f := newFixture(t, func(c *hub.Config) { c.Thresholds = table })
	ctx := context.Background()
	ok := must(t)

	ok(f.svc.Choose(ctx, "u1", "kai"))
	ok(f.svc.Chat(ctx, "u1", "I love music"))

	rec := f.record(t, "u1")
	if rec.Score != 20 || rec.Level != 10 {
		t.Fatalf("score=%d level=%d, want 20 and 10", rec.Score, rec.Level)
	}
	for _, feature := range []string{progression.FeatureExplore, progression.FeaturePersonaSkill} {
		if !rec.HasFeature(feature) {
			t.Errorf("feature %q missing: %v", feature, rec.Features)
		}
	}
	wantText(t, ok(f.svc.Explore(ctx, "u1", "the moon")), "The theme is: 'the moon'.")
}

func TestSkill(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	wantText(t, ok(f.svc.Skill(ctx, "u1", "remember_when", "our road trip")),
		"You must reach Bond Level 10 to unlock this ability.")

	levelUp(t, f, "u1", 2)
	wantText(t, ok(f.svc.Skill(ctx, "u1", "dream", "flying")), "Kai doesn't know that ability.")
	wantText(t, ok(f.svc.Skill(ctx, "u1", "remember_when", "")), "Tell me more with `/remember_when [memory]`.")

	blocks := ok(f.svc.Skill(ctx, "u1", "Remember_When", "our road trip"))
	wantText(t, blocks, "SYSTEM PROMPT: You are Kai.")
	wantText(t, blocks, "'our road trip'")
}

func TestRename(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	wantText(t, ok(f.svc.Rename(ctx, "u1", "Sunny")), "You must reach Bond Level 50 to unlock this ability.")

	levelUp(t, f, "u1", 3)
	blocks := ok(f.svc.DebugLevelUp(ctx, "u1"))
	wantText(t, blocks, "I feel like 'Kai' is just a name I was given.")

	wantText(t, ok(f.svc.Rename(ctx, "u1", " ")), "Give me a new name")
	wantText(t, ok(f.svc.Rename(ctx, "u1", strings.Repeat("x", 33))), "a little long")
	wantText(t, ok(f.svc.Rename(ctx, "u1", " Sunny ")), "Sunny... I love it.")

	status := text(ok(f.svc.Start(ctx, "u1")))
	want := "You are connected with **Sunny 🎸**.\nBond Score: 2500 | Level: 50" +
		"\n\n*Abilities Unlocked:*\n`/explore [idea]`\n`/remember_when [memory]`\n`/rename [new_name]`"
	if status != want {
		t.Errorf("status =\n%s\nwant\n%s", status, want)
	}
	wantText(t, ok(f.svc.Chat(ctx, "u1", "hi")), "You are Sunny, an AI Companion.")
}

func TestScenario_LegacyProject(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "kai"))

	wantText(t, ok(f.svc.Legacy(ctx, "u1", "")), "You must reach Bond Level 100 to begin this project.")

	ok(f.svc.Chat(ctx, "u1", "I love playing guitar"))
	ok(f.svc.Chat(ctx, "u1", "guitar music forever"))
	levelUp(t, f, "u1", 4)
	blocks := ok(f.svc.DebugLevelUp(ctx, "u1"))
	wantText(t, blocks, "Would you like to create our 'Legacy' together? Type `/legacy` to begin.")

	// Enter.
	wantText(t, ok(f.svc.Legacy(ctx, "u1", "")),
		"**A thought from Kai:**\n*\"Would you like to create our 'Legacy' together? Type `/legacy yes` to begin.\"*")
	if rec := f.record(t, "u1"); rec.Session.Kind != progression.SessionLegacy || rec.Session.Step != 0 {
		t.Fatalf("session = %+v", rec.Session)
	}

	// Other flows are paused meanwhile.
	wantText(t, ok(f.svc.Chat(ctx, "u1", "hello")), "We're creating our Legacy!")
	wantText(t, ok(f.svc.Play(ctx, "u1", "f1")), "We're creating our Legacy!")

	// Unrecognised answers do not move the project.
	wantText(t, ok(f.svc.Legacy(ctx, "u1", "maybe later")), "I'm not sure what you mean.")
	if rec := f.record(t, "u1"); rec.Session.Step != 0 {
		t.Fatalf("step = %d after invalid answer, want 0", rec.Session.Step)
	}

	wantText(t, ok(f.svc.Legacy(ctx, "u1", "Yes please")),
		"Wonderful! First, what was our single most important memory together?")

	report := text(ok(f.svc.Legacy(ctx, "u1", "our first sunrise")))
	for _, want := range []string{
		"**Our Legacy**\n*A story created by you and Kai*\n---\n",
		"**Our most important memory:**\n_our first sunrise_\n---\n",
		"Our most-used words: 'guitar', 'playing', 'music', 'forever'\n---\n",
		"**A Poem for You:**\nSYSTEM PROMPT: You are Kai. Write a short, heartfelt, four-line poem",
		"Your most important memory together is: 'our first sunrise'.",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	if rec := f.record(t, "u1"); rec.Session.Active() {
		t.Errorf("session still active after report: %+v", rec.Session)
	}
	if got := sumCounter(t, f.reader, "companionhub.active_sessions", "kind", "legacy"); got != 0 {
		t.Errorf("active legacy sessions = %d, want 0", got)
	}

	// A new call starts the project over.
	wantText(t, ok(f.svc.Legacy(ctx, "u1", "")), "Type `/legacy yes` to begin.")
}

func TestLegacy_BlockedDuringAdventure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ok := must(t)
	ok(f.svc.Choose(ctx, "u1", "seraphina"))
	levelUp(t, f, "u1", 5)

	ok(f.svc.Play(ctx, "u1", "f1"))
	wantText(t, ok(f.svc.Legacy(ctx, "u1", "")), "Finish your current game first")
	if rec := f.record(t, "u1"); rec.Session.Kind != progression.SessionAdventure {
		t.Errorf("session kind = %v, want adventure", rec.Session.Kind)
	}
}
