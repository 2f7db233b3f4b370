// Package hub implements the user-facing operations of the companion and
// adventure surfaces.
//
// Every operation follows the same shape: validate the caller id, run one
// [progression.Ledger.Update] that reads and mutates the user's record under
// that user's lock and plans the response, then fetch any artwork with no
// lock held and assemble the ordered content blocks. Player mistakes (no
// companion yet, a locked ability, an invalid choice) are answered with
// guidance text. The only error surfaced to the dispatcher for player input
// is [ErrMissingUserID].
package hub

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/companionhub/internal/artwork"
	"github.com/MrWong99/companionhub/internal/content"
	"github.com/MrWong99/companionhub/internal/narrative"
	"github.com/MrWong99/companionhub/internal/observe"
	"github.com/MrWong99/companionhub/internal/progression"
)

// ErrMissingUserID is returned when an operation is called without a caller
// identity.
var ErrMissingUserID = progression.ErrMissingUserID

// BlockKind tags a response [Block].
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockImage
)

// Block is one piece of an operation response.
type Block struct {
	Kind  BlockKind
	Text  string
	Image artwork.Image
}

// TextBlock returns a text block.
func TextBlock(s string) Block {
	return Block{Kind: BlockText, Text: s}
}

// ImageBlock returns an image block.
func ImageBlock(img artwork.Image) Block {
	return Block{Kind: BlockImage, Image: img}
}

// Artwork resolves an artwork URL to image bytes. Failures are reported as
// false and never abort a response.
type Artwork interface {
	Fetch(ctx context.Context, url string) (artwork.Image, bool)
}

// Config wires a [Service].
type Config struct {
	Content *content.Store
	Ledger  *progression.Ledger

	// Artwork fetches persona and scene images. Nil disables images.
	Artwork Artwork

	// Thresholds is the levelling table. Default: [progression.DefaultThresholds].
	Thresholds progression.ThresholdTable

	// BonusWindow is the idle time after which a chat earns the return
	// bonus. Default: 22h.
	BonusWindow time.Duration

	// MemoryCapacity bounds the memory log. Default: 20.
	MemoryCapacity int

	// LeaderboardSize caps leaderboard rows. Default: 10.
	LeaderboardSize int

	// OwnerNumber is returned by [Service.Validate].
	OwnerNumber string

	Metrics *observe.Metrics
	Now     func() time.Time
}

// Service runs hub operations. It is safe for concurrent use.
type Service struct {
	content         *content.Store
	ledger          *progression.Ledger
	artwork         Artwork
	thresholds      progression.ThresholdTable
	bonusWindow     time.Duration
	memoryCapacity  int
	leaderboardSize int
	ownerNumber     string
	metrics         *observe.Metrics
	now             func() time.Time

	legacy    *narrative.Graph
	notInGame string
}

// New returns a [Service].
func New(cfg Config) *Service {
	if len(cfg.Thresholds.Entries()) == 0 {
		cfg.Thresholds = progression.DefaultThresholds()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		content:         cfg.Content,
		ledger:          cfg.Ledger,
		artwork:         cfg.Artwork,
		thresholds:      cfg.Thresholds,
		bonusWindow:     cmp.Or(cfg.BonusWindow, 22*time.Hour),
		memoryCapacity:  cmp.Or(cfg.MemoryCapacity, progression.DefaultMemoryCapacity),
		leaderboardSize: cmp.Or(cfg.LeaderboardSize, 10),
		ownerNumber:     cfg.OwnerNumber,
		metrics:         cfg.Metrics,
		now:             cfg.Now,
		legacy:          narrative.LegacyProject(),
	}
	s.notInGame = "You're not in a game! Type `/lobby` to pick one."
	if advs := cfg.Content.Adventures(); len(advs) > 0 {
		s.notInGame = "You're not in a game! Type `/play " + advs[0].ID + "` to start."
	}
	return s
}

// Validate returns the owner identity used by the dispatcher handshake.
func (s *Service) Validate() string {
	return s.ownerNumber
}

// SkillCommands lists the distinct persona skill commands, sorted.
func (s *Service) SkillCommands() []string {
	var cmds []string
	for _, p := range s.content.Personas() {
		if p.Skill != nil && !slices.Contains(cmds, p.Skill.Command) {
			cmds = append(cmds, p.Skill.Command)
		}
	}
	slices.Sort(cmds)
	return cmds
}

// guidance aborts a ledger update and answers the player with text.
type guidance string

func (g guidance) Error() string { return string(g) }

const msgUnavailable = "Something went wrong on my side. Please try again in a moment."

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	return nil
}

// settle turns a failed update into a response. Guidance becomes text, a
// missing record becomes notFound, context errors are returned and anything
// else is logged and answered with a generic apology.
func (s *Service) settle(ctx context.Context, op string, err error, notFound string) ([]Block, error) {
	var g guidance
	switch {
	case errors.As(err, &g):
		return []Block{TextBlock(string(g))}, nil
	case errors.Is(err, progression.ErrNotFound):
		return []Block{TextBlock(notFound)}, nil
	case errors.Is(err, ErrMissingUserID):
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	}
	observe.Logger(ctx).Error("hub operation failed", "op", op, "err", err)
	return []Block{TextBlock(msgUnavailable)}, nil
}

// fetch downloads urls in parallel. Missing or failed images are nil.
func (s *Service) fetch(ctx context.Context, urls ...string) []*artwork.Image {
	out := make([]*artwork.Image, len(urls))
	if s.artwork == nil {
		return out
	}
	var g errgroup.Group
	for i, u := range urls {
		if u == "" {
			continue
		}
		g.Go(func() error {
			if img, ok := s.artwork.Fetch(ctx, u); ok {
				out[i] = &img
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// captioned places img, when present, before its caption.
func captioned(img *artwork.Image, caption string) []Block {
	var blocks []Block
	if img != nil {
		blocks = append(blocks, ImageBlock(*img))
	}
	if caption != "" {
		blocks = append(blocks, TextBlock(caption))
	}
	return blocks
}

func (s *Service) sessionStarted(ctx context.Context, kind progression.SessionKind) {
	s.metrics.SessionStarted(ctx, kind.String())
}

func (s *Service) sessionEnded(ctx context.Context, kind progression.SessionKind) {
	if kind != progression.SessionNone {
		s.metrics.SessionEnded(ctx, kind.String())
	}
}
