// Package resilience guards calls to flaky external dependencies.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [BreakerSet] keeps one breaker per key, so a single failing artwork host
// is short-circuited without penalising the others.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewBreaker returns a closed [Breaker]. Zero config fields take defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Execute runs fn unless the breaker is open. Context cancellation is not
// counted as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	halfOpen, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	switch {
	case err == nil:
		b.settle(halfOpen, true)
	case errors.Is(err, context.Canceled):
		b.release(halfOpen)
	default:
		b.settle(halfOpen, false)
	}
	return err
}

// admit decides whether a call may proceed.
func (b *Breaker) admit() (halfOpen bool, err error) {
	b.mu.Lock()
	var from State
	transitioned := false
	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, transitioned = b.state, true
		b.state = StateHalfOpen
		b.probes, b.successes = 0, 0
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			b.notify(transitioned, from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		b.probes++
		halfOpen = true
	}
	b.mu.Unlock()
	b.notify(transitioned, from, StateHalfOpen)
	return halfOpen, nil
}

// release returns an unused probe slot.
func (b *Breaker) release(halfOpen bool) {
	if !halfOpen {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

func (b *Breaker) settle(halfOpen, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case ok && halfOpen:
		b.successes++
		if b.state == StateHalfOpen && b.successes >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
		}
	case ok:
		b.failures = 0
	case halfOpen:
		b.state = StateOpen
		b.openedAt = b.cfg.Now()
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from != to, from, to)
}

func (b *Breaker) notify(changed bool, from, to State) {
	if !changed {
		return
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"name", b.cfg.Name, "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// BreakerSet lazily creates one [Breaker] per key sharing a config.
type BreakerSet struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet returns an empty set. cfg.Name is used as a prefix for the
// per-key breaker names.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (s *BreakerSet) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	cfg := s.cfg
	if cfg.Name != "" {
		cfg.Name += ":" + key
	} else {
		cfg.Name = key
	}
	b := NewBreaker(cfg)
	s.breakers[key] = b
	return b
}

// Execute runs fn through the breaker for key.
func (s *BreakerSet) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	return s.Get(key).Execute(ctx, fn)
}

// Open returns the sorted keys whose breaker currently rejects calls.
func (s *BreakerSet) Open() []string {
	s.mu.Lock()
	keys := slices.Sorted(maps.Keys(s.breakers))
	s.mu.Unlock()

	open := keys[:0]
	for _, key := range keys {
		if s.Get(key).State() == StateOpen {
			open = append(open, key)
		}
	}
	return open
}
