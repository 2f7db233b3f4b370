package resilience_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/companionhub/internal/resilience"
)

var errTest = errors.New("test error")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fail(context.Context) error    { return errTest }
func succeed(context.Context) error { return nil }

func TestBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Minute, Now: clock.Now})

	for range 2 {
		_ = b.Execute(ctx, fail)
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after 2 failures", b.State())
	}
	_ = b.Execute(ctx, fail)
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Execute: expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 2})
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	var transitions []string
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
		OnStateChange: func(_ string, from, to resilience.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(ctx, fail)
	clock.Advance(time.Minute)
	if b.State() != resilience.StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", b.State())
	}

	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	b := resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now})

	_ = b.Execute(ctx, fail)
	clock.Advance(time.Minute)
	_ = b.Execute(ctx, fail)
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 1})
	err := b.Execute(ctx, func(context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute: got %v", err)
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerSet_IsolatesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := resilience.NewBreakerSet(resilience.BreakerConfig{Name: "artwork", MaxFailures: 1, ResetTimeout: time.Hour})

	_ = s.Execute(ctx, "bad.example", fail)
	if err := s.Execute(ctx, "bad.example", succeed); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("bad host: expected ErrCircuitOpen, got %v", err)
	}
	if err := s.Execute(ctx, "good.example", succeed); err != nil {
		t.Fatalf("good host: %v", err)
	}
	if s.Get("bad.example") != s.Get("bad.example") {
		t.Error("Get must return the same breaker for a key")
	}
}

func TestBreakerSet_Open(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	s := resilience.NewBreakerSet(resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now})
	if got := s.Open(); len(got) != 0 {
		t.Fatalf("Open() on empty set = %v", got)
	}

	_ = s.Execute(ctx, "b.example", fail)
	_ = s.Execute(ctx, "a.example", fail)
	_ = s.Execute(ctx, "c.example", succeed)
	if got := s.Open(); !slices.Equal(got, []string{"a.example", "b.example"}) {
		t.Errorf("Open() = %v, want [a.example b.example]", got)
	}

	clock.Advance(time.Minute)
	if got := s.Open(); len(got) != 0 {
		t.Errorf("Open() after reset timeout = %v, want none", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state resilience.State
		want  string
	}{
		{resilience.StateClosed, "closed"},
		{resilience.StateOpen, "open"},
		{resilience.StateHalfOpen, "half-open"},
		{resilience.State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
