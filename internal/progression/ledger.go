package progression

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a user id.
	ErrNotFound = errors.New("progression: record not found")

	// ErrInvalidPersona is returned when a persona key does not resolve in
	// the persona catalog.
	ErrInvalidPersona = errors.New("progression: invalid persona")

	// ErrMissingUserID is returned when an operation receives an empty user id.
	ErrMissingUserID = errors.New("progression: user id is required")
)

// PersonaCatalog resolves persona keys. The content store satisfies it.
type PersonaCatalog interface {
	HasPersona(key string) bool
}

// Standing is a user's competitive rating at snapshot time.
type Standing struct {
	UserID string
	Rating int
}

// Option configures a [Ledger].
type Option func(*Ledger)

// WithBaseRating overrides [DefaultBaseRating] for new records.
func WithBaseRating(rating int) Option {
	return func(l *Ledger) { l.baseRating = rating }
}

// WithClock overrides the wall clock used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is a thread-safe, in-memory store of progression records keyed by
// user id.
//
// Access is serialised per user: [Ledger.Update] holds that user's lock for
// the whole read-modify-write callback, while operations on different users
// proceed in parallel. The map itself is guarded by a separate RWMutex that
// is never held while a user lock is waited on.
type Ledger struct {
	catalog    PersonaCatalog
	baseRating int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order, used for stable ranking ties
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// NewLedger returns an empty ledger that validates persona keys against
// catalog.
func NewLedger(catalog PersonaCatalog, opts ...Option) *Ledger {
	l := &Ledger{
		catalog:    catalog,
		baseRating: DefaultBaseRating,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) newRecord(userID string) Record {
	return Record{
		UserID:       userID,
		Level:        1,
		Features:     []string{BaselineFeature},
		Rating:       l.baseRating,
		LastActivity: l.now(),
	}
}

// entryFor returns the entry for userID, inserting a fresh record when
// create is set.
func (l *Ledger) entryFor(userID string, create bool) (*entry, bool) {
	l.mu.RLock()
	e, ok := l.entries[userID]
	l.mu.RUnlock()
	if ok || !create {
		return e, ok
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[userID]; ok {
		return e, true
	}
	e = &entry{rec: l.newRecord(userID)}
	l.entries[userID] = e
	l.order = append(l.order, userID)
	return e, true
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Lookup returns a copy of the record for userID or [ErrNotFound].
func (l *Ledger) Lookup(ctx context.Context, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	e, ok := l.entryFor(userID, false)
	if !ok {
		return Record{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// Update runs fn against the record for userID while holding that user's
// lock, then returns a copy of the result. When create is set a missing
// record is initialised first; otherwise a missing record yields
// [ErrNotFound].
//
// fn operates on a working copy. If it returns an error the copy is
// discarded and the stored record is left untouched.
func (l *Ledger) Update(ctx context.Context, userID string, create bool, fn func(*Record) error) (Record, error) {
	if userID == "" {
		return Record{}, ErrMissingUserID
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	e, ok := l.entryFor(userID, create)
	if !ok {
		return Record{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.rec.Clone()
	if err := fn(&work); err != nil {
		return e.rec.Clone(), err
	}
	e.rec = work
	return work.Clone(), nil
}

// GetOrCreate returns the record for userID. When the user has no companion
// yet and personaKey is non-empty, the persona is validated against the
// catalog and bound to the record, creating the record if necessary. The
// boolean reports whether a persona was bound by this call.
//
// With an empty personaKey an absent record yields [ErrNotFound]; an
// unknown personaKey yields [ErrInvalidPersona] without creating anything.
func (l *Ledger) GetOrCreate(ctx context.Context, userID, personaKey string) (Record, bool, error) {
	if userID == "" {
		return Record{}, false, ErrMissingUserID
	}
	if personaKey == "" {
		rec, err := l.Lookup(ctx, userID)
		return rec, false, err
	}
	if l.catalog == nil || !l.catalog.HasPersona(personaKey) {
		return Record{}, false, ErrInvalidPersona
	}

	var bound bool
	rec, err := l.Update(ctx, userID, true, func(r *Record) error {
		if r.HasCompanion() {
			return nil
		}
		r.PersonaKey = personaKey
		bound = true
		return nil
	})
	return rec, bound, err
}

// Snapshot copies every user's rating in insertion order. Each record is
// read under its own lock; the returned slice is owned by the caller and
// may be sorted freely.
func (l *Ledger) Snapshot() []Standing {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, l.entries[id])
	}
	l.mu.RUnlock()

	out := make([]Standing, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, Standing{UserID: e.rec.UserID, Rating: e.rec.Rating})
		e.mu.Unlock()
	}
	return out
}

// ActiveSessions counts records per active session kind.
func (l *Ledger) ActiveSessions() map[SessionKind]int {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	counts := make(map[SessionKind]int)
	for _, e := range entries {
		e.mu.Lock()
		if k := e.rec.Session.Kind; k != SessionNone {
			counts[k]++
		}
		e.mu.Unlock()
	}
	return counts
}
