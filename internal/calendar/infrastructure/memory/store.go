// Package memory provides an in-memory store for dry runs and tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
)

type state struct {
	series    map[string]domain.SeriesSnapshot
	events    map[string]domain.OccurrenceSnapshot
	reminders map[string]domain.OccurrenceSnapshot
}

func newState() state {
	return state{
		series:    make(map[string]domain.SeriesSnapshot),
		events:    make(map[string]domain.OccurrenceSnapshot),
		reminders: make(map[string]domain.OccurrenceSnapshot),
	}
}

func (s state) clone() state {
	return state{
		series:    maps.Clone(s.series),
		events:    maps.Clone(s.events),
		reminders: maps.Clone(s.reminders),
	}
}

// Store is an application.Store held in memory. Write transactions work
// on a copy of the state that replaces it on commit.
type Store struct {
	mu       sync.Mutex
	state    state
	recorded []sharedDomain.DomainEvent
	writes   int
	failWith error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// FailWith makes every subsequent save fail with err. A nil err restores
// normal operation.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Write runs fn in a write transaction.
func (s *Store) Write(ctx context.Context, parent application.Tx, fn application.TxFunc) error {
	if parent != nil {
		return fn(ctx, parent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{state: s.state.clone(), failWith: s.failWith}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	s.recorded = append(s.recorded, tx.pending...)
	s.writes += tx.saves
	return nil
}

// Read runs fn against the committed state.
func (s *Store) Read(ctx context.Context, fn application.TxFunc) error {
	s.mu.Lock()
	tx := &Tx{state: s.state.clone(), readOnly: true}
	s.mu.Unlock()
	return fn(ctx, tx)
}

// Clear deletes every series, event and reminder.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState()
	return nil
}

// Recorded returns the events recorded by committed transactions.
func (s *Store) Recorded() []sharedDomain.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recorded)
}

// Writes returns the number of saves and deletes committed so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Tx is a transaction over a Store.
type Tx struct {
	state    state
	pending  []sharedDomain.DomainEvent
	saves    int
	readOnly bool
	failWith error
}

func (t *Tx) Series() domain.SeriesRepository        { return seriesRepo{t} }
func (t *Tx) Events() domain.OccurrenceRepository    { return occurrenceRepo{t, t.state.events} }
func (t *Tx) Reminders() domain.OccurrenceRepository { return occurrenceRepo{t, t.state.reminders} }

// Record queues event for the commit.
func (t *Tx) Record(event sharedDomain.DomainEvent) error {
	if t.readOnly {
		return application.ErrReadOnly
	}
	t.pending = append(t.pending, event)
	return nil
}

func (t *Tx) write() error {
	if t.readOnly {
		return application.ErrReadOnly
	}
	if t.failWith != nil {
		return t.failWith
	}
	t.saves++
	return nil
}

type seriesRepo struct{ tx *Tx }

func rehydrateSeries(snap domain.SeriesSnapshot) *domain.Series {
	snap.Template = snap.Template.Clone()
	snap.Recurrence = snap.Recurrence.Clone()
	return domain.RehydrateSeries(snap)
}

func (r seriesRepo) FindByID(_ context.Context, id string) (*domain.Series, error) {
	snap, ok := r.tx.state.series[id]
	if !ok {
		return nil, nil
	}
	return rehydrateSeries(snap), nil
}

func (r seriesRepo) find(match func(*domain.Series) bool) []*domain.Series {
	var found []*domain.Series
	for _, id := range slices.Sorted(maps.Keys(r.tx.state.series)) {
		s := rehydrateSeries(r.tx.state.series[id])
		if match(s) {
			found = append(found, s)
		}
	}
	return found
}

func (r seriesRepo) FindByFuzzyHash(_ context.Context, hash int64) ([]*domain.Series, error) {
	return r.find(func(s *domain.Series) bool { return s.FuzzyHash() == hash }), nil
}

func (r seriesRepo) FindByTitle(_ context.Context, kind domain.ItemKind, title string) ([]*domain.Series, error) {
	return r.find(func(s *domain.Series) bool { return s.Kind() == kind && s.Title() == title }), nil
}

func (r seriesRepo) FindAll(context.Context) ([]*domain.Series, error) {
	return r.find(func(*domain.Series) bool { return true }), nil
}

func (r seriesRepo) Save(_ context.Context, s *domain.Series) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	r.tx.state.series[s.ID()] = s.Snapshot()
	return nil
}

func (r seriesRepo) Delete(_ context.Context, id string) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	delete(r.tx.state.series, id)
	return nil
}

type occurrenceRepo struct {
	tx    *Tx
	items map[string]domain.OccurrenceSnapshot
}

func rehydrateOccurrence(snap domain.OccurrenceSnapshot) *domain.Occurrence {
	snap.Participants = slices.Clone(snap.Participants)
	snap.Alarms = slices.Clone(snap.Alarms)
	snap.Links = slices.Clone(snap.Links)
	return domain.RehydrateOccurrence(snap)
}

func (r occurrenceRepo) FindByID(_ context.Context, id string) (*domain.Occurrence, error) {
	snap, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return rehydrateOccurrence(snap), nil
}

func (r occurrenceRepo) find(match func(*domain.Occurrence) bool) []*domain.Occurrence {
	var found []*domain.Occurrence
	for _, snap := range r.items {
		o := rehydrateOccurrence(snap)
		if match(o) {
			found = append(found, o)
		}
	}
	slices.SortFunc(found, func(a, b *domain.Occurrence) int {
		if c := a.Start().Compare(b.Start()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return found
}

func (r occurrenceRepo) FindByFuzzyHash(_ context.Context, hash int64) ([]*domain.Occurrence, error) {
	return r.find(func(o *domain.Occurrence) bool { return o.FuzzyHash() == hash }), nil
}

func (r occurrenceRepo) FindBySeries(_ context.Context, seriesID string) ([]*domain.Occurrence, error) {
	return r.find(func(o *domain.Occurrence) bool { return o.SeriesID() == seriesID }), nil
}

func (r occurrenceRepo) FindInRange(_ context.Context, from, to time.Time) ([]*domain.Occurrence, error) {
	return r.find(func(o *domain.Occurrence) bool { return o.InRange(from, to) }), nil
}

func (r occurrenceRepo) Count(context.Context) (int, error) {
	return len(r.items), nil
}

func (r occurrenceRepo) Save(_ context.Context, o *domain.Occurrence) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	r.items[o.ID()] = o.Snapshot()
	return nil
}

func (r occurrenceRepo) Delete(_ context.Context, id string) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	delete(r.items, id)
	return nil
}
