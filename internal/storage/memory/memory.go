// Package memory provides an in-memory LocalStore for guest sessions and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

type state struct {
	bills    map[string]models.Bill
	goals    map[string]models.SavingsGoal
	settings *models.UserSettings
	tombs    map[models.Kind]map[string]models.Tombstone
}

func newState() *state {
	return &state{
		bills: make(map[string]models.Bill),
		goals: make(map[string]models.SavingsGoal),
		tombs: make(map[models.Kind]map[string]models.Tombstone),
	}
}

func (s *state) clone() *state {
	c := &state{
		bills: make(map[string]models.Bill, len(s.bills)),
		goals: make(map[string]models.SavingsGoal, len(s.goals)),
		tombs: make(map[models.Kind]map[string]models.Tombstone, len(s.tombs)),
	}
	for kind, byID := range s.tombs {
		c.tombs[kind] = make(map[string]models.Tombstone, len(byID))
		for id, t := range byID {
			c.tombs[kind][id] = t
		}
	}
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	if s.settings != nil {
		us := *s.settings
		c.settings = &us
	}
	return c
}

// Store keeps records in maps. Records are copied in and out so callers
// never alias stored values.
type Store struct {
	txMu *sync.Mutex
	mu   *sync.RWMutex
	st   *state
	now  func() time.Time
}

var _ storage.LocalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		txMu: &sync.Mutex{},
		mu:   &sync.RWMutex{},
		st:   newState(),
		now:  time.Now,
	}
}

func (s *Store) Bills() storage.Collection[*models.Bill] { return billCollection{s} }

func (s *Store) SavingsGoals() storage.Collection[*models.SavingsGoal] { return goalCollection{s} }

func (s *Store) Settings() storage.Collection[*models.UserSettings] { return settingsCollection{s} }

// RunInTx runs fn against a private copy of the store and swaps it in when
// fn succeeds. Transactions are serialized.
func (s *Store) RunInTx(ctx context.Context, fn func(tx storage.LocalStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	draft := &Store{txMu: &sync.Mutex{}, mu: &sync.RWMutex{}, st: s.st.clone(), now: s.now}
	s.mu.RUnlock()

	if err := fn(draft); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = draft.st
	s.mu.Unlock()
	return nil
}

// bury records a tombstone. The caller holds mu.
func (s *Store) bury(kind models.Kind, id string, updated time.Time) {
	if s.st.tombs[kind] == nil {
		s.st.tombs[kind] = make(map[string]models.Tombstone)
	}
	s.st.tombs[kind][id] = models.NewTombstone(kind, id, updated, s.now())
}

func (s *Store) tombstones(kind models.Kind) []models.Tombstone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tombstone, 0, len(s.st.tombs[kind]))
	for _, t := range s.st.tombs[kind] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) clearTombstone(kind models.Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.tombs[kind], id)
}

type billCollection struct{ s *Store }

func (c billCollection) List(context.Context) ([]*models.Bill, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]*models.Bill, 0, len(c.s.st.bills))
	for _, b := range c.s.st.bills {
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c billCollection) Insert(_ context.Context, b *models.Bill) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.bills[b.ID]; ok {
		return storage.ErrExists
	}
	c.s.st.bills[b.ID] = *b
	return nil
}

func (c billCollection) Update(_ context.Context, b *models.Bill) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.bills[b.ID]; !ok {
		return storage.ErrNotFound
	}
	c.s.st.bills[b.ID] = *b
	return nil
}

func (c billCollection) Delete(_ context.Context, b *models.Bill) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if stored, ok := c.s.st.bills[b.ID]; ok {
		delete(c.s.st.bills, b.ID)
		c.s.bury(models.KindBill, b.ID, stored.UpdatedAt)
	}
	return nil
}

func (c billCollection) Tombstones(context.Context) ([]models.Tombstone, error) {
	return c.s.tombstones(models.KindBill), nil
}

func (c billCollection) ClearTombstone(_ context.Context, id string) error {
	c.s.clearTombstone(models.KindBill, id)
	return nil
}

type goalCollection struct{ s *Store }

func (c goalCollection) List(context.Context) ([]*models.SavingsGoal, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]*models.SavingsGoal, 0, len(c.s.st.goals))
	for _, g := range c.s.st.goals {
		g := g
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TargetDate.Equal(out[j].TargetDate) {
			return out[i].TargetDate.Before(out[j].TargetDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c goalCollection) Insert(_ context.Context, g *models.SavingsGoal) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.goals[g.ID]; ok {
		return storage.ErrExists
	}
	c.s.st.goals[g.ID] = *g
	return nil
}

func (c goalCollection) Update(_ context.Context, g *models.SavingsGoal) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.goals[g.ID]; !ok {
		return storage.ErrNotFound
	}
	c.s.st.goals[g.ID] = *g
	return nil
}

func (c goalCollection) Delete(_ context.Context, g *models.SavingsGoal) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if stored, ok := c.s.st.goals[g.ID]; ok {
		delete(c.s.st.goals, g.ID)
		c.s.bury(models.KindSavingsGoal, g.ID, stored.UpdatedAt)
	}
	return nil
}

func (c goalCollection) Tombstones(context.Context) ([]models.Tombstone, error) {
	return c.s.tombstones(models.KindSavingsGoal), nil
}

func (c goalCollection) ClearTombstone(_ context.Context, id string) error {
	c.s.clearTombstone(models.KindSavingsGoal, id)
	return nil
}

// settingsCollection holds at most one record; Insert and Update upsert,
// keeping the stored CreatedAt.
type settingsCollection struct{ s *Store }

func (c settingsCollection) List(context.Context) ([]*models.UserSettings, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	if c.s.st.settings == nil {
		return nil, nil
	}
	us := *c.s.st.settings
	return []*models.UserSettings{&us}, nil
}

func (c settingsCollection) Insert(ctx context.Context, us *models.UserSettings) error {
	return c.Update(ctx, us)
}

func (c settingsCollection) Update(_ context.Context, us *models.UserSettings) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	stored := *us
	if c.s.st.settings != nil {
		stored.CreatedAt = c.s.st.settings.CreatedAt
	}
	c.s.st.settings = &stored
	return nil
}

func (c settingsCollection) Delete(_ context.Context, us *models.UserSettings) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.st.settings != nil && c.s.st.settings.ID == us.ID {
		c.s.bury(models.KindUserSettings, us.ID, c.s.st.settings.UpdatedAt)
		c.s.st.settings = nil
	}
	return nil
}

func (c settingsCollection) Tombstones(context.Context) ([]models.Tombstone, error) {
	return c.s.tombstones(models.KindUserSettings), nil
}

func (c settingsCollection) ClearTombstone(_ context.Context, id string) error {
	c.s.clearTombstone(models.KindUserSettings, id)
	return nil
}
