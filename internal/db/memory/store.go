// Package memory implements db.Store in process memory. It backs guest
// sessions and offline use; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// Store is a mutex-guarded set of maps. Values are copied on the way in and
// out so callers never share memory with the store.
type Store struct {
	now      func() time.Time
	states   map[string]*models.ScoringState
	tasks    map[string]*models.Task // taskID -> task
	accounts map[string]*models.Account
	emails   map[string]string // email -> account ID
	guests   map[string]*models.Guest
	mu       sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the time source used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		states:   make(map[string]*models.ScoringState),
		tasks:    make(map[string]*models.Task),
		accounts: make(map[string]*models.Account),
		emails:   make(map[string]string),
		guests:   make(map[string]*models.Guest),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ db.Store = (*Store)(nil)

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// State methods

func (s *Store) GetState(_ context.Context, userID string) (*models.ScoringState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[userID]
	if !ok {
		return nil, fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
	}
	return st.Clone(), nil
}

func (s *Store) CreateState(_ context.Context, state *models.ScoringState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[state.UserID]; ok {
		return fmt.Errorf("scoring state for %s: %w", state.UserID, db.ErrDuplicate)
	}
	state.Version = 1
	s.states[state.UserID] = state.Clone()
	return nil
}

// UpdateState holds the write lock for the whole read-modify-write, so
// updates for every user are serialized.
func (s *Store) UpdateState(_ context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var working *models.ScoringState
	if cur, ok := s.states[userID]; ok {
		working = cur.Clone()
	} else {
		if init == nil {
			return nil, fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
		}
		working = init()
		working.UserID = userID
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version++
	s.states[userID] = working.Clone()
	return working, nil
}

func (s *Store) DeleteState(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// Task methods

func copyTask(t *models.Task) *models.Task {
	c := *t
	if t.ReviewedAt != nil {
		v := *t.ReviewedAt
		c.ReviewedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func (s *Store) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = db.NewID()
	}
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrDuplicate)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) GetTask(_ context.Context, userID, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok || t.UserID != userID {
		return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	return copyTask(t), nil
}

func (s *Store) ListTasks(_ context.Context, filter db.TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, t := range s.tasks {
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && t.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !t.Date.Before(filter.To) {
			continue
		}
		out = append(out, copyTask(t))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[task.ID]
	if !ok || cur.UserID != task.UserID {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrNotFound)
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) DeleteTask(_ context.Context, userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.UserID != userID {
		return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *Store) DeleteUserTasks(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tasks {
		if t.UserID == userID {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Account methods

func (s *Store) CreateAccount(_ context.Context, email, name, password string) (*models.Account, error) {
	email, name, err := db.ValidateAccount(email, name, password)
	if err != nil {
		return nil, err
	}
	hash, err := db.HashPassword(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[email]; ok {
		return nil, fmt.Errorf("account %s: %w", email, db.ErrDuplicate)
	}
	acc := &models.Account{
		ID:           db.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	s.accounts[acc.ID] = acc
	s.emails[email] = acc.ID

	out := *acc
	return &out, nil
}

func (s *Store) Authenticate(_ context.Context, email, password string) (*models.Account, error) {
	s.mu.RLock()
	id, ok := s.emails[db.NormalizeEmail(email)]
	var acc models.Account
	if ok {
		acc = *s.accounts[id]
	}
	s.mu.RUnlock()

	if !ok || !db.CheckPassword(acc.PasswordHash, password) {
		return nil, fmt.Errorf("invalid credentials: %w", db.ErrNotFound)
	}
	return &acc, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, db.ErrNotFound)
	}
	out := *acc
	return &out, nil
}

// Guest methods

func (s *Store) SaveGuest(_ context.Context, guestID, name string) (*models.Guest, error) {
	name, err := db.ValidateGuestName(name)
	if err != nil {
		return nil, err
	}
	if guestID == "" {
		return nil, fmt.Errorf("%w: guest ID is required", db.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	g, ok := s.guests[guestID]
	if ok {
		g.Name = name
		g.LastActive = now
	} else {
		g = &models.Guest{
			ID:          db.NewID(),
			GuestID:     guestID,
			Name:        name,
			Preferences: models.DefaultPreferences(),
			VisitCount:  1,
			LastActive:  now,
			CreatedAt:   now,
		}
		s.guests[guestID] = g
	}
	out := *g
	return &out, nil
}

func (s *Store) GetGuest(_ context.Context, guestID string) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guests[guestID]
	if !ok {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	out := *g
	return &out, nil
}

func (s *Store) TouchGuest(_ context.Context, guestID string) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guests[guestID]
	if !ok {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	g.LastActive = s.now()
	g.VisitCount++
	out := *g
	return &out, nil
}

func (s *Store) UpdatePreferences(_ context.Context, guestID string, patch models.PreferencesPatch) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guests[guestID]
	if !ok {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	g.Preferences = patch.Apply(g.Preferences)
	g.LastActive = s.now()
	out := *g
	return &out, nil
}

func (s *Store) DeleteGuest(_ context.Context, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.guests[guestID]; !ok {
		return fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	delete(s.guests, guestID)
	return nil
}

func (s *Store) StaleGuests(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, g := range s.guests {
		if g.LastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
