// Package db defines the persistence interfaces shared by the dailyscore stores.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/thebtf/dailyscore/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("db: not found")
	// ErrConflict is returned when an optimistic update lost to a concurrent writer
	// more often than the retry budget allows.
	ErrConflict = errors.New("db: concurrent update conflict")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("db: duplicate")
)

// StateFunc mutates a scoring state inside UpdateState. Returning an error
// aborts the update and nothing is written.
type StateFunc func(state *models.ScoringState) error

// StateStore persists per-user scoring aggregates.
type StateStore interface {
	// GetState returns the stored state or ErrNotFound.
	GetState(ctx context.Context, userID string) (*models.ScoringState, error)
	// CreateState stores a new state; ErrDuplicate if one exists.
	CreateState(ctx context.Context, state *models.ScoringState) error
	// UpdateState runs fn against the current state and saves the result
	// atomically with respect to other UpdateState calls for the same user.
	// A missing state is created from init before fn runs.
	UpdateState(ctx context.Context, userID string, init func() *models.ScoringState, fn StateFunc) (*models.ScoringState, error)
	// DeleteState removes the state; missing states are not an error.
	DeleteState(ctx context.Context, userID string) error
}

// TaskFilter selects a user's tasks. Zero fields are ignored; From is
// inclusive and To exclusive on Task.Date.
type TaskFilter struct {
	From   time.Time
	To     time.Time
	UserID string
	Status models.TaskStatus
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	// GetTask returns the task if it belongs to userID, else ErrNotFound.
	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)
	// ListTasks returns matching tasks ordered by Date then CreatedAt.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	DeleteUserTasks(ctx context.Context, userID string) (int64, error)
}

// AccountStore persists registered users.
type AccountStore interface {
	// CreateAccount hashes password and stores the account; ErrDuplicate on email reuse.
	CreateAccount(ctx context.Context, email, name, password string) (*models.Account, error)
	// Authenticate returns the account when the password matches, else ErrNotFound.
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
}

// GuestStore persists guest profiles.
type GuestStore interface {
	// SaveGuest creates the profile or renames an existing one.
	SaveGuest(ctx context.Context, guestID, name string) (*models.Guest, error)
	// GetGuest returns the profile without recording a visit.
	GetGuest(ctx context.Context, guestID string) (*models.Guest, error)
	// TouchGuest bumps LastActive and VisitCount and returns the profile.
	TouchGuest(ctx context.Context, guestID string) (*models.Guest, error)
	// UpdatePreferences merges patch into the stored preferences.
	UpdatePreferences(ctx context.Context, guestID string, patch models.PreferencesPatch) (*models.Guest, error)
	DeleteGuest(ctx context.Context, guestID string) error
	// StaleGuests lists guest IDs inactive since before cutoff.
	StaleGuests(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Store bundles every capability a backend offers.
type Store interface {
	StateStore
	TaskStore
	AccountStore
	GuestStore
	Ping(ctx context.Context) error
	Close() error
}
