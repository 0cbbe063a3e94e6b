// Package tracker runs the task and scoring workflows for one user at a time.
// It ties the scoring engine to persistence, the classifier and the clock.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/dailyscore/internal/calendar"
	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/pkg/models"
)

var (
	// ErrTaskAlreadyReviewed is returned when a done or missed task is reviewed again.
	ErrTaskAlreadyReviewed = errors.New("tracker: task already reviewed")
	// ErrInvalidTask is returned for malformed task input.
	ErrInvalidTask = errors.New("tracker: invalid task")
)

// Store is the persistence the tracker needs.
type Store interface {
	db.StateStore
	db.TaskStore
}

// Classifier assigns a category to task text. It never fails.
type Classifier interface {
	Classify(ctx context.Context, title, description string) classifier.Result
}

// Event types published by the tracker.
const (
	EventTaskCreated  = "task.created"
	EventTaskReviewed = "task.reviewed"
	EventTaskDeleted  = "task.deleted"
	EventBadgesEarned = "badges.earned"
	EventWeekSettled  = "week.settled"
)

// Event is a change notification for live clients.
type Event struct {
	At     time.Time   `json:"at"`
	Data   interface{} `json:"data,omitempty"`
	Type   string      `json:"type"`
	UserID string      `json:"user_id"`
}

// EventPublisher receives tracker events.
type EventPublisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(event Event) { f(event) }

// Options configures a Tracker. Store and Engine are required.
type Options struct {
	Store      Store
	Engine     *scoring.Engine
	Classifier Classifier
	Clock      calendar.Clock
	Events     EventPublisher
	Meter      metric.Meter
}

// lockStripes bounds the per-user mutex table.
const lockStripes = 64

// Tracker is safe for concurrent use.
type Tracker struct {
	store    Store
	engine   *scoring.Engine
	cls      Classifier
	clock    calendar.Clock
	events   EventPublisher
	metrics  *metrics
	log      zerolog.Logger
	userLock [lockStripes]sync.Mutex
}

// New creates a Tracker.
func New(opts Options, log zerolog.Logger) (*Tracker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tracker: store is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("tracker: scoring engine is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = fallbackClassifier{}
	}
	if opts.Clock == nil {
		opts.Clock = calendar.SystemClock{}
	}
	if opts.Events == nil {
		opts.Events = PublisherFunc(func(Event) {})
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("github.com/thebtf/dailyscore/internal/tracker")
	}

	l := log.With().Str("component", "tracker").Logger()
	return &Tracker{
		store:   opts.Store,
		engine:  opts.Engine,
		cls:     opts.Classifier,
		clock:   opts.Clock,
		events:  opts.Events,
		metrics: newMetrics(opts.Meter, l),
		log:     l,
	}, nil
}

type fallbackClassifier struct{}

func (fallbackClassifier) Classify(_ context.Context, title, description string) classifier.Result {
	return classifier.Fallback(title, description)
}

// Engine returns the scoring engine.
func (t *Tracker) Engine() *scoring.Engine {
	return t.engine
}

func (t *Tracker) calendar() *calendar.Calendar {
	return t.engine.Calendar()
}

// lock serializes task mutations for one user inside this process so a task
// cannot be counted twice by concurrent reviews.
func (t *Tracker) lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &t.userLock[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (t *Tracker) publish(typ, userID string, data interface{}) {
	t.events.Publish(Event{Type: typ, UserID: userID, Data: data, At: t.clock.Now()})
}

// InitUser creates the scoring state for a new user. An existing state is
// left untouched.
func (t *Tracker) InitUser(ctx context.Context, userID string) (*models.ScoringState, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrInvalidTask)
	}
	st := t.newState(userID, t.clock.Now())
	err := t.store.CreateState(ctx, st)
	if errors.Is(err, db.ErrDuplicate) {
		return t.store.GetState(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ResetUser drops a user's state and tasks.
func (t *Tracker) ResetUser(ctx context.Context, userID string) error {
	defer t.lock(userID)()
	if _, err := t.store.DeleteUserTasks(ctx, userID); err != nil {
		return err
	}
	return t.store.DeleteState(ctx, userID)
}

// newState starts a user at the current cycle so nothing is settled for
// weeks that predate them.
func (t *Tracker) newState(userID string, now time.Time) *models.ScoringState {
	st := t.engine.NewState(userID)
	stamp := now
	st.LastWeeklyUpdate = &stamp
	return st
}

// errSettlementDrift aborts an update whose transaction found a settlement
// due that the pre-read did not load week tasks for.
var errSettlementDrift = errors.New("tracker: settlement became due during update")

// settleAttempts bounds retries after errSettlementDrift.
const settleAttempts = 3

// update settles the state if a boundary has passed and then applies fn,
// all in one atomic store update. A missing state is db.ErrNotFound: states
// are created by InitUser before any task can refer to them.
func (t *Tracker) update(ctx context.Context, userID string, now time.Time, fn db.StateFunc) (*models.ScoringState, *scoring.SettlementResult, error) {
	var err error
	for range settleAttempts {
		var (
			st      *models.ScoringState
			settled *scoring.SettlementResult
		)
		st, settled, err = t.updateOnce(ctx, userID, now, fn)
		if errors.Is(err, errSettlementDrift) {
			t.log.Debug().Str("user", userID).Msg("Settlement became due mid-update, reloading week tasks")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if settled != nil {
			t.afterSettlement(ctx, userID, settled)
		}
		return st, settled, nil
	}
	return nil, nil, err
}

func (t *Tracker) updateOnce(ctx context.Context, userID string, now time.Time, fn db.StateFunc) (*models.ScoringState, *scoring.SettlementResult, error) {
	loaded, weekTasks, err := t.settlementInput(ctx, userID, now)
	if err != nil {
		return nil, nil, err
	}

	var settled *scoring.SettlementResult
	st, err := t.store.UpdateState(ctx, userID, nil, func(st *models.ScoringState) error {
		settled = nil
		if t.engine.NeedsSettlement(st, now) {
			if !loaded {
				return errSettlementDrift
			}
			res := t.engine.Settle(st, weekTasks, now)
			settled = &res
		}
		if fn != nil {
			return fn(st)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return st, settled, nil
}

// revert applies a compensating change after a task write failed. It never
// settles, so it undoes exactly what the preceding update recorded.
func (t *Tracker) revert(ctx context.Context, userID, what string, fn db.StateFunc) {
	if _, err := t.store.UpdateState(ctx, userID, nil, fn); err != nil {
		t.log.Error().Err(err).Str("user", userID).Str("change", what).Msg("Failed to roll back scoring state")
	}
}

// settlementInput peeks at the stored state and, when settlement is due,
// loads the tasks of the week that just closed.
func (t *Tracker) settlementInput(ctx context.Context, userID string, now time.Time) (bool, []models.Task, error) {
	st, err := t.store.GetState(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if !t.engine.NeedsSettlement(st, now) {
		return false, nil, nil
	}
	w := t.calendar().SettlementWindow(t.calendar().LastBoundary(now))
	tasks, err := t.windowTasks(ctx, userID, w)
	if err != nil {
		return false, nil, err
	}
	return true, tasks, nil
}

func (t *Tracker) windowTasks(ctx context.Context, userID string, w calendar.Window) ([]models.Task, error) {
	list, err := t.store.ListTasks(ctx, db.TaskFilter{UserID: userID, From: w.Start, To: w.End})
	if err != nil {
		return nil, fmt.Errorf("load week tasks: %w", err)
	}
	out := make([]models.Task, 0, len(list))
	for _, task := range list {
		out = append(out, *task)
	}
	return out, nil
}

func (t *Tracker) afterSettlement(ctx context.Context, userID string, res *scoring.SettlementResult) {
	t.metrics.settled(ctx, len(res.NewBadges))
	t.publish(EventWeekSettled, userID, res)
	if len(res.NewBadges) > 0 {
		t.publish(EventBadgesEarned, userID, res.NewBadges)
	}
}
