package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/pkg/models"
)

// WeekRange is an inclusive week span, Sunday 00:00 to Saturday 23:59:59.999.
type WeekRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CategoryBreakdown is the per-category view of a week's tasks.
type CategoryBreakdown struct {
	models.TaskCounts
	CompletionRate float64 `json:"completion_rate"`
}

// WeeklyProgress is one category's cycle counter with its completion percentage.
type WeeklyProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Summary is the weekly report for one user.
type Summary struct {
	NextUpdate    time.Time                             `json:"next_update"`
	Week          WeekRange                             `json:"week"`
	Settlement    *scoring.SettlementResult             `json:"settlement,omitempty"`
	CategoryStats map[models.Category]CategoryBreakdown `json:"category_stats"`
	CurrentPoints models.CategoryPoints                 `json:"current_points"`
	WeeklyStats   map[models.Category]WeeklyProgress    `json:"weekly_stats"`
	Badges        []models.Badge                        `json:"badges"`
	Streaks       models.Streaks                        `json:"streaks"`
	Stats         models.TaskCounts                     `json:"stats"`
}

// Summary settles the user if a boundary has passed and reports the week
// containing week (YYYY-MM-DD), or the current week when week is nil or empty.
func (t *Tracker) Summary(ctx context.Context, userID string, week *string) (*Summary, error) {
	now := t.clock.Now()
	anchor, err := t.day(week, now)
	if err != nil {
		return nil, err
	}

	settled, err := t.SettleIfDue(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := t.store.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}

	w := t.calendar().WeekWindow(anchor)
	tasks, err := t.list(ctx, db.TaskFilter{UserID: userID, From: w.Start, To: w.End})
	if err != nil {
		return nil, err
	}

	out := &Summary{
		Week:          WeekRange{Start: w.Start, End: w.LastInstant()},
		Settlement:    settled,
		CategoryStats: make(map[models.Category]CategoryBreakdown, len(models.AllCategories)),
		CurrentPoints: make(models.CategoryPoints, len(models.AllCategories)),
		WeeklyStats:   make(map[models.Category]WeeklyProgress, len(models.AllCategories)),
		Badges:        append([]models.Badge{}, st.Badges...),
		Streaks:       st.Streaks,
		NextUpdate:    t.calendar().NextBoundary(now),
	}

	perCategory := make(map[models.Category]*models.TaskCounts, len(models.AllCategories))
	for _, c := range models.AllCategories {
		perCategory[c] = &models.TaskCounts{}
	}
	for _, task := range tasks {
		out.Stats.Add(task)
		if counts, ok := perCategory[task.Category]; ok {
			counts.Add(task)
		}
	}

	for _, c := range models.AllCategories {
		counts := *perCategory[c]
		out.CategoryStats[c] = CategoryBreakdown{TaskCounts: counts, CompletionRate: counts.CompletionRate()}
		out.CurrentPoints[c] = t.engine.CurrentPoints(st, c)
		ws := st.WeeklyStats[c]
		out.WeeklyStats[c] = WeeklyProgress{Completed: ws.Completed, Total: ws.Total, Percent: ws.CompletionPercent()}
	}
	return out, nil
}

// SettleIfDue applies the weekly settlement when the user has not been
// settled since the last boundary. It returns nil when nothing was due.
func (t *Tracker) SettleIfDue(ctx context.Context, userID string) (*scoring.SettlementResult, error) {
	defer t.lock(userID)()

	now := t.clock.Now()
	st, err := t.store.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !t.engine.NeedsSettlement(st, now) {
		return nil, nil
	}

	_, settled, err := t.update(ctx, userID, now, nil)
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// ForceSettle runs the weekly settlement now regardless of the boundary,
// judging weekly badges on the current Sunday-to-Saturday week.
func (t *Tracker) ForceSettle(ctx context.Context, userID string) (*scoring.SettlementResult, error) {
	defer t.lock(userID)()

	now := t.clock.Now()
	weekTasks, err := t.windowTasks(ctx, userID, t.calendar().WeekWindow(now))
	if err != nil {
		return nil, err
	}

	var res scoring.SettlementResult
	_, err = t.store.UpdateState(ctx, userID, nil, func(st *models.ScoringState) error {
		res = t.engine.Settle(st, weekTasks, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.afterSettlement(ctx, userID, &res)
	return &res, nil
}

// Streaks returns the user's streak counters.
func (t *Tracker) Streaks(ctx context.Context, userID string) (models.Streaks, error) {
	st, err := t.store.GetState(ctx, userID)
	if err != nil {
		return models.Streaks{}, err
	}
	return st.Streaks, nil
}

// Badges returns the user's badges in the order they were earned.
func (t *Tracker) Badges(ctx context.Context, userID string) ([]models.Badge, error) {
	st, err := t.store.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append([]models.Badge{}, st.Badges...), nil
}

// Schedule describes the next weekly settlement instant.
type Schedule struct {
	At        time.Time `json:"at"`
	Until     string    `json:"until"`
	Formatted string    `json:"formatted"`
}

// NextUpdate reports the first settlement boundary after now.
func (t *Tracker) NextUpdate() Schedule {
	now := t.clock.Now()
	next := t.calendar().NextBoundary(now)
	return Schedule{
		At:        next,
		Until:     next.Sub(now).Round(time.Minute).String(),
		Formatted: next.In(t.calendar().Location()).Format("Monday, Jan 2 at 15:04 MST"),
	}
}

// State returns the raw scoring state, for diagnostics.
func (t *Tracker) State(ctx context.Context, userID string) (*models.ScoringState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrInvalidTask)
	}
	st, err := t.store.GetState(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("user %s has no scoring state: %w", userID, err)
	}
	return st, err
}
