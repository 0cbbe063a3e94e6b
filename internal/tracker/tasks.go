package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// NewTask is the input for CreateTask. Date is YYYY-MM-DD; nil or empty means today.
type NewTask struct {
	Date        *string `json:"date,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
}

// TaskEdit is the input for EditTask. A nil Date keeps the current day.
type TaskEdit struct {
	Date        *string `json:"date,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
}

// Created is the result of CreateTask.
type Created struct {
	Task           *models.Task      `json:"task"`
	Categorization classifier.Result `json:"categorization"`
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: task title is required", ErrInvalidTask)
	}
	return title, nil
}

// day resolves an optional YYYY-MM-DD to local midnight, defaulting to today.
func (t *Tracker) day(s *string, now time.Time) (time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return t.calendar().Day(now), nil
	}
	d, err := t.calendar().ParseDay(*s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return d, nil
}

// CreateTask classifies the task, snapshots the category's current points
// and counts it toward the weekly totals.
func (t *Tracker) CreateTask(ctx context.Context, userID string, in NewTask) (*Created, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return nil, err
	}
	now := t.clock.Now()
	date, err := t.day(in.Date, now)
	if err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(in.Description)

	res := t.cls.Classify(ctx, title, desc)

	defer t.lock(userID)()

	task := &models.Task{
		ID:           db.NewID(),
		UserID:       userID,
		Title:        title,
		Description:  desc,
		Category:     res.Category,
		Status:       models.StatusPending,
		AIConfidence: res.Confidence,
		Date:         date,
		CreatedAt:    now,
	}

	// Points are read and counted in the same update so the snapshot matches
	// the cycle the task is counted in.
	_, _, err = t.update(ctx, userID, now, func(st *models.ScoringState) error {
		task.Points = t.engine.CurrentPoints(st, task.Category)
		t.engine.RecordCreated(st, task.Category)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count task: %w", err)
	}

	if err := t.store.CreateTask(ctx, task); err != nil {
		t.revert(ctx, userID, "create", func(st *models.ScoringState) error {
			uncountCreated(st, task.Category)
			return nil
		})
		return nil, fmt.Errorf("store task: %w", err)
	}

	t.metrics.created(ctx, res)
	t.publish(EventTaskCreated, userID, task)
	t.log.Debug().
		Str("user", userID).
		Str("task", task.ID).
		Str("category", string(task.Category)).
		Str("source", string(res.Source)).
		Msg("Task created")

	return &Created{Task: task, Categorization: res}, nil
}

// uncountCreated reverses RecordCreated for a task that was never stored.
func uncountCreated(st *models.ScoringState, c models.Category) {
	stats := st.WeeklyStats[c]
	if stats.Total > 0 {
		stats.Total--
	}
	stats.Completed = min(stats.Completed, stats.Total)
	st.WeeklyStats[c] = stats
}

// TasksForDay lists the tasks of one calendar day in creation order.
// A nil or empty day means today.
func (t *Tracker) TasksForDay(ctx context.Context, userID string, day *string) ([]*models.Task, error) {
	now := t.clock.Now()
	d, err := t.day(day, now)
	if err != nil {
		return nil, err
	}
	if _, err := t.SettleIfDue(ctx, userID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	w := t.calendar().DayWindow(d)
	return t.list(ctx, db.TaskFilter{UserID: userID, From: w.Start, To: w.End})
}

// PendingReview lists yesterday's tasks that still await a verdict.
func (t *Tracker) PendingReview(ctx context.Context, userID string) ([]*models.Task, error) {
	w := t.calendar().DayWindow(t.calendar().Day(t.clock.Now()).AddDate(0, 0, -1))
	return t.list(ctx, db.TaskFilter{UserID: userID, From: w.Start, To: w.End, Status: models.StatusPending})
}

// History lists every task dated before today, newest day first and in
// creation order within a day.
func (t *Tracker) History(ctx context.Context, userID string) ([]*models.Task, error) {
	today := t.calendar().Day(t.clock.Now())
	tasks, err := t.list(ctx, db.TaskFilter{UserID: userID, To: today})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(tasks, func(a, b *models.Task) int {
		return b.Date.Compare(a.Date)
	})
	return tasks, nil
}

func (t *Tracker) list(ctx context.Context, filter db.TaskFilter) ([]*models.Task, error) {
	tasks, err := t.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}

// EditTask changes the text and day of a task. Category and points keep
// their creation snapshot.
func (t *Tracker) EditTask(ctx context.Context, userID, taskID string, in TaskEdit) (*models.Task, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return nil, err
	}

	defer t.lock(userID)()

	task, err := t.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	task.Title = title
	task.Description = strings.TrimSpace(in.Description)
	if in.Date != nil && strings.TrimSpace(*in.Date) != "" {
		d, err := t.day(in.Date, t.clock.Now())
		if err != nil {
			return nil, err
		}
		task.Date = d
	}
	if err := t.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ReviewTask records the verdict on a pending task. Done counts toward the
// weekly stats and the streak; missed only changes the status.
func (t *Tracker) ReviewTask(ctx context.Context, userID, taskID string, status models.TaskStatus) (*models.Task, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTask, models.ErrInvalidStatus)
	}

	defer t.lock(userID)()

	task, err := t.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrTaskAlreadyReviewed)
	}

	now := t.clock.Now()
	if status == models.StatusMissed {
		task.MarkMissed(now)
		if err := t.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		t.metrics.reviewed(ctx, status)
		t.publish(EventTaskReviewed, userID, task)
		return task, nil
	}

	// Credit first. If the state write fails the task stays pending and the
	// review can be retried; if the task write fails the credit is reverted.
	var (
		credited   bool
		prev, next models.Streaks
	)
	_, _, err = t.update(ctx, userID, now, func(st *models.ScoringState) error {
		before := st.WeeklyStats[task.Category].Completed
		prev = st.Streaks
		t.engine.RecordCompleted(st, task.Category)
		t.engine.OnTaskCompleted(st, now)
		credited = st.WeeklyStats[task.Category].Completed > before
		next = st.Streaks
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	task.MarkDone(now)
	if err := t.store.UpdateTask(ctx, task); err != nil {
		t.revert(ctx, userID, "review", func(st *models.ScoringState) error {
			if credited {
				stats := st.WeeklyStats[task.Category]
				stats.Completed = max(stats.Completed-1, 0)
				st.WeeklyStats[task.Category] = stats
			}
			if sameStreak(st.Streaks, next) {
				st.Streaks = prev
			}
			return nil
		})
		return nil, err
	}

	t.metrics.reviewed(ctx, status)
	t.publish(EventTaskReviewed, userID, task)
	return task, nil
}

func sameStreak(a, b models.Streaks) bool {
	if a.Current != b.Current || a.Longest != b.Longest {
		return false
	}
	if a.LastCompletedDate == nil || b.LastCompletedDate == nil {
		return a.LastCompletedDate == b.LastCompletedDate
	}
	return a.LastCompletedDate.Equal(*b.LastCompletedDate)
}

// DeleteTask removes a task and takes a completed task back out of the
// weekly stats.
func (t *Tracker) DeleteTask(ctx context.Context, userID, taskID string) error {
	defer t.lock(userID)()

	task, err := t.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.StatusDone {
		if err := t.store.DeleteTask(ctx, userID, taskID); err != nil {
			return err
		}
	} else {
		// Uncount before deleting; a failed delete puts the credit back.
		var stats models.CategoryStats
		_, _, err := t.update(ctx, userID, t.clock.Now(), func(st *models.ScoringState) error {
			stats = st.WeeklyStats[task.Category]
			t.engine.RecordDeleted(st, task.Category, true)
			return nil
		})
		if err != nil {
			return fmt.Errorf("uncount task: %w", err)
		}
		if err := t.store.DeleteTask(ctx, userID, taskID); err != nil {
			t.revert(ctx, userID, "delete", func(st *models.ScoringState) error {
				cur := st.WeeklyStats[task.Category]
				cur.Completed += min(stats.Completed, 1)
				cur.Total += min(stats.Total, 1)
				st.WeeklyStats[task.Category] = cur
				return nil
			})
			return err
		}
	}

	t.metrics.deleted(ctx)
	t.publish(EventTaskDeleted, userID, map[string]string{"id": taskID})
	return nil
}
