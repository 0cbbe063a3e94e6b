package models

import (
	"time"
)

// Task is a single daily task owned by one user.
type Task struct {
	CreatedAt    time.Time  `json:"created_at"`
	Date         time.Time  `json:"date"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     Category   `json:"category"`
	Status       TaskStatus `json:"status"`
	Points       int        `json:"points"`
	AIConfidence float64    `json:"ai_confidence"`
	Reviewed     bool       `json:"reviewed"`
}

// MarkDone moves a pending task to done.
func (t *Task) MarkDone(now time.Time) {
	t.Status = StatusDone
	t.CompletedAt = &now
	t.Reviewed = true
	t.ReviewedAt = &now
}

// MarkMissed moves a pending task to missed.
func (t *Task) MarkMissed(now time.Time) {
	t.Status = StatusMissed
	t.Reviewed = true
	t.ReviewedAt = &now
}

// TaskCounts aggregates task outcomes over a window.
type TaskCounts struct {
	Total       int `json:"total"`
	Completed   int `json:"completed"`
	Missed      int `json:"missed"`
	Pending     int `json:"pending"`
	TotalPoints int `json:"total_points"`
}

// Add folds one task into the counts. Points only accrue for done tasks.
func (c *TaskCounts) Add(t *Task) {
	c.Total++
	switch t.Status {
	case StatusDone:
		c.Completed++
		c.TotalPoints += t.Points
	case StatusMissed:
		c.Missed++
	default:
		c.Pending++
	}
}

// CompletionRate returns completed/total as a percentage, 0 when empty.
func (c TaskCounts) CompletionRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Completed) / float64(c.Total) * 100
}
