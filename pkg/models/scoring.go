package models

import (
	"time"
)

// CategoryStats counts tasks for one category since the last weekly settlement.
type CategoryStats struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// CompletionPercent returns completed/total as a percentage, 0 when total is 0.
func (s CategoryStats) CompletionPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Streaks tracks consecutive-day completions.
type Streaks struct {
	LastCompletedDate *time.Time `json:"last_completed_date,omitempty"`
	Current           int        `json:"current"`
	Longest           int        `json:"longest"`
}

// Badge is a one-time achievement.
type Badge struct {
	EarnedAt    time.Time `json:"earned_at"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// ScoringState is the per-user scoring aggregate the engine mutates.
// Persistence loads it before and saves it after every engine call.
type ScoringState struct {
	LastWeeklyUpdate *time.Time     `json:"last_weekly_update,omitempty"`
	CategoryPoints   CategoryPoints `json:"category_points"`
	WeeklyStats      WeeklyStats    `json:"weekly_stats"`
	UserID           string         `json:"user_id"`
	Badges           BadgeList      `json:"badges"`
	Streaks          Streaks        `json:"streaks"`
	Version          int64          `json:"version"`
}

// NewScoringState returns a fresh state with every category at defaultPoints.
func NewScoringState(userID string, defaultPoints int) *ScoringState {
	s := &ScoringState{
		UserID:         userID,
		CategoryPoints: make(CategoryPoints, len(AllCategories)),
		WeeklyStats:    make(WeeklyStats, len(AllCategories)),
		Badges:         BadgeList{},
	}
	for _, c := range AllCategories {
		s.CategoryPoints[c] = defaultPoints
		s.WeeklyStats[c] = CategoryStats{}
	}
	return s
}

// HasBadge reports whether a badge with the given name was already earned.
func (s *ScoringState) HasBadge(name string) bool {
	for _, b := range s.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// WeeklyTotal sums task totals across all categories.
func (s *ScoringState) WeeklyTotal() int {
	total := 0
	for _, st := range s.WeeklyStats {
		total += st.Total
	}
	return total
}

// Clone returns a deep copy.
func (s *ScoringState) Clone() *ScoringState {
	if s == nil {
		return nil
	}
	out := *s
	out.CategoryPoints = make(CategoryPoints, len(s.CategoryPoints))
	for k, v := range s.CategoryPoints {
		out.CategoryPoints[k] = v
	}
	out.WeeklyStats = make(WeeklyStats, len(s.WeeklyStats))
	for k, v := range s.WeeklyStats {
		out.WeeklyStats[k] = v
	}
	out.Badges = append(BadgeList{}, s.Badges...)
	if s.LastWeeklyUpdate != nil {
		t := *s.LastWeeklyUpdate
		out.LastWeeklyUpdate = &t
	}
	if s.Streaks.LastCompletedDate != nil {
		t := *s.Streaks.LastCompletedDate
		out.Streaks.LastCompletedDate = &t
	}
	return &out
}
