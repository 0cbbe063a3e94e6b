package scoring

import (
	"time"

	"github.com/thebtf/dailyscore/pkg/models"
)

// Badge names.
const (
	BadgeFirstTask   = "First Task"
	Badge3DayStreak  = "3 Day Streak"
	Badge7DayStreak  = "7 Day Streak"
	Badge30DayStreak = "30 Day Streak"
	BadgePerfectWeek = "Perfect Week"
)

// BadgeRule awards a badge when Qualifies returns true.
type BadgeRule struct {
	Qualifies   func(state *models.ScoringState, weekTasks []models.Task) bool
	Name        string
	Description string
}

func streakAtLeast(n int) func(*models.ScoringState, []models.Task) bool {
	return func(state *models.ScoringState, _ []models.Task) bool {
		return state.Streaks.Current >= n
	}
}

func perfectWeek(_ *models.ScoringState, weekTasks []models.Task) bool {
	if len(weekTasks) == 0 {
		return false
	}
	for i := range weekTasks {
		if weekTasks[i].Status != models.StatusDone {
			return false
		}
	}
	return true
}

// BadgeRules lists every badge in evaluation order.
var BadgeRules = []BadgeRule{
	{Name: BadgeFirstTask, Description: "Completed your first task!", Qualifies: streakAtLeast(1)},
	{Name: Badge3DayStreak, Description: "Maintained a 3-day completion streak!", Qualifies: streakAtLeast(3)},
	{Name: Badge7DayStreak, Description: "Maintained a 7-day completion streak!", Qualifies: streakAtLeast(7)},
	{Name: Badge30DayStreak, Description: "Maintained a 30-day completion streak!", Qualifies: streakAtLeast(30)},
	{Name: BadgePerfectWeek, Description: "Completed all tasks in a week!", Qualifies: perfectWeek},
}

// EvaluateBadges appends every qualifying badge the user does not own yet and
// returns the newly earned ones in rule order. Calling it again with the same
// inputs earns nothing.
func (e *Engine) EvaluateBadges(state *models.ScoringState, weekTasks []models.Task, now time.Time) []models.Badge {
	var earned []models.Badge
	for _, rule := range BadgeRules {
		if state.HasBadge(rule.Name) || !rule.Qualifies(state, weekTasks) {
			continue
		}
		b := models.Badge{
			Name:        rule.Name,
			Description: rule.Description,
			EarnedAt:    now,
		}
		state.Badges = append(state.Badges, b)
		earned = append(earned, b)
	}

	if len(earned) > 0 {
		e.log.Debug().
			Str("user", state.UserID).
			Int("count", len(earned)).
			Msg("badges earned")
	}
	return earned
}
