package scoring

import (
	"time"

	"github.com/thebtf/dailyscore/pkg/models"
)

// OnTaskCompleted advances the streak for a completion at completedAt.
// Only the first completion of a calendar day counts; later ones are no-ops.
// Returns true when the streak changed.
func (e *Engine) OnTaskCompleted(state *models.ScoringState, completedAt time.Time) bool {
	today := e.cal.Day(completedAt)
	s := &state.Streaks

	if s.LastCompletedDate != nil && e.cal.SameDay(*s.LastCompletedDate, today) {
		return false
	}

	if e.GetConfig().StreakGapPolicy == GapReset && s.LastCompletedDate != nil &&
		e.cal.DaysBetween(*s.LastCompletedDate, today) > 1 {
		e.log.Debug().
			Str("user", state.UserID).
			Int("previous", s.Current).
			Msg("streak broken by skipped day")
		s.Current = 0
	}

	s.Current++
	s.Longest = max(s.Current, s.Longest)
	s.LastCompletedDate = &today
	return true
}
