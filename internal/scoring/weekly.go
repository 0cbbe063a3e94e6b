package scoring

import (
	"github.com/thebtf/dailyscore/pkg/models"
)

// RecordCreated counts a newly created task toward the cycle total.
func (e *Engine) RecordCreated(state *models.ScoringState, category models.Category) {
	e.normalize(state)
	st := state.WeeklyStats[category]
	st.Total++
	state.WeeklyStats[category] = st
}

// RecordCompleted counts a completion. Completed never exceeds Total: a task
// created before the last settlement and completed after it is not credited,
// since its creation was counted in the previous cycle.
func (e *Engine) RecordCompleted(state *models.ScoringState, category models.Category) {
	e.normalize(state)
	st := state.WeeklyStats[category]
	if st.Completed < st.Total {
		st.Completed++
	}
	state.WeeklyStats[category] = st
}

// RecordDeleted removes a deleted done task from the counters, floored at 0.
// Deleting a task that was never completed leaves the counters untouched.
func (e *Engine) RecordDeleted(state *models.ScoringState, category models.Category, wasCompleted bool) {
	if !wasCompleted {
		return
	}
	e.normalize(state)
	st := state.WeeklyStats[category]
	st.Completed = max(st.Completed-1, 0)
	st.Total = max(st.Total-1, 0)
	state.WeeklyStats[category] = st
}

// ResetWeekly zeroes every category's counters.
func (e *Engine) ResetWeekly(state *models.ScoringState) {
	if state.WeeklyStats == nil {
		state.WeeklyStats = make(models.WeeklyStats, len(models.AllCategories))
	}
	for _, c := range models.AllCategories {
		state.WeeklyStats[c] = models.CategoryStats{}
	}
}
