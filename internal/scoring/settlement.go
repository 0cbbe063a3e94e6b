package scoring

import (
	"time"

	"github.com/thebtf/dailyscore/pkg/models"
)

// SettlementResult describes one weekly settlement.
type SettlementResult struct {
	SettledAt   time.Time             `json:"settled_at"`
	Boundary    time.Time             `json:"boundary"`
	Points      models.CategoryPoints `json:"points"`
	Adjustments []Adjustment          `json:"adjustments"`
	NewBadges   []models.Badge        `json:"new_badges"`
}

// NeedsSettlement reports whether the weekly boundary has been crossed since
// the state was last settled.
func (e *Engine) NeedsSettlement(state *models.ScoringState, now time.Time) bool {
	if state.LastWeeklyUpdate == nil {
		return true
	}
	return state.LastWeeklyUpdate.Before(e.cal.LastBoundary(now))
}

// Settle adjusts points from the cycle counters, resets the counters,
// evaluates badges against weekTasks, and stamps LastWeeklyUpdate. It runs
// unconditionally; lazy callers check NeedsSettlement first.
func (e *Engine) Settle(state *models.ScoringState, weekTasks []models.Task, now time.Time) SettlementResult {
	result := SettlementResult{
		SettledAt: now,
		Boundary:  e.cal.LastBoundary(now),
	}

	result.Adjustments = e.ApplyWeeklyAdjustment(state)
	e.ResetWeekly(state)
	result.NewBadges = e.EvaluateBadges(state, weekTasks, now)

	settled := now
	state.LastWeeklyUpdate = &settled

	result.Points = make(models.CategoryPoints, len(state.CategoryPoints))
	for k, v := range state.CategoryPoints {
		result.Points[k] = v
	}

	e.log.Info().
		Str("user", state.UserID).
		Int("adjusted", len(result.Adjustments)).
		Int("badges", len(result.NewBadges)).
		Time("boundary", result.Boundary).
		Msg("weekly settlement completed")

	return result
}
