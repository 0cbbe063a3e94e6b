package scoring

import (
	"github.com/thebtf/dailyscore/pkg/models"
)

// AdjustmentReason explains a weekly point change.
type AdjustmentReason string

const (
	ReasonIncomplete AdjustmentReason = "incomplete"
	ReasonPerfect    AdjustmentReason = "perfect"
)

// Adjustment records one category's weekly point change.
type Adjustment struct {
	Category  models.Category  `json:"category"`
	Reason    AdjustmentReason `json:"reason"`
	Before    int              `json:"before"`
	After     int              `json:"after"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
}

// CurrentPoints returns the point value a new task in category receives.
// The result is always within the configured bounds.
func (e *Engine) CurrentPoints(state *models.ScoringState, category models.Category) int {
	cfg := e.GetConfig()
	v, ok := state.CategoryPoints[category]
	if !ok {
		return cfg.DefaultPoints
	}
	return cfg.clamp(v)
}

// ApplyWeeklyAdjustment moves each category's points according to last cycle's
// counters:
//
//   - no tasks in any category: no change at all
//   - no tasks in the category: unchanged
//   - completed < total: +IncompleteStep, capped at MaxPoints
//   - completed == total: -PerfectStep, floored at MinPoints
//
// The rules track raw under- or over-completion, not the completion ratio.
func (e *Engine) ApplyWeeklyAdjustment(state *models.ScoringState) []Adjustment {
	e.normalize(state)

	if state.WeeklyTotal() == 0 {
		e.log.Debug().Str("user", state.UserID).Msg("no tasks this cycle, keeping points unchanged")
		return nil
	}

	cfg := e.GetConfig()
	var adjustments []Adjustment
	for _, c := range models.AllCategories {
		stats := state.WeeklyStats[c]
		if stats.Total == 0 {
			continue
		}

		before := cfg.clamp(state.CategoryPoints[c])
		adj := Adjustment{
			Category:  c,
			Before:    before,
			Completed: stats.Completed,
			Total:     stats.Total,
		}

		if stats.Completed < stats.Total {
			adj.Reason = ReasonIncomplete
			adj.After = cfg.clamp(before + cfg.IncompleteStep)
		} else {
			adj.Reason = ReasonPerfect
			adj.After = cfg.clamp(before - cfg.PerfectStep)
		}
		state.CategoryPoints[c] = adj.After

		e.log.Debug().
			Str("user", state.UserID).
			Str("category", string(c)).
			Int("before", adj.Before).
			Int("after", adj.After).
			Int("completed", stats.Completed).
			Int("total", stats.Total).
			Msg("adjusted category points")

		adjustments = append(adjustments, adj)
	}
	return adjustments
}
