package scoring

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/thebtf/dailyscore/internal/calendar"
	"github.com/thebtf/dailyscore/pkg/models"
)

// Engine applies the scoring rules to a user's ScoringState.
// It holds no per-user data and never touches storage; callers load the
// state before and persist it after each call.
type Engine struct {
	log    zerolog.Logger
	config atomic.Pointer[Config]
	cal    *calendar.Calendar
}

// NewEngine creates a scoring engine.
// If config is nil, uses the default configuration.
func NewEngine(config *Config, cal *calendar.Calendar, log zerolog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if cal == nil {
		cal = calendar.New(nil)
	}
	e := &Engine{
		cal: cal,
		log: log.With().Str("component", "scoring").Logger(),
	}
	e.config.Store(config)
	return e
}

// NewState returns a fresh scoring state using the configured default points.
func (e *Engine) NewState(userID string) *models.ScoringState {
	return models.NewScoringState(userID, e.GetConfig().DefaultPoints)
}

// Calendar returns the calendar the engine normalizes days with.
func (e *Engine) Calendar() *calendar.Calendar {
	return e.cal
}

// UpdateConfig swaps the rules at runtime. Invalid configs are ignored.
func (e *Engine) UpdateConfig(config *Config) {
	if config == nil {
		return
	}
	if err := config.Validate(); err != nil {
		e.log.Warn().Err(err).Msg("ignoring invalid scoring config")
		return
	}
	e.config.Store(config)
}

// GetConfig returns the current scoring configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Load()
}

// normalize fills missing category entries so later reads never see a zero value.
func (e *Engine) normalize(state *models.ScoringState) {
	if state.CategoryPoints == nil {
		state.CategoryPoints = make(models.CategoryPoints, len(models.AllCategories))
	}
	if state.WeeklyStats == nil {
		state.WeeklyStats = make(models.WeeklyStats, len(models.AllCategories))
	}
	for _, c := range models.AllCategories {
		if _, ok := state.CategoryPoints[c]; !ok {
			state.CategoryPoints[c] = e.GetConfig().DefaultPoints
		}
		if _, ok := state.WeeklyStats[c]; !ok {
			state.WeeklyStats[c] = models.CategoryStats{}
		}
	}
}
