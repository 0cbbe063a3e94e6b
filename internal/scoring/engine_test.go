package scoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/dailyscore/internal/calendar"
	"github.com/thebtf/dailyscore/pkg/models"
)

// EngineSuite is a test suite for the scoring Engine.
type EngineSuite struct {
	suite.Suite
	engine *Engine
	state  *models.ScoringState
	now    time.Time
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(nil, calendar.New(time.UTC), zerolog.Nop())
	s.state = s.engine.NewState("user-1")
	// Wednesday
	s.now = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) setStats(c models.Category, completed, total int) {
	s.state.WeeklyStats[c] = models.CategoryStats{Completed: completed, Total: total}
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *EngineSuite) TestNewState_DefaultPoints() {
	for _, c := range models.AllCategories {
		s.Equal(10, s.engine.CurrentPoints(s.state, c))
		s.Equal(models.CategoryStats{}, s.state.WeeklyStats[c])
	}
	s.Zero(s.state.Streaks.Current)
	s.Empty(s.state.Badges)
}

func (s *EngineSuite) TestWeeklyAdjustment_GoodScenarios_AllCompletedLowersPoints() {
	s.setStats(models.CategoryWork, 4, 4)

	adj := s.engine.ApplyWeeklyAdjustment(s.state)

	s.Equal(9, s.state.CategoryPoints[models.CategoryWork])
	require.Len(s.T(), adj, 1)
	s.Equal(ReasonPerfect, adj[0].Reason)
	s.Equal(10, adj[0].Before)
	s.Equal(9, adj[0].After)
}

func (s *EngineSuite) TestWeeklyAdjustment_GoodScenarios_IncompleteRaisesPoints() {
	s.setStats(models.CategoryHealth, 1, 5)

	adj := s.engine.ApplyWeeklyAdjustment(s.state)

	s.Equal(12, s.state.CategoryPoints[models.CategoryHealth])
	require.Len(s.T(), adj, 1)
	s.Equal(ReasonIncomplete, adj[0].Reason)
}

func (s *EngineSuite) TestWeeklyAdjustment_GoodScenarios_UntouchedCategoryUnchanged() {
	s.setStats(models.CategoryWork, 1, 2)

	s.engine.ApplyWeeklyAdjustment(s.state)

	s.Equal(12, s.state.CategoryPoints[models.CategoryWork])
	s.Equal(10, s.state.CategoryPoints[models.CategoryHealth])
	s.Equal(10, s.state.CategoryPoints[models.CategoryPersonal])
	s.Equal(10, s.state.CategoryPoints[models.CategoryLearning])
}

func (s *EngineSuite) TestStreak_GoodScenarios_ConsecutiveDay() {
	yesterday := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	s.state.Streaks = models.Streaks{Current: 2, Longest: 2, LastCompletedDate: &yesterday}

	changed := s.engine.OnTaskCompleted(s.state, s.now)

	s.True(changed)
	s.Equal(3, s.state.Streaks.Current)
	s.Equal(3, s.state.Streaks.Longest)
	s.True(s.engine.Calendar().SameDay(s.now, *s.state.Streaks.LastCompletedDate))
}

func (s *EngineSuite) TestStreak_GoodScenarios_FirstCompletion() {
	s.True(s.engine.OnTaskCompleted(s.state, s.now))
	s.Equal(1, s.state.Streaks.Current)
	s.Equal(1, s.state.Streaks.Longest)
}

func (s *EngineSuite) TestBadges_GoodScenarios_ThreeDayStreakEarnsBoth() {
	yesterday := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	s.state.Streaks = models.Streaks{Current: 2, Longest: 2, LastCompletedDate: &yesterday}

	s.engine.OnTaskCompleted(s.state, s.now)
	earned := s.engine.EvaluateBadges(s.state, nil, s.now)

	require.Len(s.T(), earned, 2)
	s.Equal(BadgeFirstTask, earned[0].Name)
	s.Equal(Badge3DayStreak, earned[1].Name)
	s.Equal(s.now, earned[0].EarnedAt)
	s.Len(s.state.Badges, 2)
}

func (s *EngineSuite) TestBadges_GoodScenarios_PerfectWeek() {
	week := []models.Task{
		{ID: "a", Status: models.StatusDone},
		{ID: "b", Status: models.StatusDone},
	}

	earned := s.engine.EvaluateBadges(s.state, week, s.now)

	require.Len(s.T(), earned, 1)
	s.Equal(BadgePerfectWeek, earned[0].Name)
}

func (s *EngineSuite) TestWeekly_GoodScenarios_RecordAndReset() {
	s.engine.RecordCreated(s.state, models.CategoryLearning)
	s.engine.RecordCreated(s.state, models.CategoryLearning)
	s.engine.RecordCompleted(s.state, models.CategoryLearning)

	s.Equal(models.CategoryStats{Completed: 1, Total: 2}, s.state.WeeklyStats[models.CategoryLearning])

	s.engine.RecordDeleted(s.state, models.CategoryLearning, true)
	s.Equal(models.CategoryStats{Completed: 0, Total: 1}, s.state.WeeklyStats[models.CategoryLearning])

	s.engine.ResetWeekly(s.state)
	s.Zero(s.state.WeeklyTotal())
}

func (s *EngineSuite) TestSettle_GoodScenarios_FullCycle() {
	s.setStats(models.CategoryWork, 4, 4)
	s.setStats(models.CategoryHealth, 1, 5)

	res := s.engine.Settle(s.state, nil, s.now)

	s.Equal(9, res.Points[models.CategoryWork])
	s.Equal(12, res.Points[models.CategoryHealth])
	s.Len(res.Adjustments, 2)
	s.Zero(s.state.WeeklyTotal())
	require.NotNil(s.T(), s.state.LastWeeklyUpdate)
	s.Equal(s.now, *s.state.LastWeeklyUpdate)
	// Sunday 2 March 2025 at 21:00
	s.Equal(time.Date(2025, 3, 2, 21, 0, 0, 0, time.UTC), res.Boundary)
}

func (s *EngineSuite) TestNeedsSettlement_GoodScenarios() {
	s.True(s.engine.NeedsSettlement(s.state, s.now), "never settled")

	s.engine.Settle(s.state, nil, s.now)
	s.False(s.engine.NeedsSettlement(s.state, s.now.Add(time.Hour)))

	// Sunday 9 March 21:30 crosses the next boundary.
	after := time.Date(2025, 3, 9, 21, 30, 0, 0, time.UTC)
	s.True(s.engine.NeedsSettlement(s.state, after))

	before := time.Date(2025, 3, 9, 20, 59, 0, 0, time.UTC)
	s.False(s.engine.NeedsSettlement(s.state, before))
}

// =============================================================================
// EDGE CASES - Boundaries and idempotence
// =============================================================================

func (s *EngineSuite) TestWeeklyAdjustment_EdgeCases_NoTasksNoChange() {
	s.state.CategoryPoints[models.CategoryWork] = 17

	adj := s.engine.ApplyWeeklyAdjustment(s.state)

	s.Nil(adj)
	s.Equal(17, s.state.CategoryPoints[models.CategoryWork])
	s.Equal(10, s.state.CategoryPoints[models.CategoryHealth])
}

func (s *EngineSuite) TestWeeklyAdjustment_EdgeCases_BoundsHoldFromAnyStart() {
	for start := 5; start <= 20; start++ {
		for _, stats := range []models.CategoryStats{{Completed: 0, Total: 3}, {Completed: 3, Total: 3}} {
			state := s.engine.NewState("bounds")
			state.CategoryPoints[models.CategoryWork] = start
			state.WeeklyStats[models.CategoryWork] = stats

			s.engine.ApplyWeeklyAdjustment(state)

			got := state.CategoryPoints[models.CategoryWork]
			s.GreaterOrEqual(got, 5, "start=%d stats=%+v", start, stats)
			s.LessOrEqual(got, 20, "start=%d stats=%+v", start, stats)
		}
	}
}

func (s *EngineSuite) TestWeeklyAdjustment_EdgeCases_Clamped() {
	s.state.CategoryPoints[models.CategoryWork] = 19
	s.state.CategoryPoints[models.CategoryHealth] = 5
	s.setStats(models.CategoryWork, 0, 1)
	s.setStats(models.CategoryHealth, 2, 2)

	s.engine.ApplyWeeklyAdjustment(s.state)

	s.Equal(20, s.state.CategoryPoints[models.CategoryWork])
	s.Equal(5, s.state.CategoryPoints[models.CategoryHealth])
}

func (s *EngineSuite) TestCurrentPoints_EdgeCases_OutOfRangeStoredValue() {
	s.state.CategoryPoints[models.CategoryWork] = 42
	delete(s.state.CategoryPoints, models.CategoryHealth)

	s.Equal(20, s.engine.CurrentPoints(s.state, models.CategoryWork))
	s.Equal(10, s.engine.CurrentPoints(s.state, models.CategoryHealth))
}

func (s *EngineSuite) TestStreak_EdgeCases_SameDayIsNoop() {
	s.engine.OnTaskCompleted(s.state, s.now)
	before := s.state.Streaks

	s.False(s.engine.OnTaskCompleted(s.state, s.now.Add(3*time.Hour)))
	s.Equal(before.Current, s.state.Streaks.Current)
	s.Equal(before.Longest, s.state.Streaks.Longest)
}

func (s *EngineSuite) TestStreak_EdgeCases_LongestNeverBelowCurrent() {
	day := s.now
	for i := 0; i < 10; i++ {
		s.engine.OnTaskCompleted(s.state, day)
		s.GreaterOrEqual(s.state.Streaks.Longest, s.state.Streaks.Current)
		day = day.AddDate(0, 0, 1)
	}
	s.Equal(10, s.state.Streaks.Current)
}

func (s *EngineSuite) TestStreak_EdgeCases_GapPreservedByDefault() {
	lastWeek := time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC)
	s.state.Streaks = models.Streaks{Current: 4, Longest: 4, LastCompletedDate: &lastWeek}

	s.engine.OnTaskCompleted(s.state, s.now)

	s.Equal(5, s.state.Streaks.Current)
}

func (s *EngineSuite) TestStreak_EdgeCases_GapResetPolicy() {
	cfg := DefaultConfig()
	cfg.StreakGapPolicy = GapReset
	s.engine.UpdateConfig(cfg)

	lastWeek := time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC)
	s.state.Streaks = models.Streaks{Current: 4, Longest: 6, LastCompletedDate: &lastWeek}

	s.engine.OnTaskCompleted(s.state, s.now)

	s.Equal(1, s.state.Streaks.Current)
	s.Equal(6, s.state.Streaks.Longest)
}

func (s *EngineSuite) TestBadges_EdgeCases_NoDuplicates() {
	s.state.Streaks.Current = 7
	first := s.engine.EvaluateBadges(s.state, nil, s.now)
	second := s.engine.EvaluateBadges(s.state, nil, s.now)

	s.Len(first, 3)
	s.Empty(second)

	seen := make(map[string]bool)
	for _, b := range s.state.Badges {
		s.False(seen[b.Name], "duplicate badge %s", b.Name)
		seen[b.Name] = true
	}
}

func (s *EngineSuite) TestBadges_EdgeCases_PerfectWeekNeedsTasks() {
	s.Empty(s.engine.EvaluateBadges(s.state, nil, s.now))

	mixed := []models.Task{
		{ID: "a", Status: models.StatusDone},
		{ID: "b", Status: models.StatusPending},
	}
	s.Empty(s.engine.EvaluateBadges(s.state, mixed, s.now))
}

func (s *EngineSuite) TestWeekly_EdgeCases_CompletedCappedAtTotal() {
	s.engine.RecordCompleted(s.state, models.CategoryWork)
	s.Equal(models.CategoryStats{}, s.state.WeeklyStats[models.CategoryWork])
}

func (s *EngineSuite) TestWeekly_EdgeCases_DeleteFloorsAtZero() {
	s.engine.RecordDeleted(s.state, models.CategoryWork, true)
	s.Equal(models.CategoryStats{}, s.state.WeeklyStats[models.CategoryWork])

	s.engine.RecordCreated(s.state, models.CategoryWork)
	s.engine.RecordDeleted(s.state, models.CategoryWork, false)
	s.Equal(1, s.state.WeeklyStats[models.CategoryWork].Total)
}

// =============================================================================
// BAD SCENARIOS - Invalid configuration
// =============================================================================

func (s *EngineSuite) TestUpdateConfig_BadScenarios_InvalidIgnored() {
	bad := DefaultConfig()
	bad.MinPoints = 30

	s.engine.UpdateConfig(bad)
	s.engine.UpdateConfig(nil)

	s.Equal(5, s.engine.GetConfig().MinPoints)
}

func TestParseGapPolicy(t *testing.T) {
	p, err := ParseGapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, GapPreserve, p)

	p, err = ParseGapPolicy(" Reset ")
	require.NoError(t, err)
	assert.Equal(t, GapReset, p)

	_, err = ParseGapPolicy("forgive")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero min", func(c *Config) { c.MinPoints = 0 }, true},
		{"max below min", func(c *Config) { c.MaxPoints = 4 }, true},
		{"default outside", func(c *Config) { c.DefaultPoints = 25 }, true},
		{"negative step", func(c *Config) { c.PerfectStep = -1 }, true},
		{"unknown policy", func(c *Config) { c.StreakGapPolicy = "x" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}
