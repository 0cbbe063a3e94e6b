package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/dailyscore/internal/calendar"
	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/db/memory"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/pkg/models"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type stubClassifier struct {
	result classifier.Result
}

func (s stubClassifier) Classify(context.Context, string, string) classifier.Result {
	return s.result
}

type eventLog struct {
	events []Event
	mu     sync.Mutex
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

// TrackerSuite drives the tracker against the in-memory store with a fixed clock.
type TrackerSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *fakeClock
	store   *memory.Store
	events  *eventLog
	tracker *Tracker
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

// Wednesday 2025-03-05 12:00 UTC.
var wednesday = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func (s *TrackerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: wednesday}
	s.store = memory.New(memory.WithNow(s.clock.Now))
	s.events = &eventLog{}
	s.tracker = s.newTracker(nil)

	_, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)
}

func (s *TrackerSuite) newTracker(cls Classifier) *Tracker {
	return s.trackerOn(s.store, cls)
}

func (s *TrackerSuite) trackerOn(store Store, cls Classifier) *Tracker {
	engine := scoring.NewEngine(nil, calendar.New(time.UTC), zerolog.Nop())
	tr, err := New(Options{
		Store:      store,
		Engine:     engine,
		Classifier: cls,
		Clock:      s.clock,
		Events:     s.events,
	}, zerolog.Nop())
	s.Require().NoError(err)
	return tr
}

func strp(s string) *string { return &s }

// create advances the clock one second first so creation order is strict.
func (s *TrackerSuite) create(title, date string) *models.Task {
	s.clock.Set(s.clock.Now().Add(time.Second))
	in := NewTask{Title: title}
	if date != "" {
		in.Date = strp(date)
	}
	created, err := s.tracker.CreateTask(s.ctx, "u1", in)
	s.Require().NoError(err)
	return created.Task
}

func (s *TrackerSuite) state() *models.ScoringState {
	st, err := s.store.GetState(s.ctx, "u1")
	s.Require().NoError(err)
	return st
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *TrackerSuite) TestCreateTask_FallbackClassification() {
	created, err := s.tracker.CreateTask(s.ctx, "u1", NewTask{Title: "  Team meeting  ", Description: "prep the client report"})
	s.Require().NoError(err)

	task := created.Task
	s.Equal("Team meeting", task.Title)
	s.Equal(models.CategoryWork, task.Category)
	s.Equal(models.StatusPending, task.Status)
	s.Equal(10, task.Points)
	s.InDelta(classifier.FallbackConfidence, task.AIConfidence, 1e-9)
	s.True(task.Date.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
	s.Equal(classifier.SourceFallback, created.Categorization.Source)

	st := s.state()
	s.Equal(models.CategoryStats{Total: 1}, st.WeeklyStats[models.CategoryWork])
	s.Equal([]string{EventTaskCreated}, s.events.types())
}

func (s *TrackerSuite) TestCreateTask_UsesClassifierAndPointSnapshot() {
	s.tracker = s.newTracker(stubClassifier{result: classifier.Result{
		Category: models.CategoryLearning, Source: classifier.SourceModel, Confidence: 0.9,
	}})
	_, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)
	_, err = s.store.UpdateState(s.ctx, "u1", nil, func(st *models.ScoringState) error {
		st.CategoryPoints[models.CategoryLearning] = 14
		return nil
	})
	s.Require().NoError(err)

	task := s.create("Anything", "")
	s.Equal(models.CategoryLearning, task.Category)
	s.Equal(14, task.Points)
	s.InDelta(0.9, task.AIConfidence, 1e-9)
}

func (s *TrackerSuite) TestCreateTask_ExplicitDate() {
	task := s.create("Go for a run", "2025-03-04")
	s.True(task.Date.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))
	s.Equal(models.CategoryHealth, task.Category)
}

func (s *TrackerSuite) TestReviewTask_DoneCountsAndStreaks() {
	task := s.create("Workout at the gym", "")

	got, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)
	s.Equal(models.StatusDone, got.Status)
	s.True(got.Reviewed)
	s.NotNil(got.CompletedAt)

	st := s.state()
	s.Equal(models.CategoryStats{Completed: 1, Total: 1}, st.WeeklyStats[models.CategoryHealth])
	s.Equal(1, st.Streaks.Current)
	s.Equal(1, st.Streaks.Longest)

	// Next day extends the streak.
	s.clock.Set(wednesday.AddDate(0, 0, 1))
	next := s.create("Yoga class", "")
	_, err = s.tracker.ReviewTask(s.ctx, "u1", next.ID, models.StatusDone)
	s.Require().NoError(err)
	s.Equal(2, s.state().Streaks.Current)
}

func (s *TrackerSuite) TestReviewTask_MissedLeavesStats() {
	task := s.create("Read a book", "")

	got, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusMissed)
	s.Require().NoError(err)
	s.Equal(models.StatusMissed, got.Status)
	s.Nil(got.CompletedAt)

	st := s.state()
	s.Equal(models.CategoryStats{Total: 1}, st.WeeklyStats[models.CategoryLearning])
	s.Zero(st.Streaks.Current)
}

func (s *TrackerSuite) TestDeleteTask_DoneIsUncounted() {
	task := s.create("Client email", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)

	s.Require().NoError(s.tracker.DeleteTask(s.ctx, "u1", task.ID))

	s.Equal(models.CategoryStats{}, s.state().WeeklyStats[models.CategoryWork])
	_, err = s.store.GetTask(s.ctx, "u1", task.ID)
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *TrackerSuite) TestDeleteTask_PendingKeepsTotal() {
	task := s.create("Client email", "")
	s.Require().NoError(s.tracker.DeleteTask(s.ctx, "u1", task.ID))
	s.Equal(models.CategoryStats{Total: 1}, s.state().WeeklyStats[models.CategoryWork])
}

func (s *TrackerSuite) TestEditTask_KeepsSnapshot() {
	task := s.create("Client email", "")

	got, err := s.tracker.EditTask(s.ctx, "u1", task.ID, TaskEdit{
		Title: "Go to the gym", Description: " leg day ", Date: strp("2025-03-06"),
	})
	s.Require().NoError(err)
	s.Equal("Go to the gym", got.Title)
	s.Equal("leg day", got.Description)
	s.Equal(models.CategoryWork, got.Category)
	s.Equal(task.Points, got.Points)
	s.True(got.Date.Equal(time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)))
}

func (s *TrackerSuite) TestListings() {
	monday := s.create("old report", "2025-03-03")
	yesterday := s.create("yesterday report", "2025-03-04")
	reviewed := s.create("yesterday done", "2025-03-04")
	today := s.create("today report", "")

	all, err := s.tracker.TasksForDay(s.ctx, "u1", strp("2025-03-04"))
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(yesterday.ID, all[0].ID)
	s.Equal(reviewed.ID, all[1].ID)

	_, err = s.tracker.ReviewTask(s.ctx, "u1", reviewed.ID, models.StatusDone)
	s.Require().NoError(err)

	pending, err := s.tracker.PendingReview(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(yesterday.ID, pending[0].ID)

	todays, err := s.tracker.TasksForDay(s.ctx, "u1", nil)
	s.Require().NoError(err)
	s.Require().Len(todays, 1)
	s.Equal(today.ID, todays[0].ID)

	history, err := s.tracker.History(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(yesterday.ID, history[0].ID)
	s.Equal(monday.ID, history[2].ID)
}

func (s *TrackerSuite) TestSummary_CurrentWeek() {
	done := s.create("Project deadline", "")
	s.create("Office meeting", "")
	s.create("Last week's report", "2025-03-01")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", done.ID, models.StatusDone)
	s.Require().NoError(err)

	sum, err := s.tracker.Summary(s.ctx, "u1", nil)
	s.Require().NoError(err)

	s.Nil(sum.Settlement)
	s.True(sum.Week.Start.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	s.True(sum.Week.End.Equal(time.Date(2025, 3, 8, 23, 59, 59, 999_000_000, time.UTC)))
	s.True(sum.NextUpdate.Equal(time.Date(2025, 3, 9, 21, 0, 0, 0, time.UTC)))

	s.Equal(models.TaskCounts{Total: 2, Completed: 1, Pending: 1, TotalPoints: 10}, sum.Stats)
	s.InDelta(50.0, sum.CategoryStats[models.CategoryWork].CompletionRate, 1e-9)
	s.Equal(0, sum.CategoryStats[models.CategoryHealth].Total)

	// Weekly counters span the whole cycle, including the task dated last week.
	wp := sum.WeeklyStats[models.CategoryWork]
	s.Equal(1, wp.Completed)
	s.Equal(3, wp.Total)
	s.InDelta(100.0/3, wp.Percent, 1e-9)
	s.Equal(10, sum.CurrentPoints[models.CategoryWork])
	s.Equal(1, sum.Streaks.Current)
}

func (s *TrackerSuite) TestSummary_PastWeek() {
	s.create("Last week's report", "2025-03-01")

	sum, err := s.tracker.Summary(s.ctx, "u1", strp("2025-02-26"))
	s.Require().NoError(err)
	s.True(sum.Week.Start.Equal(time.Date(2025, 2, 23, 0, 0, 0, 0, time.UTC)))
	s.Equal(1, sum.Stats.Total)
}

func (s *TrackerSuite) TestSummary_LazySettlementAfterBoundary() {
	task := s.create("Project deadline", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)

	// Monday after the Sunday 21:00 boundary.
	monday := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.clock.Set(monday)

	sum, err := s.tracker.Summary(s.ctx, "u1", nil)
	s.Require().NoError(err)
	s.Require().NotNil(sum.Settlement)

	s.Equal(9, sum.CurrentPoints[models.CategoryWork])
	s.Equal(10, sum.CurrentPoints[models.CategoryHealth])
	s.Equal(WeeklyProgress{}, sum.WeeklyStats[models.CategoryWork])

	names := make([]string, 0, len(sum.Badges))
	for _, b := range sum.Badges {
		names = append(names, b.Name)
		s.True(b.EarnedAt.Equal(monday))
	}
	s.Equal([]string{scoring.BadgeFirstTask, scoring.BadgePerfectWeek}, names)

	st := s.state()
	s.Require().NotNil(st.LastWeeklyUpdate)
	s.True(st.LastWeeklyUpdate.Equal(monday))
	s.Contains(s.events.types(), EventWeekSettled)
	s.Contains(s.events.types(), EventBadgesEarned)

	again, err := s.tracker.Summary(s.ctx, "u1", nil)
	s.Require().NoError(err)
	s.Nil(again.Settlement)
	s.Equal(9, again.CurrentPoints[models.CategoryWork])
}

func (s *TrackerSuite) TestCreateTask_SettlesBeforeCounting() {
	s.create("Project deadline", "")

	s.clock.Set(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	task := s.create("Another meeting", "")

	// Last cycle had an unfinished work task: 10 + 2.
	s.Equal(12, task.Points)
	s.Equal(models.CategoryStats{Total: 1}, s.state().WeeklyStats[models.CategoryWork])
}

func (s *TrackerSuite) TestForceSettle() {
	s.create("Project deadline", "")

	res, err := s.tracker.ForceSettle(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(12, res.Points[models.CategoryWork])
	s.Require().Len(res.Adjustments, 1)
	s.Equal(scoring.ReasonIncomplete, res.Adjustments[0].Reason)

	st := s.state()
	s.Equal(models.CategoryStats{}, st.WeeklyStats[models.CategoryWork])
	s.True(st.LastWeeklyUpdate.Equal(s.clock.Now()))
}

func (s *TrackerSuite) TestSettleIfDue_NotDue() {
	_, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)

	res, err := s.tracker.SettleIfDue(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(res)
	s.Equal(int64(1), s.state().Version)
}

func (s *TrackerSuite) TestInitUser_Idempotent() {
	first, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(first.LastWeeklyUpdate)
	s.True(first.LastWeeklyUpdate.Equal(wednesday))

	s.create("Project deadline", "")

	again, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(1, again.WeeklyStats[models.CategoryWork].Total)
}

func (s *TrackerSuite) TestStreaksAndBadges() {
	_, err := s.tracker.InitUser(s.ctx, "u1")
	s.Require().NoError(err)

	streaks, err := s.tracker.Streaks(s.ctx, "u1")
	s.Require().NoError(err)
	s.Zero(streaks.Current)

	badges, err := s.tracker.Badges(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(badges)
}

func (s *TrackerSuite) TestNextUpdate() {
	next := s.tracker.NextUpdate()
	s.True(next.At.Equal(time.Date(2025, 3, 9, 21, 0, 0, 0, time.UTC)))
	s.Equal("105h0m0s", next.Until)
	s.Equal("Sunday, Mar 9 at 21:00 UTC", next.Formatted)
}

func (s *TrackerSuite) TestResetUser() {
	s.create("Project deadline", "")
	s.Require().NoError(s.tracker.ResetUser(s.ctx, "u1"))

	_, err := s.store.GetState(s.ctx, "u1")
	s.ErrorIs(err, db.ErrNotFound)
	tasks, err := s.tracker.History(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(tasks)
}

// =============================================================================
// EDGE CASES - Boundary conditions
// =============================================================================

func (s *TrackerSuite) TestConcurrentCreates() {
	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.tracker.CreateTask(s.ctx, "u1", NewTask{Title: "meeting"})
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	s.Equal(n, s.state().WeeklyStats[models.CategoryWork].Total)
}

func (s *TrackerSuite) TestTasksForDay_UnknownUserIsEmpty() {
	tasks, err := s.tracker.TasksForDay(s.ctx, "nobody", nil)
	s.Require().NoError(err)
	s.NotNil(tasks)
	s.Empty(tasks)
}

// =============================================================================
// BAD SCENARIOS - Error handling
// =============================================================================

func (s *TrackerSuite) TestCreateTask_Invalid() {
	_, err := s.tracker.CreateTask(s.ctx, "u1", NewTask{Title: "   "})
	s.ErrorIs(err, ErrInvalidTask)

	_, err = s.tracker.CreateTask(s.ctx, "u1", NewTask{Title: "ok", Date: strp("2025-13-01")})
	s.ErrorIs(err, ErrInvalidTask)

	s.Equal(int64(1), s.state().Version, "rejected input must not touch state")
}

func (s *TrackerSuite) TestCreateTask_UnregisteredUser() {
	_, err := s.tracker.CreateTask(s.ctx, "never-registered", NewTask{Title: "Project deadline"})
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.store.GetState(s.ctx, "never-registered")
	s.ErrorIs(err, db.ErrNotFound, "state must not be created implicitly")
	tasks, err := s.store.ListTasks(s.ctx, db.TaskFilter{UserID: "never-registered"})
	s.Require().NoError(err)
	s.Empty(tasks)
}

func (s *TrackerSuite) TestReviewTask_MissingState() {
	task := s.create("Project deadline", "")
	s.Require().NoError(s.store.DeleteState(s.ctx, "u1"))

	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.store.GetState(s.ctx, "u1")
	s.ErrorIs(err, db.ErrNotFound)
	got, err := s.store.GetTask(s.ctx, "u1", task.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
}

func (s *TrackerSuite) TestDeleteTask_DoneWithMissingState() {
	task := s.create("Project deadline", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)
	s.Require().NoError(s.store.DeleteState(s.ctx, "u1"))

	s.ErrorIs(s.tracker.DeleteTask(s.ctx, "u1", task.ID), db.ErrNotFound)
	_, err = s.store.GetState(s.ctx, "u1")
	s.ErrorIs(err, db.ErrNotFound)
	_, err = s.store.GetTask(s.ctx, "u1", task.ID)
	s.NoError(err, "task survives a failed uncount")
}

// =============================================================================
// FAILURE INJECTION - Store errors between the task and state writes
// =============================================================================

// faultyStore fails selected writes of the wrapped store.
type faultyStore struct {
	*memory.Store
	stateFailures int  // UpdateState calls to fail with ErrConflict
	failTaskWrite bool // UpdateTask and DeleteTask fail
	staleReads    int  // GetState calls that report a just-settled state
}

func (f *faultyStore) UpdateState(ctx context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	if f.stateFailures > 0 {
		f.stateFailures--
		return nil, db.ErrConflict
	}
	return f.Store.UpdateState(ctx, userID, init, fn)
}

func (f *faultyStore) UpdateTask(ctx context.Context, task *models.Task) error {
	if f.failTaskWrite {
		return errors.New("disk full")
	}
	return f.Store.UpdateTask(ctx, task)
}

func (f *faultyStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	if f.failTaskWrite {
		return errors.New("disk full")
	}
	return f.Store.DeleteTask(ctx, userID, taskID)
}

func (f *faultyStore) GetState(ctx context.Context, userID string) (*models.ScoringState, error) {
	st, err := f.Store.GetState(ctx, userID)
	if err == nil && f.staleReads > 0 {
		f.staleReads--
		// Looks settled at the far future, so no settlement seems due.
		future := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
		st.LastWeeklyUpdate = &future
	}
	return st, err
}

func (s *TrackerSuite) TestReviewTask_StateConflictKeepsTaskRetryable() {
	faulty := &faultyStore{Store: s.store, stateFailures: 1}
	tr := s.trackerOn(faulty, nil)
	task := s.create("Project deadline", "")

	_, err := tr.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.ErrorIs(err, db.ErrConflict)
	got, err := s.store.GetTask(s.ctx, "u1", task.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)

	_, err = tr.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)
	st := s.state()
	s.Equal(models.CategoryStats{Completed: 1, Total: 1}, st.WeeklyStats[models.CategoryWork])
	s.Equal(1, st.Streaks.Current)
}

func (s *TrackerSuite) TestReviewTask_TaskWriteFailureRevertsCredit() {
	faulty := &faultyStore{Store: s.store, failTaskWrite: true}
	tr := s.trackerOn(faulty, nil)
	task := s.create("Project deadline", "")

	_, err := tr.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().Error(err)
	st := s.state()
	s.Equal(models.CategoryStats{Total: 1}, st.WeeklyStats[models.CategoryWork])
	s.Equal(models.Streaks{}, st.Streaks)

	faulty.failTaskWrite = false
	_, err = tr.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)
	st = s.state()
	s.Equal(models.CategoryStats{Completed: 1, Total: 1}, st.WeeklyStats[models.CategoryWork])
	s.Equal(1, st.Streaks.Current)
}

func (s *TrackerSuite) TestDeleteTask_DeleteFailureRestoresCredit() {
	task := s.create("Project deadline", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)

	faulty := &faultyStore{Store: s.store, failTaskWrite: true}
	s.Require().Error(s.trackerOn(faulty, nil).DeleteTask(s.ctx, "u1", task.ID))

	s.Equal(models.CategoryStats{Completed: 1, Total: 1}, s.state().WeeklyStats[models.CategoryWork])
	_, err = s.store.GetTask(s.ctx, "u1", task.ID)
	s.NoError(err)
}

func (s *TrackerSuite) TestDeleteTask_StateFailureKeepsTask() {
	task := s.create("Project deadline", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)

	faulty := &faultyStore{Store: s.store, stateFailures: 1}
	s.ErrorIs(s.trackerOn(faulty, nil).DeleteTask(s.ctx, "u1", task.ID), db.ErrConflict)

	s.Equal(models.CategoryStats{Completed: 1, Total: 1}, s.state().WeeklyStats[models.CategoryWork])
	_, err = s.store.GetTask(s.ctx, "u1", task.ID)
	s.NoError(err)
}

func (s *TrackerSuite) TestUpdate_BoundaryCrossedAfterPeekStillJudgesWeek() {
	task := s.create("Project deadline", "")
	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)

	s.clock.Set(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	faulty := &faultyStore{Store: s.store, staleReads: 1}
	_, err = s.trackerOn(faulty, nil).CreateTask(s.ctx, "u1", NewTask{Title: "Another meeting"})
	s.Require().NoError(err)

	names := make([]string, 0)
	for _, b := range s.state().Badges {
		names = append(names, b.Name)
	}
	s.Contains(names, scoring.BadgePerfectWeek)
}

func (s *TrackerSuite) TestReviewTask_Errors() {
	task := s.create("Project deadline", "")

	_, err := s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusPending)
	s.ErrorIs(err, ErrInvalidTask)
	s.ErrorIs(err, models.ErrInvalidStatus)

	_, err = s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusDone)
	s.Require().NoError(err)
	_, err = s.tracker.ReviewTask(s.ctx, "u1", task.ID, models.StatusMissed)
	s.ErrorIs(err, ErrTaskAlreadyReviewed)
	s.Equal(1, s.state().WeeklyStats[models.CategoryWork].Completed)

	_, err = s.tracker.ReviewTask(s.ctx, "u1", "missing", models.StatusDone)
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.tracker.ReviewTask(s.ctx, "someone-else", task.ID, models.StatusDone)
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *TrackerSuite) TestUnknownUser() {
	_, err := s.tracker.Summary(s.ctx, "nobody", nil)
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.tracker.SettleIfDue(s.ctx, "nobody")
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.tracker.ForceSettle(s.ctx, "nobody")
	s.ErrorIs(err, db.ErrNotFound)

	_, err = s.tracker.Streaks(s.ctx, "nobody")
	s.ErrorIs(err, db.ErrNotFound)

	err = s.tracker.DeleteTask(s.ctx, "nobody", "x")
	s.ErrorIs(err, db.ErrNotFound)
}

func TestNew_RequiresStoreAndEngine(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(Options{Store: memory.New()}, zerolog.Nop())
	require.Error(t, err)
}
