// Package dbtest holds the behavior every db.Store backend must share.
package dbtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// StoreSuite runs the shared conformance tests. Backends embed it and set
// NewStore; every test gets a fresh, empty store.
type StoreSuite struct {
	suite.Suite
	NewStore func() db.Store
	store    db.Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// Store returns the store under test.
func (s *StoreSuite) Store() db.Store { return s.store }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTask(userID, title string, date time.Time) *models.Task {
	return &models.Task{
		ID:           db.NewID(),
		UserID:       userID,
		Title:        title,
		Category:     models.CategoryWork,
		Status:       models.StatusPending,
		Points:       10,
		AIConfidence: 0.5,
		Date:         date,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// =============================================================================
// SCORING STATE
// =============================================================================

func (s *StoreSuite) TestState_CreateGetRoundTrip() {
	st := models.NewScoringState("u1", 10)
	st.CategoryPoints[models.CategoryHealth] = 14
	st.WeeklyStats[models.CategoryWork] = models.CategoryStats{Completed: 1, Total: 3}
	last := day(2025, 3, 4)
	st.Streaks = models.Streaks{Current: 2, Longest: 5, LastCompletedDate: &last}
	st.Badges = models.BadgeList{{Name: "First Task", Description: "d", EarnedAt: last}}

	s.Require().NoError(s.store.CreateState(s.ctx, st))

	got, err := s.store.GetState(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(14, got.CategoryPoints[models.CategoryHealth])
	s.Equal(models.CategoryStats{Completed: 1, Total: 3}, got.WeeklyStats[models.CategoryWork])
	s.Equal(2, got.Streaks.Current)
	s.Equal(5, got.Streaks.Longest)
	s.Require().NotNil(got.Streaks.LastCompletedDate)
	s.True(last.Equal(*got.Streaks.LastCompletedDate))
	s.Require().Len(got.Badges, 1)
	s.Equal("First Task", got.Badges[0].Name)
	s.Nil(got.LastWeeklyUpdate)
}

func (s *StoreSuite) TestState_GetMissing() {
	_, err := s.store.GetState(s.ctx, "nobody")
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *StoreSuite) TestState_CreateDuplicate() {
	s.Require().NoError(s.store.CreateState(s.ctx, models.NewScoringState("u1", 10)))
	err := s.store.CreateState(s.ctx, models.NewScoringState("u1", 10))
	s.ErrorIs(err, db.ErrDuplicate)
}

func (s *StoreSuite) TestState_UpdateCreatesFromInit() {
	init := func() *models.ScoringState { return models.NewScoringState("", 10) }

	got, err := s.store.UpdateState(s.ctx, "u2", init, func(st *models.ScoringState) error {
		st.CategoryPoints[models.CategoryWork] = 12
		return nil
	})
	s.Require().NoError(err)
	s.Equal("u2", got.UserID)

	stored, err := s.store.GetState(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(12, stored.CategoryPoints[models.CategoryWork])
}

func (s *StoreSuite) TestState_UpdateWithoutInitMissing() {
	_, err := s.store.UpdateState(s.ctx, "ghost", nil, func(*models.ScoringState) error { return nil })
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *StoreSuite) TestState_UpdateErrorWritesNothing() {
	s.Require().NoError(s.store.CreateState(s.ctx, models.NewScoringState("u1", 10)))
	boom := errors.New("boom")

	_, err := s.store.UpdateState(s.ctx, "u1", nil, func(st *models.ScoringState) error {
		st.CategoryPoints[models.CategoryWork] = 20
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.GetState(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(10, got.CategoryPoints[models.CategoryWork])
}

func (s *StoreSuite) TestState_ConcurrentUpdatesAreSerialized() {
	s.Require().NoError(s.store.CreateState(s.ctx, models.NewScoringState("u1", 10)))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.UpdateState(s.ctx, "u1", nil, func(st *models.ScoringState) error {
				ws := st.WeeklyStats[models.CategoryWork]
				ws.Total++
				st.WeeklyStats[models.CategoryWork] = ws
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.GetState(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(workers, got.WeeklyStats[models.CategoryWork].Total)
}

func (s *StoreSuite) TestState_Delete() {
	s.Require().NoError(s.store.CreateState(s.ctx, models.NewScoringState("u1", 10)))
	s.Require().NoError(s.store.DeleteState(s.ctx, "u1"))
	s.Require().NoError(s.store.DeleteState(s.ctx, "u1"))

	_, err := s.store.GetState(s.ctx, "u1")
	s.ErrorIs(err, db.ErrNotFound)
}

// =============================================================================
// TASKS
// =============================================================================

func (s *StoreSuite) TestTask_CreateGetUpdate() {
	t := newTask("u1", "Write report", day(2025, 3, 5))
	s.Require().NoError(s.store.CreateTask(s.ctx, t))

	got, err := s.store.GetTask(s.ctx, "u1", t.ID)
	s.Require().NoError(err)
	s.Equal("Write report", got.Title)
	s.Equal(models.StatusPending, got.Status)
	s.True(t.Date.Equal(got.Date))

	got.MarkDone(time.Now().UTC().Truncate(time.Millisecond))
	s.Require().NoError(s.store.UpdateTask(s.ctx, got))

	again, err := s.store.GetTask(s.ctx, "u1", t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDone, again.Status)
	s.True(again.Reviewed)
	s.NotNil(again.CompletedAt)
}

func (s *StoreSuite) TestTask_OtherUserCannotSee() {
	t := newTask("u1", "Private", day(2025, 3, 5))
	s.Require().NoError(s.store.CreateTask(s.ctx, t))

	_, err := s.store.GetTask(s.ctx, "u2", t.ID)
	s.ErrorIs(err, db.ErrNotFound)

	s.ErrorIs(s.store.DeleteTask(s.ctx, "u2", t.ID), db.ErrNotFound)
}

func (s *StoreSuite) TestTask_ListFilters() {
	d1, d2, d3 := day(2025, 3, 3), day(2025, 3, 4), day(2025, 3, 5)
	a := newTask("u1", "a", d1)
	b := newTask("u1", "b", d2)
	c := newTask("u1", "c", d3)
	c.Status = models.StatusDone
	other := newTask("u2", "x", d2)
	for _, t := range []*models.Task{c, a, b, other} {
		s.Require().NoError(s.store.CreateTask(s.ctx, t))
	}

	all, err := s.store.ListTasks(s.ctx, db.TaskFilter{UserID: "u1"})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"a", "b", "c"}, []string{all[0].Title, all[1].Title, all[2].Title})

	window, err := s.store.ListTasks(s.ctx, db.TaskFilter{UserID: "u1", From: d2, To: d3})
	s.Require().NoError(err)
	s.Require().Len(window, 1)
	s.Equal("b", window[0].Title)

	done, err := s.store.ListTasks(s.ctx, db.TaskFilter{UserID: "u1", Status: models.StatusDone})
	s.Require().NoError(err)
	s.Require().Len(done, 1)
	s.Equal("c", done[0].Title)
}

func (s *StoreSuite) TestTask_DeleteAndDeleteUser() {
	a := newTask("u1", "a", day(2025, 3, 3))
	b := newTask("u1", "b", day(2025, 3, 3))
	s.Require().NoError(s.store.CreateTask(s.ctx, a))
	s.Require().NoError(s.store.CreateTask(s.ctx, b))

	s.Require().NoError(s.store.DeleteTask(s.ctx, "u1", a.ID))
	_, err := s.store.GetTask(s.ctx, "u1", a.ID)
	s.ErrorIs(err, db.ErrNotFound)

	n, err := s.store.DeleteUserTasks(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *StoreSuite) TestTask_UpdateMissing() {
	t := newTask("u1", "never stored", day(2025, 3, 3))
	s.ErrorIs(s.store.UpdateTask(s.ctx, t), db.ErrNotFound)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *StoreSuite) TestAccount_RegisterAndAuthenticate() {
	acc, err := s.store.CreateAccount(s.ctx, " Jane@Example.com ", "Jane", "secret1")
	s.Require().NoError(err)
	s.Equal("jane@example.com", acc.Email)
	s.NotEmpty(acc.ID)
	s.NotEqual("secret1", acc.PasswordHash)

	got, err := s.store.Authenticate(s.ctx, "JANE@example.com", "secret1")
	s.Require().NoError(err)
	s.Equal(acc.ID, got.ID)

	_, err = s.store.Authenticate(s.ctx, "jane@example.com", "wrong!")
	s.ErrorIs(err, db.ErrNotFound)

	byID, err := s.store.GetAccount(s.ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal("Jane", byID.Name)
}

func (s *StoreSuite) TestAccount_DuplicateEmail() {
	_, err := s.store.CreateAccount(s.ctx, "jane@example.com", "Jane", "secret1")
	s.Require().NoError(err)
	_, err = s.store.CreateAccount(s.ctx, "JANE@example.com", "Other", "secret2")
	s.ErrorIs(err, db.ErrDuplicate)
}

func (s *StoreSuite) TestAccount_Invalid() {
	_, err := s.store.CreateAccount(s.ctx, "jane@example.com", "Jane", "123")
	s.ErrorIs(err, db.ErrInvalid)

	_, err = s.store.GetAccount(s.ctx, "missing")
	s.ErrorIs(err, db.ErrNotFound)
}

// =============================================================================
// GUESTS
// =============================================================================

func (s *StoreSuite) TestGuest_Lifecycle() {
	g, err := s.store.SaveGuest(s.ctx, "g-1", "  Alex ")
	s.Require().NoError(err)
	s.Equal("Alex", g.Name)
	s.Equal(1, g.VisitCount)
	s.Equal(models.DefaultPreferences(), g.Preferences)

	g, err = s.store.SaveGuest(s.ctx, "g-1", "Alexis")
	s.Require().NoError(err)
	s.Equal("Alexis", g.Name)
	s.Equal(1, g.VisitCount)

	g, err = s.store.GetGuest(s.ctx, "g-1")
	s.Require().NoError(err)
	s.Equal(1, g.VisitCount, "reading is not a visit")

	g, err = s.store.TouchGuest(s.ctx, "g-1")
	s.Require().NoError(err)
	s.Equal(2, g.VisitCount)

	dark := "dark"
	g, err = s.store.UpdatePreferences(s.ctx, "g-1", models.PreferencesPatch{Theme: &dark})
	s.Require().NoError(err)
	s.Equal(models.Preferences{Theme: "dark", Notifications: true}, g.Preferences)

	s.Require().NoError(s.store.DeleteGuest(s.ctx, "g-1"))
	s.ErrorIs(s.store.DeleteGuest(s.ctx, "g-1"), db.ErrNotFound)

	_, err = s.store.TouchGuest(s.ctx, "g-1")
	s.ErrorIs(err, db.ErrNotFound)
	_, err = s.store.GetGuest(s.ctx, "g-1")
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *StoreSuite) TestGuest_InvalidName() {
	_, err := s.store.SaveGuest(s.ctx, "g-1", "A")
	s.ErrorIs(err, db.ErrInvalid)
}

func (s *StoreSuite) TestGuest_Stale() {
	_, err := s.store.SaveGuest(s.ctx, "g-old", "Old")
	s.Require().NoError(err)

	stale, err := s.store.StaleGuests(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Contains(stale, "g-old")

	fresh, err := s.store.StaleGuests(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.NotContains(fresh, "g-old")
}
