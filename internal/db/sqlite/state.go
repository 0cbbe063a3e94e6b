package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// maxStateRetries bounds optimistic retries when another process wins the
// version race.
const maxStateRetries = 5

const stateColumns = `user_id, category_points, weekly_stats, streak_current, streak_longest,
	streak_last_completed_epoch, badges, last_weekly_update_epoch, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*models.ScoringState, error) {
	var (
		st            models.ScoringState
		lastCompleted sql.NullInt64
		lastWeekly    sql.NullInt64
	)
	err := row.Scan(
		&st.UserID, &st.CategoryPoints, &st.WeeklyStats, &st.Streaks.Current, &st.Streaks.Longest,
		&lastCompleted, &st.Badges, &lastWeekly, &st.Version,
	)
	if err != nil {
		return nil, err
	}
	st.Streaks.LastCompletedDate = fromNullEpoch(lastCompleted)
	st.LastWeeklyUpdate = fromNullEpoch(lastWeekly)
	if st.Badges == nil {
		st.Badges = models.BadgeList{}
	}
	return &st, nil
}

// GetState returns the stored scoring state for userID.
func (s *Store) GetState(ctx context.Context, userID string) (*models.ScoringState, error) {
	row := s.queryRowContext(ctx, `SELECT `+stateColumns+` FROM scoring_states WHERE user_id = ?`, userID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring state: %w", err)
	}
	return st, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insertState(ctx context.Context, ex execer, st *models.ScoringState) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO scoring_states (`+stateColumns+`, updated_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.UserID, st.CategoryPoints, st.WeeklyStats, st.Streaks.Current, st.Streaks.Longest,
		nullEpoch(st.Streaks.LastCompletedDate), st.Badges, nullEpoch(st.LastWeeklyUpdate), st.Version,
		toEpoch(s.now()),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("scoring state for %s: %w", st.UserID, db.ErrDuplicate)
	}
	return err
}

// CreateState stores a new scoring state with version 1.
func (s *Store) CreateState(ctx context.Context, state *models.ScoringState) error {
	state.Version = 1
	if err := s.insertState(ctx, s.db, state); err != nil {
		return fmt.Errorf("create scoring state: %w", err)
	}
	return nil
}

// UpdateState applies fn inside a transaction and saves the result only if
// the row version is unchanged since it was read.
func (s *Store) UpdateState(ctx context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 0; attempt < maxStateRetries; attempt++ {
		st, err := s.updateStateOnce(ctx, userID, init, fn)
		if errors.Is(err, errVersionMismatch) {
			continue
		}
		return st, err
	}
	return nil, fmt.Errorf("update scoring state for %s: %w", userID, db.ErrConflict)
}

var errVersionMismatch = errors.New("version mismatch")

func (s *Store) updateStateOnce(ctx context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	st, err := scanState(tx.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM scoring_states WHERE user_id = ?`, userID))
	fresh := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if init == nil {
			return nil, fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
		}
		st = init()
		st.UserID = userID
		st.Version = 0
		fresh = true
	case err != nil:
		return nil, fmt.Errorf("load scoring state: %w", err)
	}

	if err := fn(st); err != nil {
		return nil, err
	}

	prev := st.Version
	st.Version = prev + 1

	if fresh {
		if err := s.insertState(ctx, tx, st); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return nil, errVersionMismatch
			}
			return nil, fmt.Errorf("insert scoring state: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE scoring_states
			SET category_points = ?, weekly_stats = ?, streak_current = ?, streak_longest = ?,
				streak_last_completed_epoch = ?, badges = ?, last_weekly_update_epoch = ?,
				version = ?, updated_at_epoch = ?
			WHERE user_id = ? AND version = ?`,
			st.CategoryPoints, st.WeeklyStats, st.Streaks.Current, st.Streaks.Longest,
			nullEpoch(st.Streaks.LastCompletedDate), st.Badges, nullEpoch(st.LastWeeklyUpdate),
			st.Version, toEpoch(s.now()), userID, prev,
		)
		if isBusy(err) {
			return nil, errVersionMismatch
		}
		if err != nil {
			return nil, fmt.Errorf("update scoring state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, errVersionMismatch
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit scoring state: %w", err)
	}
	return st, nil
}

// DeleteState removes a user's scoring state.
func (s *Store) DeleteState(ctx context.Context, userID string) error {
	if _, err := s.execContext(ctx, `DELETE FROM scoring_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete scoring state: %w", err)
	}
	return nil
}
