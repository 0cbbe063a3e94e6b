package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// maxStateRetries bounds retries when two first writes race on insert.
const maxStateRetries = 5

var errVersionMismatch = errors.New("version mismatch")

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetState returns the stored scoring state for userID.
func (s *Store) GetState(ctx context.Context, userID string) (*models.ScoringState, error) {
	var row ScoringState
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring state: %w", err)
	}
	return row.toModel(), nil
}

// CreateState stores a new scoring state with version 1.
func (s *Store) CreateState(ctx context.Context, state *models.ScoringState) error {
	state.Version = 1
	row := stateFromModel(state)
	row.UpdatedAt = s.now()
	err := s.DB.WithContext(ctx).Create(row).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("scoring state for %s: %w", state.UserID, db.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create scoring state: %w", err)
	}
	return nil
}

// UpdateState locks the row with SELECT ... FOR UPDATE, applies fn and saves
// the result with a version check.
func (s *Store) UpdateState(ctx context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	for attempt := 0; attempt < maxStateRetries; attempt++ {
		st, err := s.updateStateOnce(ctx, userID, init, fn)
		if errors.Is(err, errVersionMismatch) {
			continue
		}
		return st, err
	}
	return nil, fmt.Errorf("update scoring state for %s: %w", userID, db.ErrConflict)
}

func (s *Store) updateStateOnce(ctx context.Context, userID string, init func() *models.ScoringState, fn db.StateFunc) (*models.ScoringState, error) {
	var out *models.ScoringState
	err := s.TransactionWithTimeout(ctx, DefaultQueryTimeout, func(tx *gorm.DB) error {
		var row ScoringState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&row).Error

		var st *models.ScoringState
		fresh := false
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if init == nil {
				return fmt.Errorf("scoring state for %s: %w", userID, db.ErrNotFound)
			}
			st = init()
			st.UserID = userID
			st.Version = 0
			fresh = true
		case err != nil:
			return fmt.Errorf("load scoring state: %w", err)
		default:
			st = row.toModel()
		}

		if err := fn(st); err != nil {
			return err
		}

		prev := st.Version
		st.Version = prev + 1
		next := stateFromModel(st)
		next.UpdatedAt = s.now()

		if fresh {
			if err := tx.Create(next).Error; err != nil {
				if isUniqueViolation(err) {
					return errVersionMismatch
				}
				return fmt.Errorf("insert scoring state: %w", err)
			}
			out = st
			return nil
		}

		res := tx.Model(&ScoringState{}).
			Where("user_id = ? AND version = ?", userID, prev).
			Updates(map[string]interface{}{
				"category_points":       next.CategoryPoints,
				"weekly_stats":          next.WeeklyStats,
				"badges":                next.Badges,
				"streak_current":        next.StreakCurrent,
				"streak_longest":        next.StreakLongest,
				"streak_last_completed": next.StreakLastCompleted,
				"last_weekly_update":    next.LastWeeklyUpdate,
				"version":               next.Version,
				"updated_at":            next.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update scoring state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errVersionMismatch
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteState removes a user's scoring state.
func (s *Store) DeleteState(ctx context.Context, userID string) error {
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&ScoringState{}).Error
	if err != nil {
		return fmt.Errorf("delete scoring state: %w", err)
	}
	return nil
}
