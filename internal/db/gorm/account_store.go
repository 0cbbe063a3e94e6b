package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// CreateAccount validates input, hashes the password, and stores the account.
func (s *Store) CreateAccount(ctx context.Context, email, name, password string) (*models.Account, error) {
	email, name, err := db.ValidateAccount(email, name, password)
	if err != nil {
		return nil, err
	}
	hash, err := db.HashPassword(password)
	if err != nil {
		return nil, err
	}

	row := &Account{
		ID:           db.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}
	err = s.DB.WithContext(ctx).Create(row).Error
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("account %s: %w", email, db.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) accountBy(ctx context.Context, column, value string) (*models.Account, error) {
	var row Account
	err := s.DB.WithContext(ctx).Where(column+" = ?", value).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Authenticate returns the account when email and password match.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	acc, err := s.accountBy(ctx, "email", db.NormalizeEmail(email))
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if acc == nil || !db.CheckPassword(acc.PasswordHash, password) {
		return nil, fmt.Errorf("invalid credentials: %w", db.ErrNotFound)
	}
	return acc, nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.accountBy(ctx, "id", id)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	return acc, nil
}

// SaveGuest creates the guest profile or renames an existing one.
func (s *Store) SaveGuest(ctx context.Context, guestID, name string) (*models.Guest, error) {
	name, err := db.ValidateGuestName(name)
	if err != nil {
		return nil, err
	}
	if guestID == "" {
		return nil, fmt.Errorf("%w: guest ID is required", db.ErrInvalid)
	}

	now := s.now().UTC()
	row := &Guest{
		ID:          db.NewID(),
		GuestID:     guestID,
		Name:        name,
		Preferences: models.DefaultPreferences(),
		VisitCount:  1,
		LastActive:  now,
		CreatedAt:   now,
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "last_active"}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("save guest: %w", err)
	}
	return s.getGuest(ctx, s.DB, guestID)
}

func (s *Store) getGuest(ctx context.Context, q *gorm.DB, guestID string) (*models.Guest, error) {
	var row Guest
	err := q.WithContext(ctx).Where("guest_id = ?", guestID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get guest: %w", err)
	}
	return row.toModel(), nil
}

// GetGuest reads a profile.
func (s *Store) GetGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	return s.getGuest(ctx, s.DB, guestID)
}

// TouchGuest records a visit.
func (s *Store) TouchGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	res := s.DB.WithContext(ctx).Model(&Guest{}).
		Where("guest_id = ?", guestID).
		Updates(map[string]interface{}{
			"last_active": s.now().UTC(),
			"visit_count": gorm.Expr("visit_count + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("touch guest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	return s.getGuest(ctx, s.DB, guestID)
}

// UpdatePreferences merges patch into the stored preferences.
func (s *Store) UpdatePreferences(ctx context.Context, guestID string, patch models.PreferencesPatch) (*models.Guest, error) {
	var out *models.Guest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := s.getGuest(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), guestID)
		if err != nil {
			return err
		}
		g.Preferences = patch.Apply(g.Preferences)
		g.LastActive = s.now().UTC().Truncate(time.Microsecond)

		err = tx.Model(&Guest{}).Where("guest_id = ?", guestID).Updates(map[string]interface{}{
			"preferences": g.Preferences,
			"last_active": g.LastActive,
		}).Error
		if err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGuest removes a guest profile.
func (s *Store) DeleteGuest(ctx context.Context, guestID string) error {
	res := s.DB.WithContext(ctx).Where("guest_id = ?", guestID).Delete(&Guest{})
	if res.Error != nil {
		return fmt.Errorf("delete guest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	return nil
}

// StaleGuests lists guests inactive since before cutoff.
func (s *Store) StaleGuests(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&Guest{}).
		Where("last_active < ?", cutoff).
		Order("guest_id").
		Pluck("guest_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("stale guests: %w", err)
	}
	return ids, nil
}
