package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

const guestColumns = `id, guest_id, name, preferences, visit_count, last_active_epoch, created_at_epoch`

func scanGuest(row rowScanner) (*models.Guest, error) {
	var (
		g          models.Guest
		lastActive int64
		createdAt  int64
	)
	if err := row.Scan(&g.ID, &g.GuestID, &g.Name, &g.Preferences, &g.VisitCount, &lastActive, &createdAt); err != nil {
		return nil, err
	}
	g.LastActive = fromEpoch(lastActive)
	g.CreatedAt = fromEpoch(createdAt)
	return &g, nil
}

func (s *Store) getGuest(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, guestID string) (*models.Guest, error) {
	g, err := scanGuest(q.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE guest_id = ?`, guestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get guest: %w", err)
	}
	return g, nil
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

	now := toEpoch(s.now())
	prefs := models.DefaultPreferences()
	_, err = s.execContext(ctx, `
		INSERT INTO guests (`+guestColumns+`)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(guest_id) DO UPDATE SET name = excluded.name, last_active_epoch = excluded.last_active_epoch`,
		db.NewID(), guestID, name, prefs, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save guest: %w", err)
	}
	return s.getGuest(ctx, s.db, guestID)
}

// TouchGuest records a visit.
// GetGuest reads a profile.
func (s *Store) GetGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	return s.getGuest(ctx, s.db, guestID)
}

func (s *Store) TouchGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	res, err := s.execContext(ctx, `
		UPDATE guests SET last_active_epoch = ?, visit_count = visit_count + 1 WHERE guest_id = ?`,
		toEpoch(s.now()), guestID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	return s.getGuest(ctx, s.db, guestID)
}

// UpdatePreferences merges patch into the stored preferences.
func (s *Store) UpdatePreferences(ctx context.Context, guestID string, patch models.PreferencesPatch) (*models.Guest, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	g, err := s.getGuest(ctx, tx, guestID)
	if err != nil {
		return nil, err
	}
	g.Preferences = patch.Apply(g.Preferences)
	g.LastActive = s.now().UTC().Truncate(time.Millisecond)

	if _, err := tx.ExecContext(ctx,
		`UPDATE guests SET preferences = ?, last_active_epoch = ? WHERE guest_id = ?`,
		g.Preferences, toEpoch(g.LastActive), guestID,
	); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit preferences: %w", err)
	}
	return g, nil
}

// DeleteGuest removes a guest profile.
func (s *Store) DeleteGuest(ctx context.Context, guestID string) error {
	res, err := s.execContext(ctx, `DELETE FROM guests WHERE guest_id = ?`, guestID)
	if err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("guest %s: %w", guestID, db.ErrNotFound)
	}
	return nil
}

// StaleGuests lists guests inactive since before cutoff.
func (s *Store) StaleGuests(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.queryContext(ctx,
		`SELECT guest_id FROM guests WHERE last_active_epoch < ? ORDER BY guest_id`, toEpoch(cutoff))
	if err != nil {
		return nil, fmt.Errorf("stale guests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
