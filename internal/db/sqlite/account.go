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

	acc := &models.Account{
		ID:           db.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.execContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at_epoch)
		VALUES (?, ?, ?, ?, ?)`,
		acc.ID, acc.Email, acc.Name, acc.PasswordHash, toEpoch(acc.CreatedAt),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("account %s: %w", email, db.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (s *Store) accountBy(ctx context.Context, column, value string) (*models.Account, error) {
	var (
		acc       models.Account
		createdMs int64
	)
	err := s.queryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at_epoch FROM accounts WHERE `+column+` = ?`, value,
	).Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.CreatedAt = fromEpoch(createdMs)
	return &acc, nil
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
