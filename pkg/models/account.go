package models

import (
	"time"
)

// Account is a registered user. PasswordHash never leaves the process.
type Account struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
}

// Guest is an unregistered visitor whose scoring state is kept ephemerally.
type Guest struct {
	CreatedAt   time.Time   `json:"created_at"`
	LastActive  time.Time   `json:"last_active"`
	ID          string      `json:"id"`
	GuestID     string      `json:"guest_id"`
	Name        string      `json:"name"`
	Preferences Preferences `json:"preferences"`
	VisitCount  int         `json:"visit_count"`
}
