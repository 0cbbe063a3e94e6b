// Package models contains domain models for dailyscore.
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCategory = errors.New("models: invalid category")
	ErrInvalidStatus   = errors.New("models: invalid task status")
)

// Category is one of the four fixed task buckets.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryPersonal Category = "personal"
	CategoryLearning Category = "learning"
)

// AllCategories lists the categories in declaration order.
// Keyword fallback ties are broken by this order.
var AllCategories = []Category{
	CategoryWork,
	CategoryHealth,
	CategoryPersonal,
	CategoryLearning,
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryHealth, CategoryPersonal, CategoryLearning:
		return true
	default:
		return false
	}
}

// ParseCategory normalizes s and validates it against the fixed category set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// TaskStatus is the review state of a task.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusDone    TaskStatus = "done"
	StatusMissed  TaskStatus = "missed"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDone, StatusMissed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusMissed
}

// ParseReviewStatus accepts only the terminal statuses a review may set.
func ParseReviewStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsTerminal() {
		return "", fmt.Errorf("%w: status must be either %q or %q", ErrInvalidStatus, StatusDone, StatusMissed)
	}
	return st, nil
}
