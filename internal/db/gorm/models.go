package gorm

import (
	"time"

	"github.com/thebtf/dailyscore/pkg/models"
)

// GORM Models
//
// JSON column types come from pkg/models and implement sql.Scanner and
// driver.Valuer; they are stored as jsonb.

// ScoringState is the per-user scoring aggregate row.
type ScoringState struct {
	UpdatedAt           time.Time
	StreakLastCompleted *time.Time
	LastWeeklyUpdate    *time.Time
	CategoryPoints      models.CategoryPoints `gorm:"type:jsonb;not null"`
	WeeklyStats         models.WeeklyStats    `gorm:"type:jsonb;not null"`
	UserID              string                `gorm:"primaryKey"`
	Badges              models.BadgeList      `gorm:"type:jsonb;not null;default:'[]'"`
	StreakCurrent       int                   `gorm:"not null;default:0"`
	StreakLongest       int                   `gorm:"not null;default:0"`
	Version             int64                 `gorm:"not null;default:1"`
}

func (ScoringState) TableName() string { return "scoring_states" }

func stateFromModel(m *models.ScoringState) *ScoringState {
	return &ScoringState{
		UserID:              m.UserID,
		CategoryPoints:      m.CategoryPoints,
		WeeklyStats:         m.WeeklyStats,
		Badges:              m.Badges,
		StreakCurrent:       m.Streaks.Current,
		StreakLongest:       m.Streaks.Longest,
		StreakLastCompleted: m.Streaks.LastCompletedDate,
		LastWeeklyUpdate:    m.LastWeeklyUpdate,
		Version:             m.Version,
	}
}

func (r *ScoringState) toModel() *models.ScoringState {
	badges := r.Badges
	if badges == nil {
		badges = models.BadgeList{}
	}
	return &models.ScoringState{
		UserID:         r.UserID,
		CategoryPoints: r.CategoryPoints,
		WeeklyStats:    r.WeeklyStats,
		Badges:         badges,
		Streaks: models.Streaks{
			Current:           r.StreakCurrent,
			Longest:           r.StreakLongest,
			LastCompletedDate: r.StreakLastCompleted,
		},
		LastWeeklyUpdate: r.LastWeeklyUpdate,
		Version:          r.Version,
	}
}

// Task is a stored task row.
type Task struct {
	CreatedAt    time.Time `gorm:"not null"`
	Date         time.Time `gorm:"index:idx_tasks_user_date,priority:2;not null"`
	ReviewedAt   *time.Time
	CompletedAt  *time.Time
	ID           string            `gorm:"primaryKey"`
	UserID       string            `gorm:"index:idx_tasks_user_date,priority:1;index:idx_tasks_user_status,priority:1;not null"`
	Title        string            `gorm:"not null"`
	Description  string            `gorm:"not null;default:''"`
	Category     models.Category   `gorm:"type:text;check:category IN ('work', 'health', 'personal', 'learning');not null"`
	Status       models.TaskStatus `gorm:"type:text;check:status IN ('pending', 'done', 'missed');default:'pending';index:idx_tasks_user_status,priority:2;not null"`
	Points       int               `gorm:"not null"`
	AIConfidence float64           `gorm:"not null;default:0.5"`
	Reviewed     bool              `gorm:"not null;default:false"`
}

func (Task) TableName() string { return "tasks" }

func taskFromModel(m *models.Task) *Task {
	return &Task{
		ID:           m.ID,
		UserID:       m.UserID,
		Title:        m.Title,
		Description:  m.Description,
		Category:     m.Category,
		Status:       m.Status,
		Points:       m.Points,
		AIConfidence: m.AIConfidence,
		Reviewed:     m.Reviewed,
		Date:         m.Date,
		ReviewedAt:   m.ReviewedAt,
		CompletedAt:  m.CompletedAt,
		CreatedAt:    m.CreatedAt,
	}
}

func (r *Task) toModel() *models.Task {
	return &models.Task{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Status:       r.Status,
		Points:       r.Points,
		AIConfidence: r.AIConfidence,
		Reviewed:     r.Reviewed,
		Date:         r.Date,
		ReviewedAt:   r.ReviewedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
	}
}

// Account is a registered user row.
type Account struct {
	CreatedAt    time.Time `gorm:"not null"`
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (r *Account) toModel() *models.Account {
	return &models.Account{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

// Guest is a guest profile row.
type Guest struct {
	CreatedAt   time.Time          `gorm:"not null"`
	LastActive  time.Time          `gorm:"index;not null"`
	ID          string             `gorm:"primaryKey"`
	GuestID     string             `gorm:"uniqueIndex;not null"`
	Name        string             `gorm:"not null"`
	Preferences models.Preferences `gorm:"type:jsonb;not null"`
	VisitCount  int                `gorm:"not null;default:1"`
}

func (Guest) TableName() string { return "guests" }

func (r *Guest) toModel() *models.Guest {
	return &models.Guest{
		ID:          r.ID,
		GuestID:     r.GuestID,
		Name:        r.Name,
		Preferences: r.Preferences,
		VisitCount:  r.VisitCount,
		LastActive:  r.LastActive,
		CreatedAt:   r.CreatedAt,
	}
}
