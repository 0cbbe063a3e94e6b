package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// migrations lists every schema change in order. IDs are never reused.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		// Migration 001: Scoring state aggregate
		{
			ID: "001_scoring_states",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ScoringState{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("scoring_states")
			},
		},

		// Migration 002: Tasks
		{
			ID: "002_tasks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Task{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tasks")
			},
		},

		// Migration 003: Accounts and guest profiles
		{
			ID: "003_accounts_guests",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Account{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Guest{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("accounts", "guests")
			},
		},

		// Migration 004: Partial index for the review queue
		{
			ID: "004_pending_tasks_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_pending_date
					ON tasks (user_id, date) WHERE status = 'pending'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_tasks_pending_date`).Error
			},
		},
	}
}

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	return m.Migrate()
}
