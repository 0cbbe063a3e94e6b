package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// step is one schema change. Steps are numbered from 1 in slice order and
// the number of applied steps is kept in PRAGMA user_version.
type step struct {
	name string
	ddl  string
}

var steps = []step{
	{
		name: "scoring_states",
		ddl: `
			CREATE TABLE IF NOT EXISTS scoring_states (
				user_id TEXT PRIMARY KEY,
				category_points TEXT NOT NULL,
				weekly_stats TEXT NOT NULL,
				streak_current INTEGER NOT NULL DEFAULT 0,
				streak_longest INTEGER NOT NULL DEFAULT 0,
				streak_last_completed_epoch INTEGER,
				badges TEXT NOT NULL DEFAULT '[]',
				last_weekly_update_epoch INTEGER,
				version INTEGER NOT NULL DEFAULT 1,
				updated_at_epoch INTEGER NOT NULL
			);
		`,
	},
	{
		name: "tasks",
		ddl: `
			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL CHECK(category IN ('work', 'health', 'personal', 'learning')),
				status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'done', 'missed')),
				points INTEGER NOT NULL,
				ai_confidence REAL NOT NULL DEFAULT 0.5,
				reviewed INTEGER NOT NULL DEFAULT 0,
				date_epoch INTEGER NOT NULL,
				reviewed_at_epoch INTEGER,
				completed_at_epoch INTEGER,
				created_at_epoch INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_user_date ON tasks(user_id, date_epoch);
			CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
		`,
	},
	{
		name: "accounts_and_guests",
		ddl: `
			CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				created_at_epoch INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS guests (
				id TEXT PRIMARY KEY,
				guest_id TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				preferences TEXT NOT NULL,
				visit_count INTEGER NOT NULL DEFAULT 1,
				last_active_epoch INTEGER NOT NULL,
				created_at_epoch INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_guests_last_active ON guests(last_active_epoch);
		`,
	},
}

// migrate brings the schema up to date. Each step commits together with the
// user_version bump, so a crash leaves the file at a step boundary.
func migrate(ctx context.Context, sqlDB *sql.DB) (int, error) {
	current, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		return 0, err
	}
	if current > len(steps) {
		return 0, fmt.Errorf("database schema v%d is newer than this build (v%d)", current, len(steps))
	}

	for i := current; i < len(steps); i++ {
		if err := applyStep(ctx, sqlDB, i+1, steps[i]); err != nil {
			return i - current, err
		}
		log.Debug().Int("version", i+1).Str("step", steps[i].name).Msg("SQLite migration applied")
	}
	return len(steps) - current, nil
}

func applyStep(ctx context.Context, sqlDB *sql.DB, version int, st step) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, st.ddl); err != nil {
		return fmt.Errorf("migration %d (%s): %w", version, st.name, err)
	}
	// PRAGMA takes no bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, sqlDB *sql.DB) (int, error) {
	var v int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
