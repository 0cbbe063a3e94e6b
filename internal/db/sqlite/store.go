// Package sqlite provides the single-file SQLite backend for dailyscore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/thebtf/dailyscore/internal/db"
)

// Store is the SQLite implementation of db.Store.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	stmts *stmtCache
	// writeMu serializes read-modify-write cycles inside this process;
	// the version check covers other processes sharing the file.
	writeMu sync.Mutex
}

// StoreConfig holds configuration for the database store.
type StoreConfig struct {
	Path     string
	MaxConns int // default 4
}

var _ db.Store = (*Store)(nil)

// pragmas are applied to every connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	var b strings.Builder
	b.WriteString(path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// NewStore opens the database file at cfg.Path, creating it when missing,
// and migrates it to the current schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}

	conns := cfg.MaxConns
	if conns <= 0 {
		conns = 4
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := migrate(ctx, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Path, err)
	}
	if applied > 0 {
		log.Info().Str("path", cfg.Path).Int("applied", applied).Msg("SQLite schema migrated")
	}

	return &Store{
		db:    sqlDB,
		now:   time.Now,
		stmts: &stmtCache{db: sqlDB, byQuery: make(map[string]*sql.Stmt)},
	}, nil
}

// Close releases prepared statements and closes the database.
func (s *Store) Close() error {
	s.stmts.closeAll()
	return s.db.Close()
}

// SchemaVersion returns the number of applied migrations.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// stmtCache prepares each distinct query once. A closed cache makes callers
// fall back to unprepared queries, which then fail on the closed database.
type stmtCache struct {
	db      *sql.DB
	byQuery map[string]*sql.Stmt
	mu      sync.RWMutex
}

func (c *stmtCache) get(ctx context.Context, query string) *sql.Stmt {
	c.mu.RLock()
	stmt := c.byQuery[query]
	c.mu.RUnlock()
	if stmt != nil {
		return stmt
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byQuery == nil {
		return nil
	}
	if stmt := c.byQuery[query]; stmt != nil {
		return stmt
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil
	}
	c.byQuery[query] = stmt
	return stmt
}

func (c *stmtCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stmt := range c.byQuery {
		_ = stmt.Close()
	}
	c.byQuery = nil
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if stmt := s.stmts.get(ctx, query); stmt != nil {
		return stmt.ExecContext(ctx, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if stmt := s.stmts.get(ctx, query); stmt != nil {
		return stmt.QueryContext(ctx, args...)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if stmt := s.stmts.get(ctx, query); stmt != nil {
		return stmt.QueryRowContext(ctx, args...)
	}
	return s.db.QueryRowContext(ctx, query, args...)
}

// Ping checks if the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Optimize refreshes query planner statistics.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	return nil
}

func toEpoch(t time.Time) int64 {
	return t.UnixMilli()
}

func fromEpoch(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullEpoch(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullEpoch(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromEpoch(n.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusy reports a lost write race on the database file.
func isBusy(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked"))
}
