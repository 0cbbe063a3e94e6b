package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/db/dbtest"
	"github.com/thebtf/dailyscore/pkg/models"
)

// testStore opens a fresh database in a temp dir.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	return s
}

type SQLiteStoreSuite struct {
	dbtest.StoreSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := &SQLiteStoreSuite{}
	s.NewStore = func() db.Store { return testStore(t) }
	suite.Run(t, s)
}

func TestNewStore_RequiresPath(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := testStore(t)
	defer s.Close()
	ctx := context.Background()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(steps), v)

	applied, err := migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	s, err := NewStore(StoreConfig{Path: path})
	require.NoError(t, err)
	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(steps)+1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewStore(StoreConfig{Path: path})
	assert.ErrorContains(t, err, "newer than this build")
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewStore(StoreConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.CreateState(ctx, models.NewScoringState("u1", 10)))
	require.NoError(t, s.Close())

	s, err = NewStore(StoreConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 10, got.CategoryPoints[models.CategoryLearning])
}

func TestUpdateState_BumpsVersion(t *testing.T) {
	s := testStore(t)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.CreateState(ctx, models.NewScoringState("u1", 10)))

	for i := 0; i < 3; i++ {
		_, err := s.UpdateState(ctx, "u1", nil, func(st *models.ScoringState) error {
			st.CategoryPoints[models.CategoryWork]++
			return nil
		})
		require.NoError(t, err)
	}

	got, err := s.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, 13, got.CategoryPoints[models.CategoryWork])
}

func TestOptimize(t *testing.T) {
	s := testStore(t)
	defer s.Close()
	require.NoError(t, s.Optimize(context.Background()))
}
