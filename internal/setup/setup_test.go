package setup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/pkg/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "dailyscore.db")
	cfg.Timezone = "UTC"
	return cfg
}

func TestOpenStore_SQLite(t *testing.T) {
	store, err := OpenStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "oracle"
	_, err := OpenStore(cfg)
	assert.ErrorContains(t, err, "oracle")
}

func TestScoringConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StreakGapPolicy = "Reset"
	sc, err := ScoringConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, scoring.GapReset, sc.StreakGapPolicy)
	assert.Equal(t, 10, sc.DefaultPoints)

	cfg.StreakGapPolicy = "sometimes"
	_, err = ScoringConfig(cfg)
	assert.Error(t, err)
}

func TestEngine_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err := Engine(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestClassifier(t *testing.T) {
	cfg := testConfig(t)
	cls, cleanup := Classifier(cfg, zerolog.Nop())
	defer cleanup()
	assert.False(t, cls.Configured())
	assert.Equal(t, cfg.ClassifierTimeout(), cls.Timeout())

	res := cls.Classify(context.Background(), "Gym session", "")
	assert.Equal(t, models.CategoryHealth, res.Category)

	cfg.GeminiAPIKey = "key"
	cfg.RedisAddr = "127.0.0.1:1"
	cls, cleanup = Classifier(cfg, zerolog.Nop())
	defer cleanup()
	assert.True(t, cls.Configured())
}

func TestNewTrackers_SeparateStores(t *testing.T) {
	cfg := testConfig(t)
	store, err := OpenStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	tr, err := NewTrackers(store, nil, nil, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Same(t, tr.Engine, tr.Users.Engine())
	assert.Same(t, tr.Engine, tr.Guests.Engine())

	ctx := context.Background()
	_, err = tr.Guests.InitUser(ctx, "guest-1")
	require.NoError(t, err)

	_, err = tr.Users.State(ctx, "guest-1")
	assert.Error(t, err)
}
