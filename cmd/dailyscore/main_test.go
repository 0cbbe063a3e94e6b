package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/setup"
)

// writeSettings creates a settings file pointing at a temporary database.
func writeSettings(t *testing.T) string {
	t.Helper()
	t.Setenv("DAILYSCORE_GEMINI_API_KEY", "")
	t.Setenv("DAILYSCORE_REDIS_ADDR", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := "DAILYSCORE_DB_PATH: " + filepath.Join(dir, "dailyscore.db") + "\n" +
		"DAILYSCORE_TIMEZONE: UTC\n" +
		"DAILYSCORE_WORKER_PORT: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassify(t *testing.T) {
	settings := writeSettings(t)

	out, err := run(t, "--settings", settings, "classify", "Finish", "the", "quarterly", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "work (fallback")

	_, err = run(t, "--settings", settings, "classify")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	settings := writeSettings(t)

	out, err := run(t, "--settings", settings, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "sqlite schema is up to date\n", out)

	// A second run finds nothing left to apply.
	_, err = run(t, "--settings", settings, "migrate")
	assert.NoError(t, err)
}

func TestSettle(t *testing.T) {
	settings := writeSettings(t)

	_, err := run(t, "--settings", settings, "settle")
	assert.ErrorContains(t, err, "user")

	_, err = run(t, "--settings", settings, "settle", "--user", "ghost")
	assert.ErrorContains(t, err, "ghost")

	cfg, err := config.LoadFile(settings)
	require.NoError(t, err)
	store, err := setup.OpenStore(cfg)
	require.NoError(t, err)
	trackers, err := setup.NewTrackers(store, nil, nil, cfg, zerolog.Nop())
	require.NoError(t, err)
	_, err = trackers.Users.InitUser(context.Background(), "ada")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := run(t, "--settings", settings, "settle", "--user", "ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to settle")

	out, err = run(t, "--settings", settings, "settle", "--user", "ada", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Settled at")
	assert.Contains(t, out, "points unchanged")
}

func TestNextUpdate(t *testing.T) {
	out, err := run(t, "--settings", writeSettings(t), "next-update")
	require.NoError(t, err)
	assert.Contains(t, out, "Sunday")
	assert.Contains(t, out, "21:00 UTC")
}

func TestStatus_WorkerDown(t *testing.T) {
	out, err := run(t, "--settings", writeSettings(t), "status")
	assert.Error(t, err)
	assert.Contains(t, out, "not running")
}
