package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 60*time.Second, cfg.Sync.MinGap)
	assert.Equal(t, 10*time.Second, cfg.Sync.ProbeTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Sync.SavingsGoalWindow)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
db_path: /tmp/client.db
remote_url: https://sync.example.com
sync:
  interval: 10m
  bill_window: 2m
server:
  addr: ":9090"
`)
	t.Setenv("LEDGERLY_REMOTE_URL", "https://override.example.com")
	t.Setenv("LEDGERLY_SYNC_MIN_GAP", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/client.db", cfg.DBPath)
	assert.Equal(t, "https://override.example.com", cfg.RemoteURL)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Sync.BillWindow)
	assert.Equal(t, 90*time.Second, cfg.Sync.MinGap)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Sync.SavingsGoalWindow, "unset fields keep defaults")
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeFile(t, "sync:\n  intervall: 5m\n"))
		assert.Error(t, err)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv("LEDGERLY_SYNC_INTERVAL", "often")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := Load(writeFile(t, "sync:\n  upload_concurrency: 0\n"))
		assert.Error(t, err)
	})
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/ledgerly.yaml")
	assert.Equal(t, "/etc/ledgerly.yaml", Path(""))
	assert.Equal(t, "./local.yaml", Path("./local.yaml"))
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	s, err := LoadSession(path)
	require.NoError(t, err)
	assert.False(t, s.SignedIn())

	want := Session{UserID: "u1", Email: "a@example.com", Token: "tok"}
	require.NoError(t, SaveSession(path, want))
	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.SignedIn())

	require.NoError(t, ClearSession(path))
	require.NoError(t, ClearSession(path))
	got, err = LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, Session{}, got)
}
