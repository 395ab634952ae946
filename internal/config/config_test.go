package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFillsEverySurface(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.BatchMaxSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.BatchMaxWait)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FailureCeiling)
	assert.Equal(t, time.Second, cfg.Pipeline.CacheTTL)
	assert.Equal(t, 0.3, cfg.Tracking.IoUThreshold)
	assert.Equal(t, 3, cfg.Tracking.NInit)
	assert.Equal(t, "reset", cfg.Tracking.ConfirmPolicy)
	assert.Equal(t, 30*time.Second, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, "replace", cfg.Session.ReconnectPolicy)
	assert.Equal(t, 640, cfg.Detector.InputSize)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
pipeline:
  batch_max_size: 8
tracking:
  confirm_policy: decrement
behavior:
  loiter_min_duration: 45s
  fast_speed: 550
`), 0o644))

	t.Setenv("VT_SERVER_PORT", "7070")
	t.Setenv("VT_CACHE_TTL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 8, cfg.Pipeline.BatchMaxSize, "file wins over default")
	assert.Equal(t, 2*time.Second, cfg.Pipeline.CacheTTL)
	assert.Equal(t, "decrement", cfg.Tracking.ConfirmPolicy)
	assert.Equal(t, 45*time.Second, cfg.Behavior.LoiterMinDuration)
	assert.Equal(t, 550.0, cfg.Behavior.FastSpeed)
	assert.Equal(t, 5432, cfg.Database.Port, "untouched fields get defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "vtrack", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/vtrack?sslmode=disable", d.DSN())
}
