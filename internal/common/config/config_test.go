package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9440", cfg.API.Addr)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Stream.ConnectTimeout)
	assert.Equal(t, 5, cfg.Stream.SyncInterval)
	assert.Equal(t, 15, cfg.Stream.LivenessCheckInterval)
	assert.Equal(t, 90, cfg.Stream.LivenessIdle)
	assert.Equal(t, 30, cfg.Stream.LivenessPingGrace)
	assert.Equal(t, 1, cfg.Stream.BackoffInitial)
	assert.Equal(t, 30, cfg.Stream.BackoffMax)
	assert.Equal(t, 500, cfg.Stream.JitterMaxMS)
}

func TestLoadFromFile_OverridesMergeWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  addr: "127.0.0.1:9999"
stream:
  sync_interval: 30
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	assert.Equal(t, 30, cfg.Stream.SyncInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, 90, cfg.Stream.LivenessIdle)
}

func TestLoadFromFile_RejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream: ["), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate_BackoffOrdering(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Stream.BackoffInitial = 60

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff_initial")
}

func TestValidate_PingGraceBelowIdle(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Stream.LivenessPingGrace = 90

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liveness_ping_grace")
}

func TestStreamConfig_DurationAccessors(t *testing.T) {
	s := StreamConfig{ConnectTimeout: 10, SyncInterval: 5, LivenessCheckInterval: 15}
	assert.Equal(t, 10*time.Second, s.ConnectTimeoutDuration())
	assert.Equal(t, 5*time.Second, s.SyncIntervalDuration())
	assert.Equal(t, 15*time.Second, s.LivenessCheckDuration())
}
