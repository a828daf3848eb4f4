package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, engine.DefaultConfig.SessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, engine.DefaultConfig.AllocationFloor, cfg.AllocationFloor)
	assert.Equal(t, engine.DefaultConfig.ConvergenceThreshold, cfg.ConvergenceThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, engine.DefaultConfig, cfg.Engine())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("CONCLAVE_ALLOCATION_FLOOR", "2.5")
	t.Setenv("CONCLAVE_SESSION_TIMEOUT", "90s")
	t.Setenv("CONCLAVE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.AllocationFloor)
	assert.Equal(t, 90*time.Second, cfg.SessionTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	yaml := `
session_timeout: 2m
allocation_floor: 3.0
max_consensus_topics: 2
redis:
  addr: localhost:6379
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 3.0, cfg.AllocationFloor)
	assert.Equal(t, 2, cfg.MaxConsensusTopics)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, engine.DefaultConfig.ConvergenceThreshold, cfg.ConvergenceThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CONCLAVE_ALLOCATION_FLOOR", "9")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
