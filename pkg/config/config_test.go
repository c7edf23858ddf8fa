package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: test
server:
  port: 8080
  read_timeout: 10s
  write_timeout: 10s
  shutdown_timeout: 5s
log:
  level: info
  format: console
  output: stdout
instruments: [PETR4, VALE3]
data:
  db_path: data/market.db
  history_days: 1095
  lookback_window: 60
  retention_days: 0
provider:
  base_url: https://query1.finance.yahoo.com
  timeout: 30s
  max_rps: 2
  retry:
    max_attempts: 4
    base_delay: 500ms
    max_delay: 8s
    unavailable_retries: 2
training:
  epochs: 50
  batch_size: 32
  models_dir: data/models
  workers: 2
  model_cache_size: 8
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, []string{"PETR4", "VALE3"}, c.Instruments)
	assert.Equal(t, 60, c.Data.LookbackWindow)
	assert.Equal(t, 4, c.Provider.Retry.MaxAttempts)
}

func TestLoadRejectsEmptyInstruments(t *testing.T) {
	bad := `
environment: test
instruments: []
data:
  db_path: x.db
  history_days: 100
  lookback_window: 60
provider:
  base_url: http://x
  retry:
    max_attempts: 1
training:
  models_dir: m
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instruments")
}

func TestLoadRejectsShortHistory(t *testing.T) {
	bad := `
environment: test
instruments: [PETR4]
data:
  db_path: x.db
  history_days: 30
  lookback_window: 60
provider:
  base_url: http://x
  retry:
    max_attempts: 1
training:
  models_dir: m
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_days")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("INSTRUMENTS", "ITSA4,MGLU3")
	t.Setenv("DB_PATH", "/tmp/other.db")

	c, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"ITSA4", "MGLU3"}, c.Instruments)
	assert.Equal(t, "/tmp/other.db", c.Data.DBPath)
}

func TestSupported(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.True(t, c.Supported("PETR4"))
	assert.True(t, c.Supported("petr4"))
	assert.False(t, c.Supported("AAPL"))
}
