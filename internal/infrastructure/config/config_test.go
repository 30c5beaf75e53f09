package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Store config
	assert.Equal(t, "data", cfg.Store.Dir)
	assert.Equal(t, "selections", cfg.Store.Name)
	assert.Equal(t, 0, cfg.Store.Version)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Store.BusyTimeout)
	assert.False(t, cfg.Store.Compress)
	assert.True(t, cfg.Store.ReconcileOnStart)

	// Transient config
	assert.True(t, cfg.Transient.WatchSignals)

	// Permissions config
	assert.Equal(t, 8, cfg.Permissions.ProbeConcurrency)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("data", "selections.db"), cfg.Store.Path())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"SELECTION_STORE_DIR":          "/var/lib/selections",
		"SELECTION_STORE_NAME":         "picks",
		"SELECTION_STORE_VERSION":      "4",
		"SELECTION_STORE_MAX_ATTEMPTS": "5",
		"SELECTION_STORE_BUSY_TIMEOUT": "250ms",
		"SELECTION_STORE_COMPRESS":     "true",
		"SELECTION_RECONCILE_ON_START": "false",
		"SELECTION_WATCH_SIGNALS":      "false",
		"SELECTION_PROBE_CONCURRENCY":  "2",
		"LOG_LEVEL":                    "debug",
		"LOG_DEV":                      "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/selections", cfg.Store.Dir)
	assert.Equal(t, "picks", cfg.Store.Name)
	assert.Equal(t, 4, cfg.Store.Version)
	assert.Equal(t, 5, cfg.Store.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.BusyTimeout)
	assert.True(t, cfg.Store.Compress)
	assert.False(t, cfg.Store.ReconcileOnStart)
	assert.False(t, cfg.Transient.WatchSignals)
	assert.Equal(t, 2, cfg.Permissions.ProbeConcurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("SELECTION_STORE_NAME", "partial")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "partial", cfg.Store.Name)
	assert.Equal(t, "data", cfg.Store.Dir)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SELECTION_STORE_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)

	assert.NotNil(t, LoadOrDefault())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selections.yaml")
	content := `
store:
  dir: /srv/selections
  name: fromfile
  max_attempts: 4
  busy_timeout: 2s
permissions:
  probe_concurrency: 3
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	// File values over defaults
	assert.Equal(t, "/srv/selections", cfg.Store.Dir)
	assert.Equal(t, "fromfile", cfg.Store.Name)
	assert.Equal(t, 4, cfg.Store.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, 3, cfg.Permissions.ProbeConcurrency)

	// Untouched defaults survive
	assert.True(t, cfg.Store.ReconcileOnStart)

	// Environment wins over file
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selections.toml")
	content := `
[store]
dir = "/srv/toml"
max_attempts = 5
busy_timeout = "750ms"
compress = true

[transient]
watch_signals = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/toml", cfg.Store.Dir)
	assert.Equal(t, 5, cfg.Store.MaxAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.BusyTimeout)
	assert.True(t, cfg.Store.Compress)
	assert.False(t, cfg.Transient.WatchSignals)
	assert.Equal(t, "selections", cfg.Store.Name)
}

func TestLoadTOMLFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store\nname ="), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
