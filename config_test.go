package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := loadConfigFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, DefaultConfig(), cfg)
	assert.True(t, cfg.IsNotify())
	assert.False(t, cfg.UseMock())
	assert.Equal(t, 50*time.Millisecond, cfg.DropDebounce())
	assert.Equal(t, 500*time.Millisecond, cfg.CaptureTimeout())
	assert.Equal(t, 60*time.Second, cfg.BackendTimeout())
}

func TestLoadConfigClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"backendUrl": "  ",
		"backend": "grpc",
		"dropDebounceMs": -5,
		"captureTimeoutMs": 0,
		"windowWidth": 1200,
		"notify": false
	}`), 0644))

	cfg := loadConfigFile(path)
	def := DefaultConfig()
	assert.Equal(t, def.BackendURL, cfg.BackendURL)
	assert.Equal(t, "http", cfg.Backend)
	assert.Equal(t, def.DropDebounceMs, cfg.DropDebounceMs)
	assert.Equal(t, def.CaptureTimeoutMs, cfg.CaptureTimeoutMs)
	assert.Equal(t, 1200, cfg.WindowWidth)
	assert.Equal(t, def.WindowHeight, cfg.WindowHeight)
	assert.False(t, cfg.IsNotify())
}

func TestLoadConfigBrokenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":`), 0644))
	assert.Equal(t, DefaultConfig(), loadConfigFile(path))
}

func TestSaveConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Backend = "mock"
	cfg.BackendURL = "http://10.0.0.5:8090"
	cfg.DiscoverBackend = true

	require.NoError(t, saveConfigFile(path, cfg))
	got := loadConfigFile(path)
	assert.True(t, got.UseMock())
	assert.Equal(t, "http://10.0.0.5:8090", got.BackendURL)
	assert.True(t, got.DiscoverBackend)
}

func TestDataPathUsesOverride(t *testing.T) {
	assert.Equal(t, os.Getenv("NOOFORGE_HOME"), AppDataDir())
	assert.Equal(t, filepath.Join(AppDataDir(), "logs"), LogDir())
}

func TestSetLogLevel(t *testing.T) {
	defer SetLogLevel("error")
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		SetLogLevel(lvl)
		assert.Equal(t, lvl, GetLogLevel())
	}
	SetLogLevel("loud")
	assert.Equal(t, "error", GetLogLevel())
}
