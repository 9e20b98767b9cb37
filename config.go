package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AppConfig holds all persistent user settings.
type AppConfig struct {
	BackendURL        string `json:"backendUrl"`
	Backend           string `json:"backend"` // "http" or "mock"
	DiscoverBackend   bool   `json:"discoverBackend"`
	LogLevel          string `json:"logLevel"`
	DropDebounceMs    int    `json:"dropDebounceMs"`
	CaptureTimeoutMs  int    `json:"captureTimeoutMs"`
	BackendTimeoutSec int    `json:"backendTimeoutSec"`
	Notify            *bool  `json:"notify"` // nil = true
	WindowWidth       int    `json:"windowWidth"`
	WindowHeight      int    `json:"windowHeight"`
}

// IsNotify reports whether completion notifications are shown (default true).
func (c *AppConfig) IsNotify() bool {
	return c.Notify == nil || *c.Notify
}

// UseMock reports whether the canned backend is selected.
func (c *AppConfig) UseMock() bool {
	return strings.EqualFold(c.Backend, "mock")
}

func (c *AppConfig) DropDebounce() time.Duration {
	return time.Duration(c.DropDebounceMs) * time.Millisecond
}

func (c *AppConfig) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMs) * time.Millisecond
}

func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSec) * time.Second
}

var (
	appDataDir     string
	appDataDirOnce sync.Once
)

// DefaultConfig returns config with default values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		BackendURL:        defaultBackendURL,
		Backend:           "http",
		LogLevel:          "error",
		DropDebounceMs:    int(defaultDropDebounce / time.Millisecond),
		CaptureTimeoutMs:  int(defaultCaptureTimeout / time.Millisecond),
		BackendTimeoutSec: 60,
		WindowWidth:       960,
		WindowHeight:      720,
	}
}

// normalize clamps missing or invalid values back to their defaults.
func (c *AppConfig) normalize() {
	def := DefaultConfig()
	c.BackendURL = strings.TrimSpace(c.BackendURL)
	if c.BackendURL == "" {
		c.BackendURL = def.BackendURL
	}
	if !c.UseMock() {
		c.Backend = def.Backend
	}
	if c.DropDebounceMs <= 0 {
		c.DropDebounceMs = def.DropDebounceMs
	}
	if c.CaptureTimeoutMs <= 0 {
		c.CaptureTimeoutMs = def.CaptureTimeoutMs
	}
	if c.BackendTimeoutSec <= 0 {
		c.BackendTimeoutSec = def.BackendTimeoutSec
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = def.WindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = def.WindowHeight
	}
}

// AppDataDir returns the data directory, creating it if needed. It is
// ~/.nooforge unless NOOFORGE_HOME is set.
func AppDataDir() string {
	appDataDirOnce.Do(func() {
		if dir := os.Getenv("NOOFORGE_HOME"); dir != "" {
			appDataDir = dir
		} else if home, err := os.UserHomeDir(); err == nil {
			appDataDir = filepath.Join(home, ".nooforge")
		} else if exe, err := os.Executable(); err == nil {
			appDataDir = filepath.Dir(exe)
		} else {
			appDataDir = "."
		}
		os.MkdirAll(appDataDir, 0755)
	})
	return appDataDir
}

// DataPath returns the full path for a file inside the data directory.
func DataPath(elem ...string) string {
	parts := append([]string{AppDataDir()}, elem...)
	return filepath.Join(parts...)
}

func configPath() string {
	return DataPath("config.json")
}

// LoadConfig reads ~/.nooforge/config.json. Returns defaults if the file is
// missing or unreadable.
func LoadConfig() *AppConfig {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) *AppConfig {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: parse %s failed, using defaults: %v\n", path, err)
		return DefaultConfig()
	}
	cfg.normalize()
	return cfg
}

// SaveConfig writes the config to ~/.nooforge/config.json.
func SaveConfig(cfg *AppConfig) error {
	return saveConfigFile(configPath(), cfg)
}

func saveConfigFile(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
