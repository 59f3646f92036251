package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Executor.BaseURL = "http://127.0.0.1:0"
	cfg.Coordinator.PollInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithExecutorURL points the executor client at the provided base URL,
// typically an httptest server.
func WithExecutorURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Executor.BaseURL = url
	}
}

// WithPhaseTimeout sets the running-phase watchdog timeout in seconds.
func WithPhaseTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Coordinator.PhaseTimeout = seconds
	}
}

// WithTracker enables tracker notifications against the provided URL.
func WithTracker(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Tracker.Enabled = true
		cfg.Tracker.URL = url
	}
}
