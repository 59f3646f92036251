package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateCoordinator(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if strings.TrimSpace(c.Executor.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/conveyor/config.toml"
		}
		return fmt.Errorf("executor.base_url is required; edit %s (create with 'conveyor config init')", defaultPath)
	}
	if _, err := url.Parse(c.Executor.BaseURL); err != nil {
		return fmt.Errorf("executor.base_url is not a valid URL: %w", err)
	}
	if c.Executor.RequestTimeout <= 0 {
		return errors.New("executor.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	if c.Coordinator.PollInterval <= 0 {
		return errors.New("coordinator.poll_interval must be positive")
	}
	if c.Coordinator.ErrorRetryInterval <= 0 {
		return errors.New("coordinator.error_retry_interval must be positive")
	}
	if c.Coordinator.PhaseTimeout < 0 {
		return errors.New("coordinator.phase_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateTracker() error {
	if !c.Tracker.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Tracker.URL) == "" {
		return errors.New("tracker.url must be set when tracker.enabled is true")
	}
	if c.Tracker.RequestTimeout <= 0 {
		return errors.New("tracker.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
