// Package config loads, validates, and normalizes conveyor configuration
// from TOML files with sensible defaults.
package config
