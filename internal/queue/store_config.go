package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pausedConfigKey = "queue_paused"

// GetConfig reads the singleton queue configuration. The pause flag is read
// fresh at every dispatch decision, never cached by callers.
func (s *Store) GetConfig(ctx context.Context) (Config, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT config_value, updated_at FROM queue_config WHERE config_key = ?`,
		pausedConfigKey)

	var value string
	var updatedRaw string
	if err := row.Scan(&value, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read queue config: %w", err)
	}

	cfg := Config{Paused: value == "true"}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cfg.UpdatedAt = updated
	}
	return cfg, nil
}

// SetPaused updates the pause flag and returns the stored configuration.
func (s *Store) SetPaused(ctx context.Context, paused bool) (Config, error) {
	value := "false"
	if paused {
		value = "true"
	}
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_config (config_key, config_value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (config_key) DO UPDATE SET config_value = excluded.config_value, updated_at = excluded.updated_at`,
		pausedConfigKey,
		value,
		now.Format(time.RFC3339Nano),
	); err != nil {
		return Config{}, fmt.Errorf("set queue paused: %w", err)
	}
	return Config{Paused: paused, UpdatedAt: now}, nil
}
