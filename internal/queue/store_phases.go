package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertBatch persists a batch of phases in a single transaction. Either all
// rows are inserted or none; uniqueness of (parent_task_id, phase_number) is
// enforced by the schema.
func (s *Store) InsertBatch(ctx context.Context, phases []*Phase) error {
	if len(phases) == 0 {
		return errors.New("empty batch")
	}
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, phase := range phases {
			refs, err := marshalReferences(phase.References)
			if err != nil {
				return fmt.Errorf("marshal references: %w", err)
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO phase_queue (
                    queue_id, parent_task_id, phase_number, external_job_id, status,
                    depends_on_phase, title, body, references_json, error_message,
                    created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				phase.QueueID,
				phase.ParentTaskID,
				phase.PhaseNumber,
				nullableString(phase.ExternalJobID),
				phase.Status,
				nullableInt(phase.DependsOnPhase),
				nullableString(phase.Title),
				nullableString(phase.Body),
				refs,
				nullableString(phase.ErrorMessage),
				timestamp,
				timestamp,
			); err != nil {
				return fmt.Errorf("insert phase %d: %w", phase.PhaseNumber, err)
			}
			phase.CreatedAt = now
			phase.UpdatedAt = now
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	})
}

// GetByID fetches a phase by queue identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, queueID string) (*Phase, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+phaseColumns+` FROM phase_queue WHERE queue_id = ?`, queueID)
	phase, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get phase: %w", err)
	}
	return phase, nil
}

// ListByParent returns all phases for a parent task ordered by phase number.
func (s *Store) ListByParent(ctx context.Context, parentTaskID string) ([]*Phase, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+phaseColumns+` FROM phase_queue WHERE parent_task_id = ? ORDER BY phase_number`,
		parentTaskID)
	if err != nil {
		return nil, fmt.Errorf("list phases by parent: %w", err)
	}
	defer rows.Close()
	return collectPhases(rows)
}

// List returns phases filtered by optional statuses, ordered by parent task
// and phase number.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Phase, error) {
	query := `SELECT ` + phaseColumns + ` FROM phase_queue`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY parent_task_id, phase_number`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()
	return collectPhases(rows)
}

// FindSuccessor returns the phase within the same parent whose dependency
// points at the given phase number. Returns nil when no such phase exists.
func (s *Store) FindSuccessor(ctx context.Context, parentTaskID string, phaseNumber int) (*Phase, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+phaseColumns+` FROM phase_queue
         WHERE parent_task_id = ? AND depends_on_phase = ?
         ORDER BY phase_number LIMIT 1`,
		parentTaskID, phaseNumber)
	phase, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find successor: %w", err)
	}
	return phase, nil
}

// Stats returns phase counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM phase_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(statusStr)] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue counts into a summary.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{
		Queued:    stats[StatusQueued],
		Ready:     stats[StatusReady],
		Running:   stats[StatusRunning],
		Completed: stats[StatusCompleted],
		Blocked:   stats[StatusBlocked],
		Failed:    stats[StatusFailed],
	}
	for _, count := range stats {
		summary.Total += count
	}
	return summary, nil
}

// UpdateStatus performs a conditional status transition guarded by the
// expected prior status. It reports whether the row was updated; a false
// result with nil error means the phase was not in the expected status, which
// callers treat as a safe no-op under concurrent polling.
func (s *Store) UpdateStatus(ctx context.Context, queueID string, from, to Status, errorMessage string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE phase_queue SET status = ?, error_message = ?, updated_at = ?
         WHERE queue_id = ? AND status = ?`,
		to,
		nullableString(errorMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		queueID,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkDispatched records the external job id while transitioning ready to
// running, in one conditional update.
func (s *Store) MarkDispatched(ctx context.Context, queueID, jobID string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE phase_queue SET status = ?, external_job_id = ?, updated_at = ?
         WHERE queue_id = ? AND status = ?`,
		StatusRunning,
		jobID,
		time.Now().UTC().Format(time.RFC3339Nano),
		queueID,
		StatusReady,
	)
	if err != nil {
		return false, fmt.Errorf("mark dispatched: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// Remove deletes a phase, succeeding only while the phase is in a removable
// status. It reports whether a row was deleted.
func (s *Store) Remove(ctx context.Context, queueID string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM phase_queue WHERE queue_id = ? AND status IN (?, ?, ?)`,
		queueID,
		StatusQueued,
		StatusReady,
		StatusBlocked,
	)
	if err != nil {
		return false, fmt.Errorf("remove phase: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func collectPhases(rows *sql.Rows) ([]*Phase, error) {
	var phases []*Phase
	for rows.Next() {
		phase, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, phase)
	}
	return phases, rows.Err()
}
