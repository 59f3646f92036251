package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/executor"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

// tick runs one poll cycle: fail timed-out phases, map terminal ledger states
// onto running phases, then dispatch eligible ready phases. A tick returns an
// error only for store-level failures; per-phase executor errors are logged
// and retried on the next tick with the phase left untouched.
func (c *Coordinator) tick(ctx context.Context) error {
	running, err := c.store.List(ctx, queue.StatusRunning)
	if err != nil {
		return fmt.Errorf("load running phases: %w", err)
	}

	for _, p := range running {
		if err := c.pollPhase(ctx, p); err != nil {
			return err
		}
	}

	if err := c.dispatchEligible(ctx); err != nil {
		return err
	}

	c.markTick()
	return nil
}

func (c *Coordinator) pollPhase(ctx context.Context, p *queue.Phase) error {
	if c.phaseTimeout > 0 && time.Since(p.UpdatedAt) > c.phaseTimeout {
		message := fmt.Sprintf("no terminal report from executor within %s", c.phaseTimeout)
		c.logger.Warn("running phase timed out",
			logging.String(logging.FieldQueueID, p.QueueID),
			logging.String(logging.FieldJobID, p.ExternalJobID),
			logging.String(logging.FieldEventType, "phase_timeout"),
		)
		return c.applyFailure(ctx, p, message)
	}

	result, err := c.exec.Status(ctx, p.ExternalJobID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Transient: leave the phase running and try again next tick.
		c.logger.Warn("executor status query failed",
			logging.Error(err),
			logging.String(logging.FieldQueueID, p.QueueID),
			logging.String(logging.FieldJobID, p.ExternalJobID),
			logging.String(logging.FieldEventType, "poll_failed"),
			logging.String(logging.FieldErrorHint, "executor may be unreachable; phase will be re-polled"),
		)
		return nil
	}

	switch result.State {
	case executor.JobSucceeded:
		return c.applyCompletion(ctx, p)
	case executor.JobFailed:
		message := result.Error
		if message == "" {
			message = "executor reported failure"
		}
		return c.applyFailure(ctx, p, message)
	default:
		return nil
	}
}

func (c *Coordinator) applyCompletion(ctx context.Context, p *queue.Phase) error {
	_, err := c.service.MarkComplete(ctx, p.QueueID)
	if err != nil {
		if errors.Is(err, queue.ErrTransition) {
			// Another tick got here first; the guard made this a no-op.
			c.logger.Debug("completion raced; skipping",
				logging.String(logging.FieldQueueID, p.QueueID))
			return nil
		}
		return err
	}
	// The promoted successor, if any, is dispatched by dispatchEligible in
	// this same tick so an unpaused queue advances within one cycle.
	return nil
}

func (c *Coordinator) applyFailure(ctx context.Context, p *queue.Phase, message string) error {
	if err := c.service.MarkFailed(ctx, p.QueueID, message); err != nil {
		if errors.Is(err, queue.ErrTransition) {
			c.logger.Debug("failure raced; skipping",
				logging.String(logging.FieldQueueID, p.QueueID))
			return nil
		}
		return err
	}
	return nil
}

// dispatchEligible starts ready phases when the queue is unpaused. The pause
// flag is read fresh here, at the dispatch decision point, on every tick — a
// phase left ready before a pause stays untouched until resume.
func (c *Coordinator) dispatchEligible(ctx context.Context) error {
	cfg, err := c.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("read queue config: %w", err)
	}
	if cfg.Paused {
		return nil
	}

	ready, err := c.store.List(ctx, queue.StatusReady)
	if err != nil {
		return fmt.Errorf("load ready phases: %w", err)
	}
	if len(ready) == 0 {
		return nil
	}

	running, err := c.store.List(ctx, queue.StatusRunning)
	if err != nil {
		return fmt.Errorf("load running phases: %w", err)
	}
	busyParents := make(map[string]struct{}, len(running))
	for _, p := range running {
		busyParents[p.ParentTaskID] = struct{}{}
	}

	for _, p := range ready {
		// One running phase per parent task at a time.
		if _, busy := busyParents[p.ParentTaskID]; busy {
			continue
		}
		if err := c.DispatchPhase(ctx, p); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Warn("dispatch failed; phase stays ready",
				logging.Error(err),
				logging.String(logging.FieldQueueID, p.QueueID),
				logging.String(logging.FieldEventType, "dispatch_failed"),
				logging.String(logging.FieldErrorHint, "executor may be unreachable; dispatch retries next tick"),
			)
			continue
		}
		busyParents[p.ParentTaskID] = struct{}{}
	}
	return nil
}

// DispatchPhase submits one ready phase to the executor and records the
// returned job id. It is used both by the poll loop and at submission time
// for phase 1 of a new batch.
func (c *Coordinator) DispatchPhase(ctx context.Context, p *queue.Phase) error {
	payload := executor.Payload{
		Title:      p.Title,
		Body:       p.Body,
		References: p.References,
	}
	jobID, err := c.exec.Dispatch(ctx, payload)
	if err != nil {
		return fmt.Errorf("dispatch phase %d of %s: %w", p.PhaseNumber, p.ParentTaskID, err)
	}

	if _, err := c.service.MarkDispatched(ctx, p.QueueID, jobID); err != nil {
		if errors.Is(err, queue.ErrTransition) {
			// The phase left ready between listing and dispatch; the job is
			// orphaned on the executor side but the state machine is intact.
			c.logger.Warn("phase no longer ready after dispatch",
				logging.String(logging.FieldQueueID, p.QueueID),
				logging.String(logging.FieldJobID, jobID),
				logging.String(logging.FieldEventType, "dispatch_raced"),
			)
			return nil
		}
		return err
	}
	return nil
}
