package phase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"conveyor/internal/broadcast"
	"conveyor/internal/logging"
	"conveyor/internal/notifications"
	"conveyor/internal/queue"
)

// Service performs validated phase transitions against the store. All status
// changes go through the store's conditional updates, so a racing coordinator
// tick observes a no-op instead of a double transition.
type Service struct {
	store    *queue.Store
	hub      *broadcast.Hub
	notifier notifications.Service
	logger   *slog.Logger
}

// NewService constructs the phase state machine service.
func NewService(store *queue.Store, hub *broadcast.Hub, notifier notifications.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		hub:      hub,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "phase-service"),
	}
}

// SubmitBatch validates and atomically persists a batch of phases for one
// parent task. Phase 1 starts ready; later phases start queued with their
// dependency link. Dispatching phase 1 is the caller's decision (submission
// time, not the poll loop).
func (s *Service) SubmitBatch(ctx context.Context, parentTaskID string, inputs []Input) ([]*queue.Phase, error) {
	normalized, err := normalizeBatch(parentTaskID, inputs)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListByParent(ctx, parentTaskID)
	if err != nil {
		return nil, fmt.Errorf("check existing phases: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: parent task %s already has %d phases", queue.ErrValidation, parentTaskID, len(existing))
	}

	phases := make([]*queue.Phase, len(normalized))
	for i, input := range normalized {
		status := queue.StatusQueued
		if input.PhaseNumber == 1 {
			status = queue.StatusReady
		}
		phases[i] = &queue.Phase{
			QueueID:        uuid.NewString(),
			ParentTaskID:   parentTaskID,
			PhaseNumber:    input.PhaseNumber,
			Status:         status,
			DependsOnPhase: input.DependsOnPhase,
			Title:          input.Title,
			Body:           input.Body,
			References:     input.References,
		}
	}

	if err := s.store.InsertBatch(ctx, phases); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	for _, p := range phases {
		s.publish(p)
	}
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyBatchSubmitted(ctx, parentTaskID, len(phases))
	})

	s.logger.Info("phase batch submitted",
		logging.String(logging.FieldParentTaskID, parentTaskID),
		logging.Int("phases", len(phases)),
	)
	return phases, nil
}

// MarkDispatched transitions a ready phase to running, recording the job id
// returned by the executor.
func (s *Service) MarkDispatched(ctx context.Context, queueID, jobID string) (*queue.Phase, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required to mark a phase running", queue.ErrTransition)
	}
	ok, err := s.store.MarkDispatched(ctx, queueID, jobID)
	if err != nil {
		return nil, err
	}
	phase, getErr := s.store.GetByID(ctx, queueID)
	if getErr != nil {
		return nil, getErr
	}
	if phase == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, queueID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot dispatch phase %d in status %s", queue.ErrTransition, phase.PhaseNumber, phase.Status)
	}

	s.publish(phase)
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyPhaseStarted(ctx, phase)
	})
	s.logger.Info("phase dispatched",
		logging.String(logging.FieldQueueID, phase.QueueID),
		logging.String(logging.FieldParentTaskID, phase.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, phase.PhaseNumber),
		logging.String(logging.FieldJobID, jobID),
	)
	return phase, nil
}

// MarkComplete transitions a running phase to completed and promotes its
// direct successor from queued to ready, returning the promoted phase (nil
// when there is none). Completing an already-completed phase is a no-op;
// completing a phase in any other status is a transition error.
func (s *Service) MarkComplete(ctx context.Context, queueID string) (*queue.Phase, error) {
	phase, err := s.store.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, queueID)
	}
	if phase.Status == queue.StatusCompleted {
		return nil, nil
	}

	ok, err := s.store.UpdateStatus(ctx, queueID, queue.StatusRunning, queue.StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race or the phase was never running. Re-read to tell an
		// idempotent duplicate apart from an illegal transition.
		current, getErr := s.store.GetByID(ctx, queueID)
		if getErr != nil {
			return nil, getErr
		}
		if current != nil && current.Status == queue.StatusCompleted {
			return nil, nil
		}
		status := queue.Status("missing")
		if current != nil {
			status = current.Status
		}
		return nil, fmt.Errorf("%w: cannot complete phase %d in status %s", queue.ErrTransition, phase.PhaseNumber, status)
	}

	phase.Status = queue.StatusCompleted
	phase.ErrorMessage = ""
	s.publish(phase)
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyPhaseCompleted(ctx, phase)
	})
	s.logger.Info("phase completed",
		logging.String(logging.FieldQueueID, phase.QueueID),
		logging.String(logging.FieldParentTaskID, phase.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, phase.PhaseNumber),
	)

	return s.promoteSuccessor(ctx, phase)
}

// promoteSuccessor flips the completed phase's direct dependent from queued
// to ready. Promotion is unconditional; the pause flag only gates dispatch.
func (s *Service) promoteSuccessor(ctx context.Context, completed *queue.Phase) (*queue.Phase, error) {
	successor, err := s.store.FindSuccessor(ctx, completed.ParentTaskID, completed.PhaseNumber)
	if err != nil {
		return nil, err
	}
	if successor == nil || successor.Status != queue.StatusQueued {
		return nil, nil
	}

	ok, err := s.store.UpdateStatus(ctx, successor.QueueID, queue.StatusQueued, queue.StatusReady, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	successor.Status = queue.StatusReady
	s.publish(successor)
	s.logger.Info("phase promoted to ready",
		logging.String(logging.FieldQueueID, successor.QueueID),
		logging.String(logging.FieldParentTaskID, successor.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, successor.PhaseNumber),
	)
	return successor, nil
}

// MarkFailed transitions a running phase to failed with the executor's error
// message, then blocks every transitive dependent. Failing an already-failed
// phase is a no-op.
func (s *Service) MarkFailed(ctx context.Context, queueID, errorMessage string) error {
	phase, err := s.store.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	if phase == nil {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, queueID)
	}
	if phase.Status == queue.StatusFailed {
		return nil
	}

	if strings.TrimSpace(errorMessage) == "" {
		errorMessage = "execution failed without detail"
	}

	ok, err := s.store.UpdateStatus(ctx, queueID, queue.StatusRunning, queue.StatusFailed, errorMessage)
	if err != nil {
		return err
	}
	if !ok {
		current, getErr := s.store.GetByID(ctx, queueID)
		if getErr != nil {
			return getErr
		}
		if current != nil && current.Status == queue.StatusFailed {
			return nil
		}
		status := queue.Status("missing")
		if current != nil {
			status = current.Status
		}
		return fmt.Errorf("%w: cannot fail phase %d in status %s", queue.ErrTransition, phase.PhaseNumber, status)
	}

	phase.Status = queue.StatusFailed
	phase.ErrorMessage = errorMessage
	s.publish(phase)
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyPhaseFailed(ctx, phase)
	})
	s.logger.Warn("phase failed",
		logging.String(logging.FieldQueueID, phase.QueueID),
		logging.String(logging.FieldParentTaskID, phase.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, phase.PhaseNumber),
		logging.String("error_message", errorMessage),
	)

	return s.blockDependents(ctx, phase)
}

// blockDependents walks forward through the dependency chain and marks every
// reachable phase blocked, each carrying a synthetic message naming the
// phase that failed.
func (s *Service) blockDependents(ctx context.Context, failed *queue.Phase) error {
	message := fmt.Sprintf("blocked: upstream phase %d failed", failed.PhaseNumber)
	cursor := failed
	for {
		dependent, err := s.store.FindSuccessor(ctx, cursor.ParentTaskID, cursor.PhaseNumber)
		if err != nil {
			return err
		}
		if dependent == nil {
			return nil
		}

		blocked := false
		for _, from := range []queue.Status{queue.StatusQueued, queue.StatusReady} {
			ok, err := s.store.UpdateStatus(ctx, dependent.QueueID, from, queue.StatusBlocked, message)
			if err != nil {
				return err
			}
			if ok {
				blocked = true
				break
			}
		}

		if blocked {
			dependent.Status = queue.StatusBlocked
			dependent.ErrorMessage = message
			s.publish(dependent)
			s.notify(ctx, func(ctx context.Context) error {
				return s.notifier.NotifyPhaseBlocked(ctx, dependent)
			})
			s.logger.Info("phase blocked",
				logging.String(logging.FieldQueueID, dependent.QueueID),
				logging.String(logging.FieldParentTaskID, dependent.ParentTaskID),
				logging.Int(logging.FieldPhaseNumber, dependent.PhaseNumber),
			)
		}
		cursor = dependent
	}
}

// Cancel removes a phase from the queue. Only queued, ready, and blocked
// phases may be cancelled; running phases are rejected, and completed or
// failed phases are retained as the audit trail.
func (s *Service) Cancel(ctx context.Context, queueID string) error {
	phase, err := s.store.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	if phase == nil {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, queueID)
	}
	if phase.Status == queue.StatusRunning {
		return fmt.Errorf("%w: phase %d is dispatched; mid-flight cancellation is unsupported", queue.ErrPhaseRunning, phase.PhaseNumber)
	}
	if !phase.Status.IsRemovable() {
		return fmt.Errorf("%w: cannot cancel phase %d in status %s", queue.ErrTransition, phase.PhaseNumber, phase.Status)
	}

	ok, err := s.store.Remove(ctx, queueID)
	if err != nil {
		return err
	}
	if !ok {
		// Status changed between the read and the guarded delete.
		return fmt.Errorf("%w: phase %d is no longer cancellable", queue.ErrTransition, phase.PhaseNumber)
	}

	s.logger.Info("phase cancelled",
		logging.String(logging.FieldQueueID, phase.QueueID),
		logging.String(logging.FieldParentTaskID, phase.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, phase.PhaseNumber),
	)
	return nil
}

// Retry resets a failed phase to ready and re-arms its blocked dependents
// back to queued. Failures are terminal until this explicit operation; there
// is no automatic retry.
func (s *Service) Retry(ctx context.Context, queueID string) (*queue.Phase, error) {
	phase, err := s.store.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, queueID)
	}

	ok, err := s.store.UpdateStatus(ctx, queueID, queue.StatusFailed, queue.StatusReady, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot retry phase %d in status %s", queue.ErrTransition, phase.PhaseNumber, phase.Status)
	}

	phase.Status = queue.StatusReady
	phase.ErrorMessage = ""
	s.publish(phase)
	s.logger.Info("phase retry requested",
		logging.String(logging.FieldQueueID, phase.QueueID),
		logging.String(logging.FieldParentTaskID, phase.ParentTaskID),
		logging.Int(logging.FieldPhaseNumber, phase.PhaseNumber),
	)

	// Blocked dependents return to queued and will be promoted again as
	// their predecessors complete.
	cursor := phase
	for {
		dependent, err := s.store.FindSuccessor(ctx, cursor.ParentTaskID, cursor.PhaseNumber)
		if err != nil {
			return nil, err
		}
		if dependent == nil {
			break
		}
		ok, err := s.store.UpdateStatus(ctx, dependent.QueueID, queue.StatusBlocked, queue.StatusQueued, "")
		if err != nil {
			return nil, err
		}
		if ok {
			dependent.Status = queue.StatusQueued
			dependent.ErrorMessage = ""
			s.publish(dependent)
		}
		cursor = dependent
	}

	return phase, nil
}

// SetPaused flips the global pause flag. Pausing never touches running
// phases; it only stops the coordinator from dispatching ready ones.
func (s *Service) SetPaused(ctx context.Context, paused bool) (queue.Config, error) {
	cfg, err := s.store.SetPaused(ctx, paused)
	if err != nil {
		return queue.Config{}, err
	}
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyPauseChanged(ctx, paused)
	})
	s.logger.Info("queue pause state changed", logging.Bool("paused", paused))
	return cfg, nil
}

// Paused reads the pause flag fresh from the store.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return false, err
	}
	return cfg.Paused, nil
}

func (s *Service) publish(p *queue.Phase) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(broadcast.EventFromPhase(p))
}

// notify invokes the tracker best-effort; failures are logged and dropped.
func (s *Service) notify(ctx context.Context, fn func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.logger.Warn("tracker notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "tracker_notify_failed"),
			logging.String(logging.FieldErrorHint, "check tracker.url and network reachability"),
		)
	}
}
