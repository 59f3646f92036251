package phase_test

import (
	"context"
	"errors"
	"testing"

	"conveyor/internal/broadcast"
	"conveyor/internal/notifications"
	"conveyor/internal/phase"
	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func newService(t *testing.T) (*phase.Service, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := broadcast.NewHub(16)
	svc := phase.NewService(store, hub, notifications.NewService(cfg), nil)
	return svc, store
}

func submitChain(t *testing.T, svc *phase.Service, parentTaskID string, titles ...string) []*queue.Phase {
	t.Helper()
	inputs := make([]phase.Input, len(titles))
	for i, title := range titles {
		inputs[i] = phase.Input{Title: title}
	}
	phases, err := svc.SubmitBatch(context.Background(), parentTaskID, inputs)
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}
	return phases
}

func TestSubmitBatchMarksFirstPhaseReady(t *testing.T) {
	svc, _ := newService(t)
	phases := submitChain(t, svc, "task-1", "plan", "build", "verify")

	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(phases))
	}
	if phases[0].Status != queue.StatusReady {
		t.Fatalf("expected phase 1 ready, got %s", phases[0].Status)
	}
	for _, p := range phases[1:] {
		if p.Status != queue.StatusQueued {
			t.Fatalf("expected phase %d queued, got %s", p.PhaseNumber, p.Status)
		}
		if p.DependsOnPhase == nil || *p.DependsOnPhase != p.PhaseNumber-1 {
			t.Fatalf("expected phase %d to depend on its predecessor, got %v", p.PhaseNumber, p.DependsOnPhase)
		}
	}
}

func TestSubmitBatchRejectsSecondBatchForParent(t *testing.T) {
	svc, _ := newService(t)
	submitChain(t, svc, "task-dup", "only")

	_, err := svc.SubmitBatch(context.Background(), "task-dup", []phase.Input{{Title: "again"}})
	if !errors.Is(err, queue.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		parent string
		inputs []phase.Input
	}{
		{"empty parent", "", []phase.Input{{Title: "a"}}},
		{"empty batch", "task-v1", nil},
		{"missing title", "task-v2", []phase.Input{{Title: ""}}},
		{"sparse numbering", "task-v3", []phase.Input{
			{Title: "a", PhaseNumber: 1},
			{Title: "b", PhaseNumber: 3},
		}},
		{"duplicate numbering", "task-v4", []phase.Input{
			{Title: "a", PhaseNumber: 1},
			{Title: "b", PhaseNumber: 1},
		}},
		{"forward dependency", "task-v5", []phase.Input{
			{Title: "a", PhaseNumber: 1, DependsOnPhase: intPtr(2)},
			{Title: "b", PhaseNumber: 2},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitBatch(ctx, tc.parent, tc.inputs); !errors.Is(err, queue.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMarkCompletePromotesSuccessor(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-complete", "one", "two")

	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}

	promoted, err := svc.MarkComplete(ctx, phases[0].QueueID)
	if err != nil {
		t.Fatalf("MarkComplete failed: %v", err)
	}
	if promoted == nil || promoted.QueueID != phases[1].QueueID {
		t.Fatalf("expected phase 2 promoted, got %#v", promoted)
	}

	successor, err := store.GetByID(ctx, phases[1].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if successor.Status != queue.StatusReady {
		t.Fatalf("expected successor ready, got %s", successor.Status)
	}
}

func TestMarkCompletePromotesEvenWhilePaused(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-paused", "one", "two")

	if _, err := svc.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if _, err := svc.MarkComplete(ctx, phases[0].QueueID); err != nil {
		t.Fatalf("MarkComplete failed: %v", err)
	}

	// Pause gates dispatch, not promotion: phase 2 becomes ready and waits.
	successor, err := store.GetByID(ctx, phases[1].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if successor.Status != queue.StatusReady {
		t.Fatalf("expected successor ready while paused, got %s", successor.Status)
	}
}

func TestMarkCompleteIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-idem", "one")

	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if _, err := svc.MarkComplete(ctx, phases[0].QueueID); err != nil {
		t.Fatalf("MarkComplete failed: %v", err)
	}
	if _, err := svc.MarkComplete(ctx, phases[0].QueueID); err != nil {
		t.Fatalf("expected duplicate completion to be a no-op, got %v", err)
	}
}

func TestMarkCompleteRejectsUndispatchedPhase(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-early", "one")

	_, err := svc.MarkComplete(ctx, phases[0].QueueID)
	if !errors.Is(err, queue.ErrTransition) {
		t.Fatalf("expected transition error for ready phase, got %v", err)
	}
}

func TestMarkFailedBlocksDependents(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-fail", "one", "two", "three")

	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if err := svc.MarkFailed(ctx, phases[0].QueueID, "exit status 2"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	failed, err := store.GetByID(ctx, phases[0].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.ErrorMessage != "exit status 2" {
		t.Fatalf("unexpected failed phase: %#v", failed)
	}

	for _, original := range phases[1:] {
		dependent, err := store.GetByID(ctx, original.QueueID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if dependent.Status != queue.StatusBlocked {
			t.Fatalf("expected phase %d blocked, got %s", dependent.PhaseNumber, dependent.Status)
		}
		if dependent.ErrorMessage != "blocked: upstream phase 1 failed" {
			t.Fatalf("unexpected block message: %q", dependent.ErrorMessage)
		}
	}

	// Failing the same phase again is a no-op.
	if err := svc.MarkFailed(ctx, phases[0].QueueID, "again"); err != nil {
		t.Fatalf("expected duplicate failure to be a no-op, got %v", err)
	}
}

func TestRetryResetsFailedChain(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-retry", "one", "two", "three")

	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if err := svc.MarkFailed(ctx, phases[0].QueueID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	retried, err := svc.Retry(ctx, phases[0].QueueID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Status != queue.StatusReady {
		t.Fatalf("expected retried phase ready, got %s", retried.Status)
	}

	for _, original := range phases[1:] {
		dependent, err := store.GetByID(ctx, original.QueueID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if dependent.Status != queue.StatusQueued {
			t.Fatalf("expected phase %d re-armed to queued, got %s", dependent.PhaseNumber, dependent.Status)
		}
	}
}

func TestRetryRejectsNonFailedPhase(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-retry-bad", "one")

	_, err := svc.Retry(ctx, phases[0].QueueID)
	if !errors.Is(err, queue.ErrTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	phases := submitChain(t, svc, "task-cancel", "one", "two")

	if _, err := svc.MarkDispatched(ctx, phases[0].QueueID, "job-1"); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}

	if err := svc.Cancel(ctx, phases[0].QueueID); !errors.Is(err, queue.ErrPhaseRunning) {
		t.Fatalf("expected running-phase rejection, got %v", err)
	}

	if err := svc.Cancel(ctx, phases[1].QueueID); err != nil {
		t.Fatalf("Cancel failed for queued phase: %v", err)
	}
	removed, err := store.GetByID(ctx, phases[1].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if removed != nil {
		t.Fatalf("expected cancelled phase removed, got %#v", removed)
	}

	if _, err := svc.MarkComplete(ctx, phases[0].QueueID); err != nil {
		t.Fatalf("MarkComplete failed: %v", err)
	}
	if err := svc.Cancel(ctx, phases[0].QueueID); !errors.Is(err, queue.ErrTransition) {
		t.Fatalf("expected completed phase to be retained, got %v", err)
	}

	if err := svc.Cancel(ctx, "missing-id"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestMarkDispatchedRequiresJobID(t *testing.T) {
	svc, _ := newService(t)
	phases := submitChain(t, svc, "task-nojob", "one")

	_, err := svc.MarkDispatched(context.Background(), phases[0].QueueID, "  ")
	if !errors.Is(err, queue.ErrTransition) {
		t.Fatalf("expected transition error for blank job id, got %v", err)
	}
}

func intPtr(v int) *int { return &v }
