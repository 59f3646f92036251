package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedBatch inserts a linear chain of count phases for parentTaskID. Phase 1
// starts ready and the rest queued, mirroring a fresh submission.
func SeedBatch(t testing.TB, store *queue.Store, parentTaskID string, count int) []*queue.Phase {
	t.Helper()

	now := time.Now().UTC()
	phases := make([]*queue.Phase, 0, count)
	for i := 1; i <= count; i++ {
		status := queue.StatusQueued
		if i == 1 {
			status = queue.StatusReady
		}
		var depends *int
		if i > 1 {
			prev := i - 1
			depends = &prev
		}
		phases = append(phases, &queue.Phase{
			QueueID:        uuid.NewString(),
			ParentTaskID:   parentTaskID,
			PhaseNumber:    i,
			Status:         status,
			DependsOnPhase: depends,
			Title:          fmt.Sprintf("phase %d", i),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err := store.InsertBatch(context.Background(), phases); err != nil {
		t.Fatalf("store.InsertBatch: %v", err)
	}
	return phases
}
