package api

import (
	"context"

	"conveyor/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Phase, error)
	ListByParent(ctx context.Context, parentTaskID string) ([]*queue.Phase, error)
	GetByID(ctx context.Context, queueID string) (*queue.Phase, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns phases filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]PhaseView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	phases, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromPhases(phases), nil
}

// ListByParent returns one parent task's phases ordered by phase number.
func (s *QueueService) ListByParent(ctx context.Context, parentTaskID string) ([]PhaseView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	phases, err := s.store.ListByParent(ctx, parentTaskID)
	if err != nil {
		return nil, err
	}
	return FromPhases(phases), nil
}

// Describe fetches a single phase.
func (s *QueueService) Describe(ctx context.Context, queueID string) (*PhaseView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	phase, err := s.store.GetByID(ctx, queueID)
	if err != nil || phase == nil {
		return nil, err
	}
	view := FromPhase(phase)
	return &view, nil
}

// Health returns aggregated queue counts.
func (s *QueueService) Health(ctx context.Context) (HealthView, error) {
	if s == nil || s.store == nil {
		return HealthView{}, nil
	}
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthView{}, err
	}
	return FromHealth(summary), nil
}
