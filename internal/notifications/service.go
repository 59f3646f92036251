package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

const userAgent = "Conveyor/0.1.0"

// Service defines the notification surface exposed to the coordinator and
// phase service.
type Service interface {
	NotifyBatchSubmitted(ctx context.Context, parentTaskID string, count int) error
	NotifyPhaseStarted(ctx context.Context, phase *queue.Phase) error
	NotifyPhaseCompleted(ctx context.Context, phase *queue.Phase) error
	NotifyPhaseFailed(ctx context.Context, phase *queue.Phase) error
	NotifyPhaseBlocked(ctx context.Context, phase *queue.Phase) error
	NotifyPauseChanged(ctx context.Context, paused bool) error
	TestNotification(ctx context.Context) error
}

// NewService builds a tracker notification service when configured. When the
// tracker is disabled or has no URL, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Tracker.Enabled || strings.TrimSpace(cfg.Tracker.URL) == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Tracker.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &trackerService{
		endpoint: cfg.Tracker.URL,
		token:    strings.TrimSpace(cfg.Tracker.APIToken),
		client:   &http.Client{Timeout: timeout},
	}
}

type trackerService struct {
	endpoint string
	token    string
	client   *http.Client
}

type payload struct {
	Title        string `json:"title"`
	Message      string `json:"message"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
	PhaseNumber  int    `json:"phase_number,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (t *trackerService) NotifyBatchSubmitted(ctx context.Context, parentTaskID string, count int) error {
	return t.send(ctx, payload{
		Title:        "Conveyor - Batch Submitted",
		Message:      fmt.Sprintf("Queued %d phases for %s; phase 1 is ready", count, parentTaskID),
		ParentTaskID: parentTaskID,
	})
}

func (t *trackerService) NotifyPhaseStarted(ctx context.Context, phase *queue.Phase) error {
	if phase == nil {
		return nil
	}
	return t.send(ctx, payload{
		Title:        "Conveyor - Phase Started",
		Message:      fmt.Sprintf("Phase %d of %s dispatched: %s", phase.PhaseNumber, phase.ParentTaskID, phaseTitle(phase)),
		ParentTaskID: phase.ParentTaskID,
		PhaseNumber:  phase.PhaseNumber,
		Status:       string(queue.StatusRunning),
	})
}

func (t *trackerService) NotifyPhaseCompleted(ctx context.Context, phase *queue.Phase) error {
	if phase == nil {
		return nil
	}
	return t.send(ctx, payload{
		Title:        "Conveyor - Phase Complete",
		Message:      fmt.Sprintf("Phase %d of %s completed: %s", phase.PhaseNumber, phase.ParentTaskID, phaseTitle(phase)),
		ParentTaskID: phase.ParentTaskID,
		PhaseNumber:  phase.PhaseNumber,
		Status:       string(queue.StatusCompleted),
	})
}

func (t *trackerService) NotifyPhaseFailed(ctx context.Context, phase *queue.Phase) error {
	if phase == nil {
		return nil
	}
	message := fmt.Sprintf("Phase %d of %s failed", phase.PhaseNumber, phase.ParentTaskID)
	if detail := strings.TrimSpace(phase.ErrorMessage); detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	return t.send(ctx, payload{
		Title:        "Conveyor - Phase Failed",
		Message:      message,
		ParentTaskID: phase.ParentTaskID,
		PhaseNumber:  phase.PhaseNumber,
		Status:       string(queue.StatusFailed),
	})
}

func (t *trackerService) NotifyPhaseBlocked(ctx context.Context, phase *queue.Phase) error {
	if phase == nil {
		return nil
	}
	return t.send(ctx, payload{
		Title:        "Conveyor - Phase Blocked",
		Message:      fmt.Sprintf("Phase %d of %s blocked: %s", phase.PhaseNumber, phase.ParentTaskID, strings.TrimSpace(phase.ErrorMessage)),
		ParentTaskID: phase.ParentTaskID,
		PhaseNumber:  phase.PhaseNumber,
		Status:       string(queue.StatusBlocked),
	})
}

func (t *trackerService) NotifyPauseChanged(ctx context.Context, paused bool) error {
	state := "resumed"
	if paused {
		state = "paused"
	}
	return t.send(ctx, payload{
		Title:   "Conveyor - Queue " + strings.ToUpper(state[:1]) + state[1:],
		Message: fmt.Sprintf("Automatic phase dispatch %s", state),
	})
}

func (t *trackerService) TestNotification(ctx context.Context) error {
	return t.send(ctx, payload{
		Title:   "Conveyor - Test",
		Message: "Tracker notifications are configured correctly",
	})
}

func (t *trackerService) send(ctx context.Context, data payload) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

func phaseTitle(phase *queue.Phase) string {
	if title := strings.TrimSpace(phase.Title); title != "" {
		return title
	}
	return phase.QueueID
}

type noopService struct{}

func (noopService) NotifyBatchSubmitted(context.Context, string, int) error  { return nil }
func (noopService) NotifyPhaseStarted(context.Context, *queue.Phase) error   { return nil }
func (noopService) NotifyPhaseCompleted(context.Context, *queue.Phase) error { return nil }
func (noopService) NotifyPhaseFailed(context.Context, *queue.Phase) error    { return nil }
func (noopService) NotifyPhaseBlocked(context.Context, *queue.Phase) error   { return nil }
func (noopService) NotifyPauseChanged(context.Context, bool) error           { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
