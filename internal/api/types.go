package api

import (
	"time"

	"conveyor/internal/queue"
)

// PhaseView is the external representation of a phase record.
type PhaseView struct {
	QueueID        string    `json:"queue_id"`
	ParentTaskID   string    `json:"parent_task_id"`
	PhaseNumber    int       `json:"phase_number"`
	ExternalJobID  string    `json:"external_job_id,omitempty"`
	Status         string    `json:"status"`
	DependsOnPhase *int      `json:"depends_on_phase,omitempty"`
	Title          string    `json:"title,omitempty"`
	Body           string    `json:"body,omitempty"`
	References     []string  `json:"references,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FromPhase converts a store phase into its API view.
func FromPhase(p *queue.Phase) PhaseView {
	if p == nil {
		return PhaseView{}
	}
	return PhaseView{
		QueueID:        p.QueueID,
		ParentTaskID:   p.ParentTaskID,
		PhaseNumber:    p.PhaseNumber,
		ExternalJobID:  p.ExternalJobID,
		Status:         string(p.Status),
		DependsOnPhase: p.DependsOnPhase,
		Title:          p.Title,
		Body:           p.Body,
		References:     p.References,
		ErrorMessage:   p.ErrorMessage,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// FromPhases converts a slice of store phases.
func FromPhases(phases []*queue.Phase) []PhaseView {
	views := make([]PhaseView, 0, len(phases))
	for _, p := range phases {
		views = append(views, FromPhase(p))
	}
	return views
}

// QueueListResponse wraps phase listings.
type QueueListResponse struct {
	Phases []PhaseView `json:"phases"`
}

// ConfigView reports the queue pause state.
type ConfigView struct {
	Paused    bool      `json:"paused"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// PauseRequest sets the queue pause state.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// BatchPhase is one phase in a submission request.
type BatchPhase struct {
	Title          string   `json:"title"`
	Body           string   `json:"body,omitempty"`
	References     []string `json:"references,omitempty"`
	PhaseNumber    int      `json:"phase_number,omitempty"`
	DependsOnPhase *int     `json:"depends_on_phase,omitempty"`
}

// BatchRequest submits a new batch of phases for one parent task.
type BatchRequest struct {
	ParentTaskID string       `json:"parent_task_id"`
	Phases       []BatchPhase `json:"phases"`
}

// HealthView aggregates queue counts by status.
type HealthView struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Blocked   int `json:"blocked"`
	Failed    int `json:"failed"`
}

// FromHealth converts a store health summary.
func FromHealth(h queue.HealthSummary) HealthView {
	return HealthView{
		Total:     h.Total,
		Queued:    h.Queued,
		Ready:     h.Ready,
		Running:   h.Running,
		Completed: h.Completed,
		Blocked:   h.Blocked,
		Failed:    h.Failed,
	}
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	QueueDBPath  string     `json:"queue_db_path"`
	LockFilePath string     `json:"lock_file_path"`
	Paused       bool       `json:"paused"`
	LastTick     *time.Time `json:"last_tick,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Health       HealthView `json:"health"`
}

// ErrorResponse is the uniform error body for the control plane.
type ErrorResponse struct {
	Error string `json:"error"`
}
