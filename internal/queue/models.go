package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a phase.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusReady,
	StatusRunning,
	StatusCompleted,
	StatusBlocked,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions is the single source of truth for legal status changes.
// The ready -> blocked and failed -> ready edges exist for failure
// propagation and manual retry respectively; blocked -> queued re-arms a
// dependent when its failed predecessor is retried.
var validTransitions = map[Status][]Status{
	StatusQueued:  {StatusReady, StatusBlocked},
	StatusReady:   {StatusRunning, StatusBlocked},
	StatusRunning: {StatusCompleted, StatusFailed},
	StatusFailed:  {StatusReady},
	StatusBlocked: {StatusQueued},
}

// CanTransition reports whether moving a phase from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further automatic transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBlocked, StatusFailed:
		return true
	default:
		return false
	}
}

// removableStatuses are the states in which a phase may be cancelled.
// Running phases cannot be removed; completed and failed phases are retained
// as an audit trail.
var removableStatuses = map[Status]struct{}{
	StatusQueued:  {},
	StatusReady:   {},
	StatusBlocked: {},
}

// IsRemovable reports whether a phase in this status may be cancelled.
func (s Status) IsRemovable() bool {
	_, ok := removableStatuses[s]
	return ok
}

// Phase represents one ordinal unit of work within a parent task, persisted
// in SQLite. Phase numbers are dense and 1-based per parent; DependsOnPhase,
// when set, always references a lower phase number within the same parent.
type Phase struct {
	QueueID        string
	ParentTaskID   string
	PhaseNumber    int
	ExternalJobID  string
	Status         Status
	DependsOnPhase *int
	Title          string
	Body           string
	References     []string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsRunning reports whether the phase has been dispatched and not yet reported terminal.
func (p *Phase) IsRunning() bool {
	return p != nil && p.Status == StatusRunning
}

// Config is the singleton queue configuration record.
type Config struct {
	Paused    bool
	UpdatedAt time.Time
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Queued    int
	Ready     int
	Running   int
	Completed int
	Blocked   int
	Failed    int
}
