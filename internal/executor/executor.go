package executor

import (
	"context"
	"strings"
)

// JobState is the execution subsystem's view of a dispatched job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether the job has finished, successfully or not.
func (s JobState) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ParseJobState normalizes a ledger state string.
func ParseJobState(value string) (JobState, bool) {
	switch JobState(strings.ToLower(strings.TrimSpace(value))) {
	case JobPending:
		return JobPending, true
	case JobRunning:
		return JobRunning, true
	case JobSucceeded:
		return JobSucceeded, true
	case JobFailed:
		return JobFailed, true
	default:
		return "", false
	}
}

// Payload is the opaque bag of work handed to the executor.
type Payload struct {
	Title      string   `json:"title"`
	Body       string   `json:"body,omitempty"`
	References []string `json:"references,omitempty"`
}

// Result is the ledger's answer for one job.
type Result struct {
	State JobState
	Error string
}

// Client is the consumed interface of the execution subsystem.
type Client interface {
	// Dispatch submits a payload and returns the assigned job id.
	Dispatch(ctx context.Context, payload Payload) (string, error)

	// Status queries the job ledger for the current state of a job.
	Status(ctx context.Context, jobID string) (Result, error)
}
