package logging

// Standardized attribute keys. Components use these so that log consumers can
// filter and correlate events without guessing at field names.
const (
	FieldComponent     = "component"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldQueueID       = "queue_id"
	FieldParentTaskID  = "parent_task_id"
	FieldPhaseNumber   = "phase_number"
	FieldStatus        = "status"
	FieldJobID         = "job_id"
	FieldCorrelationID = "correlation_id"
)
