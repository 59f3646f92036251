package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const phaseColumns = "queue_id, parent_task_id, phase_number, external_job_id, status, depends_on_phase, title, body, references_json, error_message, created_at, updated_at"

func scanPhase(scanner interface{ Scan(dest ...any) error }) (*Phase, error) {
	var (
		queueID       string
		parentTaskID  string
		phaseNumber   int
		externalJobID sql.NullString
		statusStr     string
		dependsOn     sql.NullInt64
		title         sql.NullString
		body          sql.NullString
		referencesRaw sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&queueID,
		&parentTaskID,
		&phaseNumber,
		&externalJobID,
		&statusStr,
		&dependsOn,
		&title,
		&body,
		&referencesRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	phase := &Phase{
		QueueID:       queueID,
		ParentTaskID:  parentTaskID,
		PhaseNumber:   phaseNumber,
		ExternalJobID: externalJobID.String,
		Status:        Status(statusStr),
		Title:         title.String,
		Body:          body.String,
		ErrorMessage:  errorMessage.String,
	}
	if dependsOn.Valid {
		dep := int(dependsOn.Int64)
		phase.DependsOnPhase = &dep
	}
	if referencesRaw.Valid && referencesRaw.String != "" {
		_ = json.Unmarshal([]byte(referencesRaw.String), &phase.References)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		phase.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		phase.UpdatedAt = updated
	}
	return phase, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func marshalReferences(refs []string) (any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
