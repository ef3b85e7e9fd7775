// internal/model/attempt.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus represents where an attempt is in its lifecycle
type AttemptStatus string

const (
	AttemptStatusRunning   AttemptStatus = "RUNNING"
	AttemptStatusCompleted AttemptStatus = "COMPLETED"
)

// AttemptRecord is the stored history entry of one commissioning attempt
type AttemptRecord struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	RobotPart   string        `json:"robot_part" db:"robot_part"`
	DeviceName  string        `json:"device_name" db:"device_name"`
	DeviceKind  DeviceKind    `json:"device_kind" db:"device_kind"`
	Status      AttemptStatus `json:"status" db:"status"`
	Outcome     *OutcomeKind  `json:"outcome,omitempty" db:"outcome"`
	Detail      *string       `json:"detail,omitempty" db:"detail"`
	Result      JSONObject    `json:"result,omitempty" db:"result"`
	StartedAt   time.Time     `json:"started_at" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs  *int          `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewAttemptRecord creates a running record for a request
func NewAttemptRecord(id uuid.UUID, req CommissioningRequest, startedAt time.Time) *AttemptRecord {
	return &AttemptRecord{
		ID:         id,
		RobotPart:  req.RobotPart(),
		DeviceName: req.DeviceName(),
		DeviceKind: req.Kind(),
		Status:     AttemptStatusRunning,
		StartedAt:  startedAt,
	}
}

// Complete stamps the terminal outcome onto the record
func (a *AttemptRecord) Complete(outcome Outcome, completedAt time.Time) {
	kind := outcome.Kind
	detail := outcome.Detail
	durationMs := int(completedAt.Sub(a.StartedAt).Milliseconds())

	a.Status = AttemptStatusCompleted
	a.Outcome = &kind
	a.Detail = &detail
	a.CompletedAt = &completedAt
	a.DurationMs = &durationMs

	result := JSONObject{}
	if len(outcome.DetectedIDs) > 0 {
		result["detected_ids"] = outcome.DetectedIDs
	}
	if outcome.Device != nil {
		result["identifier"] = outcome.Device.Identifier
		result["model_number"] = outcome.Device.ModelNumber
		result["baud_rate"] = outcome.Device.BaudRate
	}
	if outcome.Err != nil {
		result["error"] = outcome.Err.Error()
	}
	if len(result) > 0 {
		a.Result = result
	}
}

// IsCompleted checks if the attempt has a terminal outcome
func (a *AttemptRecord) IsCompleted() bool {
	return a.Status == AttemptStatusCompleted
}
