// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventAttemptStarted   EventType = "ATTEMPT_STARTED"
	EventAttemptProgress  EventType = "ATTEMPT_PROGRESS"
	EventAttemptCompleted EventType = "ATTEMPT_COMPLETED"
)

// AttemptEvent is published to presentation clients while an attempt runs
type AttemptEvent struct {
	Type       EventType  `json:"type"`
	AttemptID  uuid.UUID  `json:"attempt_id"`
	RobotPart  string     `json:"robot_part,omitempty"`
	DeviceName string     `json:"device_name"`
	DeviceKind DeviceKind `json:"device_kind"`
	Progress   int        `json:"progress"`
	Outcome    *Outcome   `json:"outcome,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
