// internal/service/types.go
package service

import (
	"time"

	"github.com/google/uuid"

	"servo-commissioning/internal/commissioning"
	"servo-commissioning/internal/model"
)

// MotorRequest represents a servo commissioning request
type MotorRequest struct {
	RobotPart  string `json:"robot_part" binding:"required"`
	DeviceName string `json:"device_name" binding:"required"`
	DeviceKind string `json:"device_kind,omitempty"`
}

// ModuleRequest represents a firmware flash request
type ModuleRequest struct {
	ModuleName string `json:"module_name" binding:"required"`
}

// AttemptResponse is returned when an attempt is accepted or completed
type AttemptResponse struct {
	AttemptID  uuid.UUID        `json:"attempt_id"`
	RobotPart  string           `json:"robot_part,omitempty"`
	DeviceName string           `json:"device_name"`
	DeviceKind model.DeviceKind `json:"device_kind"`
	StartedAt  time.Time        `json:"started_at"`
	Outcome    *model.Outcome   `json:"outcome,omitempty"`
}

// RunnerStatus describes one runner
type RunnerStatus struct {
	Name       string           `json:"name"`
	Busy       bool             `json:"busy"`
	AttemptID  *uuid.UUID       `json:"attempt_id,omitempty"`
	Request    string           `json:"request,omitempty"`
	DeviceKind model.DeviceKind `json:"device_kind,omitempty"`
	Progress   int              `json:"progress"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
}

// StatusResponse reports both runners
type StatusResponse struct {
	Motors  RunnerStatus `json:"motors"`
	Modules RunnerStatus `json:"modules"`
}

// CatalogResponse lists what can be commissioned
type CatalogResponse struct {
	Parts   []model.RobotPart `json:"parts"`
	Modules []model.Module    `json:"modules"`
}

// AttemptListResponse is a page of attempt history
type AttemptListResponse struct {
	Attempts []*model.AttemptRecord `json:"attempts"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PerPage  int                    `json:"per_page"`
}

// AttemptHandle tracks one accepted attempt until its outcome is known
type AttemptHandle struct {
	ID        uuid.UUID
	Request   model.CommissioningRequest
	StartedAt time.Time

	done    chan struct{}
	outcome model.Outcome
}

func newAttemptHandle(a *commissioning.Attempt) *AttemptHandle {
	return &AttemptHandle{
		ID:        a.ID,
		Request:   a.Request,
		StartedAt: a.StartedAt,
		done:      make(chan struct{}),
	}
}

func (h *AttemptHandle) finish(outcome model.Outcome) {
	h.outcome = outcome
	close(h.done)
}

// Done is closed once the outcome is recorded
func (h *AttemptHandle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal outcome. Only valid after Done is closed.
func (h *AttemptHandle) Outcome() model.Outcome {
	return h.outcome
}

// Response renders the handle, including the outcome once known
func (h *AttemptHandle) Response() *AttemptResponse {
	resp := &AttemptResponse{
		AttemptID:  h.ID,
		RobotPart:  h.Request.RobotPart(),
		DeviceName: h.Request.DeviceName(),
		DeviceKind: h.Request.Kind(),
		StartedAt:  h.StartedAt,
	}
	select {
	case <-h.done:
		outcome := h.outcome
		resp.Outcome = &outcome
	default:
	}
	return resp
}
