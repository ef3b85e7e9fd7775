// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"servo-commissioning/internal/model"
)

// ErrAttemptNotFound is returned when no attempt has the requested ID
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository defines attempt history data access operations
type AttemptRepository interface {
	Create(ctx context.Context, attempt *model.AttemptRecord) error
	Update(ctx context.Context, attempt *model.AttemptRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	List(ctx context.Context, filter *AttemptFilter) ([]*model.AttemptRecord, int, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// AttemptFilter represents attempt listing filters
type AttemptFilter struct {
	RobotPart  *string            `json:"robot_part,omitempty"`
	DeviceKind *model.DeviceKind  `json:"device_kind,omitempty"`
	Outcome    *model.OutcomeKind `json:"outcome,omitempty"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
}

// Normalize clamps paging to sane bounds
func (f *AttemptFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

func (f *AttemptFilter) matches(a *model.AttemptRecord) bool {
	if f.RobotPart != nil && a.RobotPart != *f.RobotPart {
		return false
	}
	if f.DeviceKind != nil && a.DeviceKind != *f.DeviceKind {
		return false
	}
	if f.Outcome != nil && (a.Outcome == nil || *a.Outcome != *f.Outcome) {
		return false
	}
	return true
}
