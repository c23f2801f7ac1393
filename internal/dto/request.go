package dto

import (
	"time"

	"github.com/vemfalar/agenda-api/internal/models"
)

// CreateRequestRequest payload for raising a change request on a lesson.
type CreateRequestRequest struct {
	Type               models.RequestType `json:"type" binding:"required"`
	RequestedStartAt   *time.Time         `json:"requested_start_at,omitempty"`
	RequestedTeacherID *string            `json:"requested_teacher_id,omitempty"`
	Notes              string             `json:"notes,omitempty"`
}

// DecideRequestRequest captures a teacher or admin decision. Admins may
// override the replacement teacher/time at decision time.
type DecideRequestRequest struct {
	Approve      bool       `json:"approve"`
	NewTeacherID *string    `json:"new_teacher_id,omitempty"`
	NewStartAt   *time.Time `json:"new_start_at,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// DecideRequestResult reports the decision outcome.
type DecideRequestResult struct {
	Request     *models.LessonRequest `json:"request"`
	Cancelled   *models.Lesson        `json:"cancelled,omitempty"`
	Replacement *models.Lesson        `json:"replacement,omitempty"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Statuses []models.RequestStatus
	Type     models.RequestType
	LessonID string
}
