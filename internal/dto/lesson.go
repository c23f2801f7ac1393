package dto

import (
	"time"

	"github.com/vemfalar/agenda-api/internal/models"
)

// Recurrence describes how a creation call expands into weekly occurrences.
// Exactly one of the two modes may be used: Repeat (fixed count of weekly
// repeats of the same slot) or Weeks+PerWeek (N weeks of one or two same-week
// occurrences; PerWeek == 2 requires SecondStartAt inside the first week).
type Recurrence struct {
	Repeat        *int       `json:"repeat,omitempty"`
	Weeks         *int       `json:"weeks,omitempty"`
	PerWeek       *int       `json:"per_week,omitempty"`
	SecondStartAt *time.Time `json:"second_start_at,omitempty"`
}

// CreateLessonRequest payload for creating one lesson or a recurring series.
type CreateLessonRequest struct {
	EnrollmentID    string              `json:"enrollment_id" binding:"required"`
	TeacherID       string              `json:"teacher_id" binding:"required"`
	StartAt         time.Time           `json:"start_at" binding:"required"`
	DurationMinutes int                 `json:"duration_minutes" binding:"required,min=1"`
	Status          models.LessonStatus `json:"status,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Recurrence      *Recurrence         `json:"recurrence,omitempty"`
}

// UpdateLessonRequest carries partial lesson fields; nil means unchanged.
type UpdateLessonRequest struct {
	TeacherID       *string              `json:"teacher_id,omitempty"`
	StartAt         *time.Time           `json:"start_at,omitempty"`
	DurationMinutes *int                 `json:"duration_minutes,omitempty"`
	Status          *models.LessonStatus `json:"status,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
}

// CreateLessonsResult reports what a (possibly recurring) creation produced.
type CreateLessonsResult struct {
	Created []models.Lesson `json:"created"`
	Skipped []time.Time     `json:"skipped_holidays,omitempty"`
}
