package models

import "time"

// LessonStatus captures the lifecycle of a lesson occurrence.
type LessonStatus string

const (
	LessonStatusConfirmed LessonStatus = "CONFIRMADA"
	LessonStatusCancelled LessonStatus = "CANCELADA"
	LessonStatusReposicao LessonStatus = "REPOSICAO"
)

// Active reports whether the status still occupies the teacher's calendar.
// CONFIRMADA and REPOSICAO are both active; CANCELADA is terminal.
func (s LessonStatus) Active() bool {
	return s == LessonStatusConfirmed || s == LessonStatusReposicao
}

// Lesson is a single scheduled class occurrence.
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	EnrollmentID    string       `db:"enrollment_id" json:"enrollment_id"`
	TeacherID       string       `db:"teacher_id" json:"teacher_id"`
	Status          LessonStatus `db:"status" json:"status"`
	StartAt         time.Time    `db:"start_at" json:"start_at"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
	Notes           string       `db:"notes" json:"notes"`
	AuditTrail      AuditTrail   `db:"audit_trail" json:"audit_trail"`
	CreatedBy       string       `db:"created_by" json:"created_by"`
	CreatedByName   string       `db:"created_by_name" json:"created_by_name"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// EndAt returns the exclusive end of the lesson interval.
func (l *Lesson) EndAt() time.Time {
	return l.StartAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// Overlaps applies the half-open interval test against another lesson.
// Back-to-back lessons (end of A == start of B) do not overlap.
func (l *Lesson) Overlaps(other *Lesson) bool {
	return l.StartAt.Before(other.EndAt()) && other.StartAt.Before(l.EndAt())
}

// LessonDetail enriches a lesson with student and teacher display data.
type LessonDetail struct {
	Lesson
	StudentName   string `db:"student_name" json:"student_name"`
	TeacherName   string `db:"teacher_name" json:"teacher_name"`
	TeacherActive bool   `db:"teacher_active" json:"teacher_active"`
}

// LessonFilter constrains lesson listing queries.
type LessonFilter struct {
	EnrollmentID string
	TeacherID    string
	From         *time.Time
	To           *time.Time
	Statuses     []LessonStatus
	Limit        int
	Offset       int
}
