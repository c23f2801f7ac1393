package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive   EnrollmentStatus = "ATIVA"
	EnrollmentStatusInactive EnrollmentStatus = "INATIVA"
	EnrollmentStatusPaused   EnrollmentStatus = "PAUSADA"
)

// Billable reports whether the enrollment still counts for the weekly
// frequency audit.
func (s EnrollmentStatus) Billable() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusPaused
}

// CourseLanguage is the contracted course language of an enrollment.
type CourseLanguage string

const (
	LanguageIngles          CourseLanguage = "INGLES"
	LanguageEspanhol        CourseLanguage = "ESPANHOL"
	LanguageInglesEEspanhol CourseLanguage = "INGLES_E_ESPANHOL"
)

// EnrollmentCategory is a closed enum; the category decides the default
// cancellation notice and whether TROCA_* requests need teacher sign-off.
type EnrollmentCategory string

const (
	CategoryRegular   EnrollmentCategory = "REGULAR"
	CategoryIntensivo EnrollmentCategory = "INTENSIVO"
	CategoryVIP       EnrollmentCategory = "VIP"
)

// Enrollment is a student's (or group's) contract for recurring lessons.
// The scheduling engine treats it as read-mostly reference data but must
// respect its pause and language constraints.
type Enrollment struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	StudentName     string             `db:"student_name" json:"student_name"`
	StudentEmail    string             `db:"student_email" json:"student_email"`
	Category        EnrollmentCategory `db:"category" json:"category"`
	Language        CourseLanguage     `db:"language" json:"language"`
	WeeklyFrequency *int               `db:"weekly_frequency" json:"weekly_frequency,omitempty"`
	LessonMinutes   *int               `db:"lesson_minutes" json:"lesson_minutes,omitempty"`
	IsGroup         bool               `db:"is_group" json:"is_group"`
	GroupName       *string            `db:"group_name" json:"group_name,omitempty"`
	Status          EnrollmentStatus   `db:"status" json:"status"`
	PausedAt        *time.Time         `db:"paused_at" json:"paused_at,omitempty"`
	ActivationDate  *time.Time         `db:"activation_date" json:"activation_date,omitempty"`
	NoticeHours     *int               `db:"notice_hours" json:"notice_hours,omitempty"`
}

// InPauseWindow reports whether t falls inside [pausedAt, activationDate).
// With no activation date set, every instant from pausedAt on is paused.
func (e *Enrollment) InPauseWindow(t time.Time) bool {
	if e.Status != EnrollmentStatusPaused || e.PausedAt == nil {
		return false
	}
	if t.Before(*e.PausedAt) {
		return false
	}
	if e.ActivationDate == nil {
		return true
	}
	return t.Before(*e.ActivationDate)
}
