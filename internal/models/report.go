package models

import "time"

// WeeklyAuditReport is the read-only output of the weekly consistency
// auditor over a Monday–Saturday window. It triggers no mutation and no
// notification; staff act on it through the lesson endpoints.
type WeeklyAuditReport struct {
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`

	ConfirmedCount int `json:"confirmed_count"`
	CancelledCount int `json:"cancelled_count"`
	ReposicaoCount int `json:"reposicao_count"`

	Confirmed []AuditLessonEntry `json:"confirmed"`
	Cancelled []AuditLessonEntry `json:"cancelled"`
	Reposicao []AuditLessonEntry `json:"reposicao"`

	FrequencyMismatches []FrequencyMismatch `json:"frequency_mismatches"`
	DoubleBookings      []DoubleBooking     `json:"double_bookings"`
	InactiveTeachers    []InactiveTeacher   `json:"inactive_teachers"`

	GeneratedAt time.Time `json:"generated_at"`
}

// AuditLessonEntry is one lesson line in a status bucket.
type AuditLessonEntry struct {
	LessonID    string    `json:"lesson_id"`
	StudentName string    `json:"student_name"`
	TeacherName string    `json:"teacher_name"`
	StartAt     time.Time `json:"start_at"`
}

// FrequencyMismatch flags an enrollment (or merged group) whose scheduled
// time diverges from the contracted weekly frequency.
type FrequencyMismatch struct {
	EnrollmentIDs   []string    `json:"enrollment_ids"`
	Label           string      `json:"label"`
	IsGroup         bool        `json:"is_group"`
	ExpectedCount   int         `json:"expected_count"`
	ActualCount     int         `json:"actual_count"`
	ExpectedMinutes int         `json:"expected_minutes,omitempty"`
	ActualMinutes   int         `json:"actual_minutes,omitempty"`
	LatestBook      string      `json:"latest_book,omitempty"`
	WeekLessons     []time.Time `json:"week_lessons"`
}

// DoubleBooking is a cluster of transitively overlapping lessons for one
// teacher.
type DoubleBooking struct {
	TeacherID   string             `json:"teacher_id"`
	TeacherName string             `json:"teacher_name"`
	Lessons     []AuditLessonEntry `json:"lessons"`
}

// InactiveTeacher flags lessons assigned to a teacher who is not active.
type InactiveTeacher struct {
	TeacherID   string             `json:"teacher_id"`
	TeacherName string             `json:"teacher_name"`
	Lessons     []AuditLessonEntry `json:"lessons"`
}
