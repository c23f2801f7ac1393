package models

import "time"

// LessonRecord is the book/material entry registered for a taught lesson.
// The weekly auditor attaches the most recent record to frequency mismatches
// so staff can correct the calendar against actual course progress.
type LessonRecord struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Book         string    `db:"book" json:"book"`
	Material     *string   `db:"material" json:"material,omitempty"`
	LessonAt     time.Time `db:"lesson_at" json:"lesson_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
