package models

import "time"

// RequestType enumerates supported change-request categories.
type RequestType string

const (
	RequestTypeCancelamento   RequestType = "CANCELAMENTO"
	RequestTypeTrocaProfessor RequestType = "TROCA_PROFESSOR"
	RequestTypeTrocaAula      RequestType = "TROCA_AULA"
)

// RequestStatus captures the workflow state of a change request.
type RequestStatus string

const (
	RequestStatusPending         RequestStatus = "PENDENTE"
	RequestStatusTeacherApproved RequestStatus = "APROVADO_PROFESSOR"
	RequestStatusTeacherRejected RequestStatus = "REJEITADO_PROFESSOR"
	RequestStatusAdminRejected   RequestStatus = "REJEITADO_ADMIN"
	RequestStatusCompleted       RequestStatus = "CONCLUIDO"
)

// Terminal reports whether no further decision may be taken on the request.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusAdminRejected
}

// LessonRequest is a proposed change to one lesson, raised by a student or
// teacher and resolved by the assigned teacher and/or administration.
type LessonRequest struct {
	ID                      string        `db:"id" json:"id"`
	LessonID                string        `db:"lesson_id" json:"lesson_id"`
	Type                    RequestType   `db:"type" json:"type"`
	Status                  RequestStatus `db:"status" json:"status"`
	RequiresTeacherApproval bool          `db:"requires_teacher_approval" json:"requires_teacher_approval"`
	RequestedStartAt        *time.Time    `db:"requested_start_at" json:"requested_start_at,omitempty"`
	RequestedTeacherID      *string       `db:"requested_teacher_id" json:"requested_teacher_id,omitempty"`
	Notes                   string        `db:"notes" json:"notes"`
	CreatedBy               string        `db:"created_by" json:"created_by"`
	CreatedByName           string        `db:"created_by_name" json:"created_by_name"`
	CreatedByRole           UserRole      `db:"created_by_role" json:"created_by_role"`
	TeacherDecidedAt        *time.Time    `db:"teacher_decided_at" json:"teacher_decided_at,omitempty"`
	AdminNotes              *string       `db:"admin_notes" json:"admin_notes,omitempty"`
	ProcessedBy             *string       `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt               time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	LessonID  string
	Statuses  []RequestStatus
	Type      RequestType
	CreatedBy string
	TeacherID string
	Limit     int
	Offset    int
}
