package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vemfalar/agenda-api/internal/models"
)

// RequestRepository persists lesson change requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, lesson_id, type, status, requires_teacher_approval, requested_start_at,
       requested_teacher_id, notes, created_by, created_by_name, created_by_role,
       teacher_decided_at, admin_notes, processed_by, created_at, updated_at`

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.LessonRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	const query = `INSERT INTO lesson_requests
	(id, lesson_id, type, status, requires_teacher_approval, requested_start_at, requested_teacher_id,
	 notes, created_by, created_by_name, created_by_role, teacher_decided_at, admin_notes, processed_by,
	 created_at, updated_at)
	VALUES (:id, :lesson_id, :type, :status, :requires_teacher_approval, :requested_start_at, :requested_teacher_id,
	 :notes, :created_by, :created_by_name, :created_by_role, :teacher_decided_at, :admin_notes, :processed_by,
	 :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create lesson request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.LessonRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM lesson_requests WHERE id = $1`
	var request models.LessonRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListOpenByLesson returns requests for a lesson still awaiting a decision
// (pending or rejected by the teacher but not yet handled by administration).
func (r *RequestRepository) ListOpenByLesson(ctx context.Context, lessonID string) ([]models.LessonRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM lesson_requests
	WHERE lesson_id = $1 AND status IN ($2, $3)
	ORDER BY created_at`
	var requests []models.LessonRequest
	err := r.db.SelectContext(ctx, &requests, query, lessonID,
		models.RequestStatusPending, models.RequestStatusTeacherRejected)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	return requests, nil
}

// List returns requests matching the filter (latest first).
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + requestColumns + ` FROM lesson_requests`)
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.LessonID != "" {
		args = append(args, filter.LessonID)
		conditions = append(conditions, fmt.Sprintf("lesson_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("lesson_id IN (SELECT id FROM lessons WHERE teacher_id = $%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.LessonRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lesson requests: %w", err)
	}
	return requests, nil
}

// UpdateDecisionParams groups mutable columns for a decision transition.
type UpdateDecisionParams struct {
	ID               string
	Status           models.RequestStatus
	ProcessedBy      string
	TeacherDecidedAt *time.Time
	AdminNotes       *string
	// ExpectedStatuses guards the transition: the row is only updated while
	// still in one of these states. Zero affected rows surfaces as
	// sql.ErrNoRows so the service can fail loudly on double decisions.
	ExpectedStatuses []models.RequestStatus
}

// UpdateDecision persists a decision outcome with an optimistic state guard.
func (r *RequestRepository) UpdateDecision(ctx context.Context, params UpdateDecisionParams) error {
	if len(params.ExpectedStatuses) == 0 {
		params.ExpectedStatuses = []models.RequestStatus{models.RequestStatusPending}
	}
	expected := make([]string, len(params.ExpectedStatuses))
	for i, s := range params.ExpectedStatuses {
		expected[i] = fmt.Sprintf("'%s'", s)
	}
	query := fmt.Sprintf(`UPDATE lesson_requests SET
	status = :status, processed_by = :processed_by, teacher_decided_at = :teacher_decided_at,
	admin_notes = :admin_notes, updated_at = :updated_at
	WHERE id = :id AND status IN (%s)`, strings.Join(expected, ","))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                 params.ID,
		"status":             params.Status,
		"processed_by":       params.ProcessedBy,
		"teacher_decided_at": params.TeacherDecidedAt,
		"admin_notes":        params.AdminNotes,
		"updated_at":         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update request decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
