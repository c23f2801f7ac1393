package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vemfalar/agenda-api/internal/models"
)

// LessonRepository persists lesson occurrences.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const lessonColumns = `id, enrollment_id, teacher_id, status, start_at, duration_minutes, notes, audit_trail, created_by, created_by_name, created_at, updated_at`

// Create inserts a new lesson row.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusConfirmed
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons
	(id, enrollment_id, teacher_id, status, start_at, duration_minutes, notes, audit_trail, created_by, created_by_name, created_at, updated_at)
	VALUES (:id, :enrollment_id, :teacher_id, :status, :start_at, :duration_minutes, :notes, :audit_trail, :created_by, :created_by_name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// GetByID fetches a lesson by identifier.
func (r *LessonRepository) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// Update persists the mutable lesson columns.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET
	teacher_id = :teacher_id, status = :status, start_at = :start_at,
	duration_minutes = :duration_minutes, notes = :notes, audit_trail = :audit_trail,
	updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lesson update rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update lesson %s: no rows affected", lesson.ID)
	}
	return nil
}

// Delete removes exactly one lesson.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}

// DeleteSeriesFrom removes the lesson and every future occurrence of the same
// recurring series: same enrollment, teacher, weekday and time-of-day, with
// start_at >= from. Lessons before the pivot are never touched.
func (r *LessonRepository) DeleteSeriesFrom(ctx context.Context, enrollmentID, teacherID string, weekday, minuteOfDay int, from time.Time) (int64, error) {
	const query = `DELETE FROM lessons
	WHERE enrollment_id = $1 AND teacher_id = $2 AND start_at >= $3
	AND EXTRACT(DOW FROM start_at) = $4
	AND EXTRACT(HOUR FROM start_at) * 60 + EXTRACT(MINUTE FROM start_at) = $5`
	result, err := r.db.ExecContext(ctx, query, enrollmentID, teacherID, from, weekday, minuteOfDay)
	if err != nil {
		return 0, fmt.Errorf("delete lesson series: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check series delete rows: %w", err)
	}
	return rows, nil
}

// ListByTeacherBetween returns a teacher's non-cancelled lessons whose start
// falls inside [from, to).
func (r *LessonRepository) ListByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
	WHERE teacher_id = $1 AND start_at >= $2 AND start_at < $3 AND status <> $4
	ORDER BY start_at`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, teacherID, from, to, models.LessonStatusCancelled); err != nil {
		return nil, fmt.Errorf("list teacher lessons: %w", err)
	}
	return lessons, nil
}

// CountByEnrollmentAndTeacher reports how many lessons ever linked the pair.
// Zero means the next creation is the teacher's first lesson with the student.
func (r *LessonRepository) CountByEnrollmentAndTeacher(ctx context.Context, enrollmentID, teacherID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM lessons WHERE enrollment_id = $1 AND teacher_id = $2`
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, teacherID); err != nil {
		return 0, fmt.Errorf("count enrollment lessons: %w", err)
	}
	return count, nil
}

// ListDetailsBetween returns lessons in [from, to) enriched with student and
// teacher display data for the weekly auditor.
func (r *LessonRepository) ListDetailsBetween(ctx context.Context, from, to time.Time) ([]models.LessonDetail, error) {
	const query = `SELECT l.id, l.enrollment_id, l.teacher_id, l.status, l.start_at, l.duration_minutes,
	l.notes, l.audit_trail, l.created_by, l.created_by_name, l.created_at, l.updated_at,
	e.student_name AS student_name, t.full_name AS teacher_name, t.active AS teacher_active
	FROM lessons l
	JOIN enrollments e ON e.id = l.enrollment_id
	JOIN teachers t ON t.id = l.teacher_id
	WHERE l.start_at >= $1 AND l.start_at < $2
	ORDER BY l.start_at`
	var details []models.LessonDetail
	if err := r.db.SelectContext(ctx, &details, query, from, to); err != nil {
		return nil, fmt.Errorf("list lesson details: %w", err)
	}
	return details, nil
}

// ListDetailsByTeacherBetween returns a teacher's non-cancelled lessons in
// [from, to) with student display data, for conflict messages.
func (r *LessonRepository) ListDetailsByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error) {
	const query = `SELECT l.id, l.enrollment_id, l.teacher_id, l.status, l.start_at, l.duration_minutes,
	l.notes, l.audit_trail, l.created_by, l.created_by_name, l.created_at, l.updated_at,
	e.student_name AS student_name, t.full_name AS teacher_name, t.active AS teacher_active
	FROM lessons l
	JOIN enrollments e ON e.id = l.enrollment_id
	JOIN teachers t ON t.id = l.teacher_id
	WHERE l.teacher_id = $1 AND l.start_at >= $2 AND l.start_at < $3 AND l.status <> $4
	ORDER BY l.start_at`
	var details []models.LessonDetail
	if err := r.db.SelectContext(ctx, &details, query, teacherID, from, to, models.LessonStatusCancelled); err != nil {
		return nil, fmt.Errorf("list teacher lesson details: %w", err)
	}
	return details, nil
}

// ListFutureDetailsByTeacher returns a teacher's non-cancelled lessons from
// the given instant on, with student display data, for slot replacement
// validation.
func (r *LessonRepository) ListFutureDetailsByTeacher(ctx context.Context, teacherID string, from time.Time) ([]models.LessonDetail, error) {
	const query = `SELECT l.id, l.enrollment_id, l.teacher_id, l.status, l.start_at, l.duration_minutes,
	l.notes, l.audit_trail, l.created_by, l.created_by_name, l.created_at, l.updated_at,
	e.student_name AS student_name, t.full_name AS teacher_name, t.active AS teacher_active
	FROM lessons l
	JOIN enrollments e ON e.id = l.enrollment_id
	JOIN teachers t ON t.id = l.teacher_id
	WHERE l.teacher_id = $1 AND l.start_at >= $2 AND l.status <> $3
	ORDER BY l.start_at`
	var details []models.LessonDetail
	if err := r.db.SelectContext(ctx, &details, query, teacherID, from, models.LessonStatusCancelled); err != nil {
		return nil, fmt.Errorf("list future teacher lesson details: %w", err)
	}
	return details, nil
}

// List returns lessons matching the filter, ordered chronologically.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + lessonColumns + ` FROM lessons`)
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 5)

	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY start_at")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}
