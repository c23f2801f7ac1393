package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vemfalar/agenda-api/internal/models"
)

// EnrollmentRepository reads enrollment reference data. The scheduling engine
// never mutates enrollments; they are owned by the registration product.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, student_name, student_email, category, language,
       weekly_frequency, lesson_minutes, is_group, group_name, status, paused_at, activation_date, notice_hours`

// GetByID fetches an enrollment by identifier.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListAuditable returns billable enrollments carrying a contracted weekly
// frequency, the population the weekly frequency check runs over.
func (r *EnrollmentRepository) ListAuditable(ctx context.Context) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE status IN ($1, $2) AND weekly_frequency IS NOT NULL
	ORDER BY student_name`
	var enrollments []models.Enrollment
	err := r.db.SelectContext(ctx, &enrollments, query,
		models.EnrollmentStatusActive, models.EnrollmentStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("list auditable enrollments: %w", err)
	}
	return enrollments, nil
}
