package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vemfalar/agenda-api/internal/models"
)

// RecordRepository reads lesson-record (book/material) entries.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// LatestByEnrollments returns the most recent record per enrollment, most
// recent by lesson start time across all records for that enrollment.
func (r *RecordRepository) LatestByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]models.LessonRecord, error) {
	if len(enrollmentIDs) == 0 {
		return map[string]models.LessonRecord{}, nil
	}
	const query = `SELECT DISTINCT ON (enrollment_id) id, enrollment_id, book, material, lesson_at, created_at
	FROM lesson_records
	WHERE enrollment_id = ANY($1)
	ORDER BY enrollment_id, lesson_at DESC`
	var records []models.LessonRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("load latest lesson records: %w", err)
	}
	latest := make(map[string]models.LessonRecord, len(records))
	for _, record := range records {
		latest[record.EnrollmentID] = record
	}
	return latest, nil
}
