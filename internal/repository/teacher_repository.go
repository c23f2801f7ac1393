package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vemfalar/agenda-api/internal/models"
)

// TeacherRepository reads teacher reference data and owns availability slots.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// GetByID fetches a teacher by identifier.
func (r *TeacherRepository) GetByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, full_name, email, active, languages, created_at, updated_at
	FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListSlots returns a teacher's weekly availability windows ordered by
// weekday and start minute.
func (r *TeacherRepository) ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, weekday, start_minute, end_minute
	FROM teacher_availability_slots WHERE teacher_id = $1
	ORDER BY weekday, start_minute`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// ReplaceSlots swaps the teacher's full slot set in one transaction. The
// caller is responsible for the orphaned-lesson validation; a failed insert
// rolls the whole replacement back, leaving the stored slots unchanged.
func (r *TeacherRepository) ReplaceSlots(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot replacement: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_availability_slots WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear availability slots: %w", err)
	}
	const insert = `INSERT INTO teacher_availability_slots (id, teacher_id, weekday, start_minute, end_minute)
	VALUES ($1, $2, $3, $4, $5)`
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		slots[i].TeacherID = teacherID
		if _, err := tx.ExecContext(ctx, insert, slots[i].ID, teacherID, slots[i].Weekday, slots[i].StartMinute, slots[i].EndMinute); err != nil {
			return fmt.Errorf("insert availability slot: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE teachers SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), teacherID); err != nil {
		return fmt.Errorf("touch teacher: %w", err)
	}
	return tx.Commit()
}
