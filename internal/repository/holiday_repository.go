package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vemfalar/agenda-api/internal/models"
)

// HolidayRepository persists the holiday date table.
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository constructs the repository.
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// IsHoliday reports whether the date key is registered as a holiday.
func (r *HolidayRepository) IsHoliday(ctx context.Context, date string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM holidays WHERE date = $1`, date); err != nil {
		return false, fmt.Errorf("check holiday: %w", err)
	}
	return count > 0, nil
}

// List returns all registered holidays ordered by date.
func (r *HolidayRepository) List(ctx context.Context) ([]models.Holiday, error) {
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, `SELECT date, name, created_at FROM holidays ORDER BY date`); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}

// Create registers a holiday date.
func (r *HolidayRepository) Create(ctx context.Context, holiday *models.Holiday) error {
	if holiday.CreatedAt.IsZero() {
		holiday.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO holidays (date, name, created_at) VALUES (:date, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, holiday); err != nil {
		return fmt.Errorf("create holiday: %w", err)
	}
	return nil
}

// Delete removes a holiday date.
func (r *HolidayRepository) Delete(ctx context.Context, date string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE date = $1`, date); err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	return nil
}
