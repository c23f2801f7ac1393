package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type holidayStore interface {
	IsHoliday(ctx context.Context, date string) (bool, error)
	List(ctx context.Context) ([]models.Holiday, error)
	Create(ctx context.Context, holiday *models.Holiday) error
	Delete(ctx context.Context, date string) error
}

// HolidayService manages the holiday date table consulted by every
// scheduling guard.
type HolidayService struct {
	repo   holidayStore
	logger *zap.Logger
}

// NewHolidayService constructs the service.
func NewHolidayService(repo holidayStore, logger *zap.Logger) *HolidayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayService{repo: repo, logger: logger}
}

// List returns all registered holidays.
func (s *HolidayService) List(ctx context.Context) ([]models.Holiday, error) {
	holidays, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holidays")
	}
	return holidays, nil
}

// Create registers a holiday date. Duplicate dates are rejected.
func (s *HolidayService) Create(ctx context.Context, req dto.CreateHolidayRequest) (*models.Holiday, error) {
	if _, err := time.Parse(models.HolidayDateLayout, req.Date); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use the YYYY-MM-DD format")
	}
	exists, err := s.repo.IsHoliday(ctx, req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "date is already registered as a holiday")
	}
	holiday := &models.Holiday{Date: req.Date, Name: req.Name}
	if err := s.repo.Create(ctx, holiday); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create holiday")
	}
	return holiday, nil
}

// Delete removes a holiday date.
func (s *HolidayService) Delete(ctx context.Context, date string) error {
	if _, err := time.Parse(models.HolidayDateLayout, date); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "date must use the YYYY-MM-DD format")
	}
	exists, err := s.repo.IsHoliday(ctx, date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
	}
	if err := s.repo.Delete(ctx, date); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete holiday")
	}
	return nil
}
