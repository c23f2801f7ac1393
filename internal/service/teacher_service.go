package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type teacherSlotStore interface {
	GetByID(ctx context.Context, id string) (*models.Teacher, error)
	ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
	ReplaceSlots(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error
}

type slotValidator interface {
	ValidateSlotReplacement(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error
}

// TeacherService exposes teacher reference data and owns availability slot
// replacement.
type TeacherService struct {
	repo      teacherSlotStore
	validator slotValidator
	logger    *zap.Logger
}

// NewTeacherService constructs the service.
func NewTeacherService(repo teacherSlotStore, validator slotValidator, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: validator, logger: logger}
}

// Get returns a teacher by identifier.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Slots returns the teacher's availability windows.
func (s *TeacherService) Slots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	if _, err := s.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListSlots(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return slots, nil
}

// ReplaceAvailability swaps the full slot set after checking that no future
// non-cancelled lesson would fall outside the proposed windows. Rejection
// leaves the stored slots unchanged.
func (s *TeacherService) ReplaceAvailability(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) ([]models.AvailabilitySlot, error) {
	if _, err := s.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	slots := make([]models.AvailabilitySlot, 0, len(req.Slots))
	for _, in := range req.Slots {
		if in.EndMinute <= in.StartMinute {
			return nil, appErrors.Clone(appErrors.ErrValidation, "slot end must be after slot start")
		}
		slots = append(slots, models.AvailabilitySlot{
			TeacherID:   teacherID,
			Weekday:     in.Weekday,
			StartMinute: in.StartMinute,
			EndMinute:   in.EndMinute,
		})
	}
	if err := s.validator.ValidateSlotReplacement(ctx, teacherID, slots); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceSlots(ctx, teacherID, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability")
	}
	return slots, nil
}
