package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type availabilityTeacherStore interface {
	GetByID(ctx context.Context, id string) (*models.Teacher, error)
	ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
}

type availabilityLessonStore interface {
	ListByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error)
	ListFutureDetailsByTeacher(ctx context.Context, teacherID string, from time.Time) ([]models.LessonDetail, error)
}

type availabilityHolidayStore interface {
	IsHoliday(ctx context.Context, date string) (bool, error)
}

// AvailabilityService resolves a teacher's bookable time and validates
// availability slot replacements against already-scheduled lessons.
type AvailabilityService struct {
	teachers    availabilityTeacherStore
	lessons     availabilityLessonStore
	holidays    availabilityHolidayStore
	stepMinutes int
	logger      *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(teachers availabilityTeacherStore, lessons availabilityLessonStore, holidays availabilityHolidayStore, stepMinutes int, logger *zap.Logger) *AvailabilityService {
	if stepMinutes <= 0 {
		stepMinutes = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		teachers:    teachers,
		lessons:     lessons,
		holidays:    holidays,
		stepMinutes: stepMinutes,
		logger:      logger,
	}
}

// FreeSlots computes the teacher's bookable intervals on the given day. The
// walk moves in fixed steps; a candidate [t, t+duration) is free iff it fits
// entirely inside an availability window, overlaps no existing non-cancelled
// lesson, the date is not a holiday, and the date is not strictly before
// notBefore (e.g. the original lesson's date when rescheduling forward only).
func (s *AvailabilityService) FreeSlots(ctx context.Context, teacherID string, date time.Time, durationMinutes int, notBefore *time.Time) ([]dto.FreeSlot, error) {
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	teacher, err := s.teachers.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if notBefore != nil {
		min := time.Date(notBefore.Year(), notBefore.Month(), notBefore.Day(), 0, 0, 0, 0, notBefore.Location())
		if day.Before(min) {
			return nil, nil
		}
	}

	holiday, err := s.holidays.IsHoliday(ctx, models.DateKey(day))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
	}
	if holiday {
		return nil, nil
	}

	slots, err := s.teachers.ListSlots(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	// A teacher with zero configured windows has nothing bookable from the
	// student's point of view. The permissive empty-set semantics apply only
	// to slot replacement validation, never here.
	if len(slots) == 0 {
		return nil, nil
	}

	booked, err := s.lessons.ListByTeacherBetween(ctx, teacher.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked lessons")
	}

	weekday := int(day.Weekday())
	var free []dto.FreeSlot
	for _, slot := range slots {
		if slot.Weekday != weekday {
			continue
		}
		for minute := slot.StartMinute; minute+durationMinutes <= slot.EndMinute; minute += s.stepMinutes {
			start := day.Add(time.Duration(minute) * time.Minute)
			end := start.Add(time.Duration(durationMinutes) * time.Minute)
			if overlapsAny(booked, start, end) {
				continue
			}
			free = append(free, dto.FreeSlot{Start: start, End: end})
		}
	}
	return free, nil
}

// FreeDates returns the date keys within the horizon on which the teacher has
// at least one free slot of the requested duration.
func (s *AvailabilityService) FreeDates(ctx context.Context, teacherID string, from time.Time, durationMinutes, horizonMonths int) ([]string, error) {
	if horizonMonths <= 0 {
		horizonMonths = 1
	}
	end := from.AddDate(0, horizonMonths, 0)
	var dates []string
	for day := from; day.Before(end); day = day.AddDate(0, 0, 1) {
		slots, err := s.FreeSlots(ctx, teacherID, day, durationMinutes, &from)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			dates = append(dates, models.DateKey(day))
		}
	}
	return dates, nil
}

// ValidateSlotReplacement checks that no future non-cancelled lesson would be
// orphaned by the proposed slot set. An empty proposed set skips the check:
// a teacher without configured windows is treated as available at all hours
// for replacement purposes.
func (s *AvailabilityService) ValidateSlotReplacement(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error {
	if len(slots) == 0 {
		return nil
	}
	future, err := s.lessons.ListFutureDetailsByTeacher(ctx, teacherID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load future lessons")
	}
	var conflicts []dto.SlotConflict
	for _, lesson := range future {
		weekday := int(lesson.StartAt.Weekday())
		startMinute := lesson.StartAt.Hour()*60 + lesson.StartAt.Minute()
		endMinute := startMinute + lesson.DurationMinutes
		fits := false
		for _, slot := range slots {
			if slot.Contains(weekday, startMinute, endMinute) {
				fits = true
				break
			}
		}
		if !fits {
			conflicts = append(conflicts, dto.SlotConflict{
				LessonID:    lesson.ID,
				StudentName: lesson.StudentName,
				StartAt:     lesson.StartAt,
			})
		}
	}
	if len(conflicts) > 0 {
		err := appErrors.Clone(appErrors.ErrScheduleConflict,
			fmt.Sprintf("%d future lessons fall outside the new availability", len(conflicts)))
		err.Err = &SlotConflictError{Conflicts: conflicts}
		return err
	}
	return nil
}

// SlotConflictError carries the lessons orphaned by a slot replacement.
type SlotConflictError struct {
	Conflicts []dto.SlotConflict
}

// Error implements the error interface.
func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("%d lessons outside proposed availability", len(e.Conflicts))
}

func overlapsAny(lessons []models.Lesson, start, end time.Time) bool {
	for i := range lessons {
		if start.Before(lessons[i].EndAt()) && lessons[i].StartAt.Before(end) {
			return true
		}
	}
	return false
}
