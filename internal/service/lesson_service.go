package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/internal/notify"
	"github.com/vemfalar/agenda-api/internal/repository"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type lessonStore interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	GetByID(ctx context.Context, id string) (*models.Lesson, error)
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
	DeleteSeriesFrom(ctx context.Context, enrollmentID, teacherID string, weekday, minuteOfDay int, from time.Time) (int64, error)
	CountByEnrollmentAndTeacher(ctx context.Context, enrollmentID, teacherID string) (int, error)
	ListDetailsByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
}

type lessonEnrollmentStore interface {
	GetByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type lessonTeacherStore interface {
	GetByID(ctx context.Context, id string) (*models.Teacher, error)
}

type lessonHolidayStore interface {
	IsHoliday(ctx context.Context, date string) (bool, error)
}

type lessonRequestStore interface {
	ListOpenByLesson(ctx context.Context, lessonID string) ([]models.LessonRequest, error)
	UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error
}

// LessonService is the lesson lifecycle manager. It is the only component
// permitted to mutate lesson status; the change-request workflow goes through
// its contract rather than touching lessons directly.
type LessonService struct {
	repo        lessonStore
	enrollments lessonEnrollmentStore
	teachers    lessonTeacherStore
	holidays    lessonHolidayStore
	requests    lessonRequestStore
	notifier    notify.Notifier
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewLessonService constructs the service.
func NewLessonService(repo lessonStore, enrollments lessonEnrollmentStore, teachers lessonTeacherStore, holidays lessonHolidayStore, requests lessonRequestStore, notifier notify.Notifier, metrics *MetricsService, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &LessonService{
		repo:        repo,
		enrollments: enrollments,
		teachers:    teachers,
		holidays:    holidays,
		requests:    requests,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create books a single lesson or a recurring series. Occurrences landing on
// a holiday are silently skipped; a call whose every occurrence is skipped
// fails with a holiday conflict and creates nothing.
func (s *LessonService) Create(ctx context.Context, req dto.CreateLessonRequest, actor *models.Actor) (*dto.CreateLessonsResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	status := req.Status
	if status == "" {
		status = models.LessonStatusConfirmed
	}
	if status != models.LessonStatusConfirmed && status != models.LessonStatusReposicao {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lessons are created as CONFIRMADA or REPOSICAO")
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	teacher, err := s.loadTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}

	occurrences, err := expandRecurrence(req)
	if err != nil {
		return nil, err
	}

	kept := make([]time.Time, 0, len(occurrences))
	var skipped []time.Time
	for _, at := range occurrences {
		holiday, err := s.holidays.IsHoliday(ctx, models.DateKey(at))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
		}
		if holiday {
			skipped = append(skipped, at)
			continue
		}
		kept = append(kept, at)
	}
	if len(kept) == 0 {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "all requested dates fall on registered holidays")
	}

	// Guard every occurrence before committing any, so rejections never
	// leave a half-created series behind.
	for _, at := range kept {
		if err := s.validateAssignment(ctx, enrollment, teacher, at, req.DurationMinutes, ""); err != nil {
			return nil, err
		}
	}

	firstEver := false
	if count, err := s.repo.CountByEnrollmentAndTeacher(ctx, enrollment.ID, teacher.ID); err == nil {
		firstEver = count == 0
	} else {
		s.logger.Warn("failed to count prior lessons", zap.Error(err))
	}

	created := make([]models.Lesson, 0, len(kept))
	now := time.Now().UTC()
	for _, at := range kept {
		lesson := models.Lesson{
			EnrollmentID:    enrollment.ID,
			TeacherID:       teacher.ID,
			Status:          status,
			StartAt:         at,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			AuditTrail:      models.AuditTrail{}.Append(actor.Name, models.AuditActionCreated, now),
			CreatedBy:       actor.ID,
			CreatedByName:   actor.Name,
		}
		if err := s.repo.Create(ctx, &lesson); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
		}
		s.metrics.LessonCreated(string(status))
		created = append(created, lesson)
	}

	if firstEver {
		s.notify(ctx, notify.KindNewStudent, teacher.Email, notify.Context{
			"student_name": enrollment.StudentName,
			"teacher_name": teacher.FullName,
		})
	}
	kind := notify.KindLessonConfirmed
	if status == models.LessonStatusReposicao {
		kind = notify.KindReposicaoScheduled
	}
	for i := range created {
		data := notify.Context{
			"student_name": enrollment.StudentName,
			"teacher_name": teacher.FullName,
			"start_at":     created[i].StartAt,
			"duration":     created[i].DurationMinutes,
		}
		s.notify(ctx, kind, enrollment.StudentEmail, data)
		s.notify(ctx, kind, teacher.Email, data)
	}

	return &dto.CreateLessonsResult{Created: created, Skipped: skipped}, nil
}

// Get returns one lesson.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	return s.loadLesson(ctx, id)
}

// List returns lessons matching the filter.
func (s *LessonService) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	lessons, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Update applies partial field changes with the same guards as creation. A
// transition to CANCELADA or REPOSICAO appends an audit entry; open change
// requests referencing the lesson are auto-completed.
func (s *LessonService) Update(ctx context.Context, id string, req dto.UpdateLessonRequest, actor *models.Actor) (*models.Lesson, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	lesson, err := s.loadLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.loadEnrollment(ctx, lesson.EnrollmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Status != nil && *req.Status != lesson.Status && lesson.Status == models.LessonStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "a cancelled lesson cannot transition to another status")
	}
	if req.StartAt != nil && lesson.StartAt.Before(now) {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "past lessons cannot be moved")
	}

	teacherID := lesson.TeacherID
	if req.TeacherID != nil {
		teacherID = *req.TeacherID
	}
	startAt := lesson.StartAt
	if req.StartAt != nil {
		startAt = *req.StartAt
	}
	duration := lesson.DurationMinutes
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
		}
		duration = *req.DurationMinutes
	}

	scheduleChanged := req.TeacherID != nil || req.StartAt != nil
	if scheduleChanged {
		teacher, err := s.loadTeacher(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		if req.StartAt != nil {
			holiday, err := s.holidays.IsHoliday(ctx, models.DateKey(startAt))
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
			}
			if holiday {
				return nil, appErrors.Clone(appErrors.ErrScheduleConflict, fmt.Sprintf("%s is a registered holiday", models.DateKey(startAt)))
			}
		}
		if err := s.validateAssignment(ctx, enrollment, teacher, startAt, duration, lesson.ID); err != nil {
			return nil, err
		}
	}

	statusChanged := req.Status != nil && *req.Status != lesson.Status
	if statusChanged {
		switch *req.Status {
		case models.LessonStatusCancelled:
			lesson.AuditTrail = lesson.AuditTrail.Append(actor.Name, models.AuditActionCancelled, now)
		case models.LessonStatusReposicao:
			lesson.AuditTrail = lesson.AuditTrail.Append(actor.Name, models.AuditActionRescheduled, now)
		case models.LessonStatusConfirmed:
			// no audit sentence for confirming
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported lesson status")
		}
		lesson.Status = *req.Status
	}

	lesson.TeacherID = teacherID
	lesson.StartAt = startAt
	lesson.DurationMinutes = duration
	if req.Notes != nil {
		lesson.Notes = *req.Notes
	}

	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	if statusChanged {
		teacher, terr := s.loadTeacher(ctx, lesson.TeacherID)
		data := notify.Context{
			"student_name": enrollment.StudentName,
			"start_at":     lesson.StartAt,
		}
		recipientTeacher := ""
		if terr == nil {
			data["teacher_name"] = teacher.FullName
			recipientTeacher = teacher.Email
		}
		switch lesson.Status {
		case models.LessonStatusCancelled:
			s.metrics.LessonCancelled()
			s.notify(ctx, notify.KindLessonCancelled, enrollment.StudentEmail, data)
			if recipientTeacher != "" {
				s.notify(ctx, notify.KindLessonCancelled, recipientTeacher, data)
			}
		case models.LessonStatusReposicao:
			s.notify(ctx, notify.KindReposicaoScheduled, enrollment.StudentEmail, data)
			if recipientTeacher != "" {
				s.notify(ctx, notify.KindReposicaoScheduled, recipientTeacher, data)
			}
		}
	}

	if scheduleChanged || statusChanged {
		s.completeOpenRequests(ctx, lesson.ID, enrollment, actor)
	}

	return lesson, nil
}

// Delete removes a lesson. With cascade it also removes every future lesson
// of the same recurring series (same enrollment, teacher, weekday and
// time-of-day, start_at >= this lesson's). Deletion sends no notification;
// cancellation notices only go out on an explicit status transition.
func (s *LessonService) Delete(ctx context.Context, id string, cascade bool, actor *models.Actor) (int64, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	lesson, err := s.loadLesson(ctx, id)
	if err != nil {
		return 0, err
	}
	if !cascade {
		if err := s.repo.Delete(ctx, lesson.ID); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
		}
		return 1, nil
	}
	weekday := int(lesson.StartAt.Weekday())
	minuteOfDay := lesson.StartAt.Hour()*60 + lesson.StartAt.Minute()
	count, err := s.repo.DeleteSeriesFrom(ctx, lesson.EnrollmentID, lesson.TeacherID, weekday, minuteOfDay, lesson.StartAt)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson series")
	}
	return count, nil
}

// Cancel transitions a lesson to CANCELADA on behalf of the change-request
// workflow, attributing the audit entry to the given display name. The
// workflow owns the surrounding notifications.
func (s *LessonService) Cancel(ctx context.Context, lessonID, attribution string, at time.Time) (*models.Lesson, error) {
	lesson, err := s.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !lesson.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "lesson is not in an active status")
	}
	lesson.AuditTrail = lesson.AuditTrail.Append(attribution, models.AuditActionCancelled, at)
	lesson.Status = models.LessonStatusCancelled
	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel lesson")
	}
	s.metrics.LessonCancelled()
	return lesson, nil
}

// CreateReplacement books the reposição produced by an approved change
// request, carrying a prepared audit trail (request and approval entries).
func (s *LessonService) CreateReplacement(ctx context.Context, original *models.Lesson, startAt time.Time, teacherID string, trail models.AuditTrail, actor *models.Actor) (*models.Lesson, error) {
	enrollment, err := s.loadEnrollment(ctx, original.EnrollmentID)
	if err != nil {
		return nil, err
	}
	teacher, err := s.loadTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	holiday, err := s.holidays.IsHoliday(ctx, models.DateKey(startAt))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
	}
	if holiday {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, fmt.Sprintf("%s is a registered holiday", models.DateKey(startAt)))
	}
	if err := s.validateAssignment(ctx, enrollment, teacher, startAt, original.DurationMinutes, original.ID); err != nil {
		return nil, err
	}
	lesson := models.Lesson{
		EnrollmentID:    enrollment.ID,
		TeacherID:       teacher.ID,
		Status:          models.LessonStatusReposicao,
		StartAt:         startAt,
		DurationMinutes: original.DurationMinutes,
		AuditTrail:      trail,
		CreatedBy:       actor.ID,
		CreatedByName:   actor.Name,
	}
	if err := s.repo.Create(ctx, &lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement lesson")
	}
	s.metrics.LessonCreated(string(models.LessonStatusReposicao))
	return &lesson, nil
}

// validateAssignment runs the shared guards for giving a teacher a slot on an
// enrollment: enrollment state, pause window, language compatibility and a
// best-effort overlap check against the teacher's day.
func (s *LessonService) validateAssignment(ctx context.Context, enrollment *models.Enrollment, teacher *models.Teacher, startAt time.Time, durationMinutes int, excludeLessonID string) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if enrollment.Status == models.EnrollmentStatusInactive && !startAt.Before(today) {
		return appErrors.Clone(appErrors.ErrScheduleConflict, "enrollment is inactive; lessons cannot be scheduled from today onwards")
	}
	if enrollment.InPauseWindow(startAt) {
		return appErrors.Clone(appErrors.ErrScheduleConflict, "enrollment is paused for this date; set an activation date before assigning a teacher")
	}
	if !teacher.Teaches(enrollment.Language) {
		return appErrors.Clone(appErrors.ErrLanguageMismatch,
			fmt.Sprintf("teacher %s does not teach %s", teacher.FullName, enrollment.Language))
	}

	dayStart := time.Date(startAt.Year(), startAt.Month(), startAt.Day(), 0, 0, 0, 0, startAt.Location())
	booked, err := s.repo.ListDetailsByTeacherBetween(ctx, teacher.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher bookings")
	}
	end := startAt.Add(time.Duration(durationMinutes) * time.Minute)
	for i := range booked {
		if booked[i].ID == excludeLessonID {
			continue
		}
		if startAt.Before(booked[i].EndAt()) && booked[i].StartAt.Before(end) {
			return appErrors.Clone(appErrors.ErrScheduleConflict,
				fmt.Sprintf("teacher already has a lesson with %s at %s",
					booked[i].StudentName, booked[i].StartAt.Format("2006-01-02 15:04")))
		}
	}
	return nil
}

// completeOpenRequests marks pending or teacher-rejected requests for the
// lesson as completed after a direct edit, and tells the student. Failures
// here are logged, never surfaced: the lesson mutation already succeeded.
func (s *LessonService) completeOpenRequests(ctx context.Context, lessonID string, enrollment *models.Enrollment, actor *models.Actor) {
	open, err := s.requests.ListOpenByLesson(ctx, lessonID)
	if err != nil {
		s.logger.Warn("failed to list open requests", zap.String("lesson_id", lessonID), zap.Error(err))
		return
	}
	note := "processed via direct lesson edit"
	for _, request := range open {
		err := s.requests.UpdateDecision(ctx, repository.UpdateDecisionParams{
			ID:          request.ID,
			Status:      models.RequestStatusCompleted,
			ProcessedBy: actor.ID,
			AdminNotes:  &note,
			ExpectedStatuses: []models.RequestStatus{
				models.RequestStatusPending,
				models.RequestStatusTeacherRejected,
			},
		})
		if err != nil {
			s.logger.Warn("failed to auto-complete request", zap.String("request_id", request.ID), zap.Error(err))
			continue
		}
		s.notify(ctx, notify.KindRequestApproved, enrollment.StudentEmail, notify.Context{
			"request_id": request.ID,
			"note":       note,
		})
	}
}

func (s *LessonService) loadLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

func (s *LessonService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *LessonService) loadTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func (s *LessonService) notify(ctx context.Context, kind notify.Kind, recipient string, data notify.Context) {
	if recipient == "" {
		return
	}
	if err := s.notifier.Notify(ctx, kind, recipient, data); err != nil {
		s.metrics.NotificationFailure()
		s.logger.Warn("notification delivery failed",
			zap.String("kind", string(kind)),
			zap.String("recipient", recipient),
			zap.Error(err))
	}
}

// expandRecurrence turns a creation payload into chronologically ordered
// occurrence times. The two recurrence modes are mutually exclusive.
func expandRecurrence(req dto.CreateLessonRequest) ([]time.Time, error) {
	if req.Recurrence == nil {
		return []time.Time{req.StartAt}, nil
	}
	rec := *req.Recurrence
	if rec.Repeat != nil && rec.Weeks != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "repeat and weeks recurrence modes are mutually exclusive")
	}

	var occurrences []time.Time
	switch {
	case rec.Repeat != nil:
		if *rec.Repeat <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "repeat must be positive")
		}
		for i := 0; i < *rec.Repeat; i++ {
			occurrences = append(occurrences, req.StartAt.AddDate(0, 0, 7*i))
		}
	case rec.Weeks != nil:
		if *rec.Weeks <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "weeks must be positive")
		}
		perWeek := 1
		if rec.PerWeek != nil {
			perWeek = *rec.PerWeek
		}
		if perWeek != 1 && perWeek != 2 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "per_week must be 1 or 2")
		}
		if perWeek == 2 {
			if rec.SecondStartAt == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "second_start_at is required for two occurrences per week")
			}
			if !rec.SecondStartAt.After(req.StartAt) || !rec.SecondStartAt.Before(req.StartAt.AddDate(0, 0, 7)) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "second_start_at must fall later in the same week")
			}
		}
		for w := 0; w < *rec.Weeks; w++ {
			occurrences = append(occurrences, req.StartAt.AddDate(0, 0, 7*w))
			if perWeek == 2 {
				occurrences = append(occurrences, rec.SecondStartAt.AddDate(0, 0, 7*w))
			}
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence requires repeat or weeks")
	}

	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Before(occurrences[j]) })
	return occurrences, nil
}
