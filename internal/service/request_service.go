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
	"github.com/vemfalar/agenda-api/internal/notify"
	"github.com/vemfalar/agenda-api/internal/repository"
	"github.com/vemfalar/agenda-api/pkg/config"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.LessonRequest) error
	GetByID(ctx context.Context, id string) (*models.LessonRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, error)
	UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error
}

type requestLessonReader interface {
	GetByID(ctx context.Context, id string) (*models.Lesson, error)
}

// lessonLifecycle is the only path through which the workflow touches lesson
// state. Cancellation is committed before the replacement is created.
type lessonLifecycle interface {
	Cancel(ctx context.Context, lessonID, attribution string, at time.Time) (*models.Lesson, error)
	CreateReplacement(ctx context.Context, original *models.Lesson, startAt time.Time, teacherID string, trail models.AuditTrail, actor *models.Actor) (*models.Lesson, error)
}

// RequestService runs the change-request approval workflow. It owns request
// status transitions exclusively; lesson transitions go through the lifecycle
// contract.
type RequestService struct {
	repo        requestStore
	lessons     requestLessonReader
	lifecycle   lessonLifecycle
	enrollments lessonEnrollmentStore
	teachers    lessonTeacherStore
	holidays    lessonHolidayStore
	notifier    notify.Notifier
	metrics     *MetricsService
	cfg         config.SchedulingConfig
	logger      *zap.Logger
}

// NewRequestService constructs the workflow service.
func NewRequestService(repo requestStore, lessons requestLessonReader, lifecycle lessonLifecycle, enrollments lessonEnrollmentStore, teachers lessonTeacherStore, holidays lessonHolidayStore, notifier notify.Notifier, metrics *MetricsService, cfg config.SchedulingConfig, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &RequestService{
		repo:        repo,
		lessons:     lessons,
		lifecycle:   lifecycle,
		enrollments: enrollments,
		teachers:    teachers,
		holidays:    holidays,
		notifier:    notifier,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

// CreateRequest raises a change request against a lesson after authorization
// and temporal guards. All guard failures reject before any row is written.
func (s *RequestService) CreateRequest(ctx context.Context, lessonID string, req dto.CreateRequestRequest, actor *models.Actor) (*models.LessonRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	lesson, err := s.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !lesson.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "lesson is not in an active status")
	}
	enrollment, err := s.loadEnrollment(ctx, lesson.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCreate(lesson, enrollment, actor); err != nil {
		return nil, err
	}

	holiday, err := s.holidays.IsHoliday(ctx, models.DateKey(lesson.StartAt))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
	}
	if holiday {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "the original lesson falls on a registered holiday and cannot be changed through a request")
	}

	switch req.Type {
	case models.RequestTypeCancelamento:
		notice := s.noticeHours(enrollment)
		if time.Until(lesson.StartAt) < time.Duration(notice)*time.Hour {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("cancelamentos exigem pelo menos %d horas de antecedência", notice))
		}
	case models.RequestTypeTrocaAula:
		if req.RequestedStartAt == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "requested_start_at is required for TROCA_AULA")
		}
		if req.RequestedStartAt.Before(lesson.StartAt) {
			return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "the requested date cannot be earlier than the original lesson")
		}
		requestedHoliday, err := s.holidays.IsHoliday(ctx, models.DateKey(*req.RequestedStartAt))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday")
		}
		if requestedHoliday {
			return nil, appErrors.Clone(appErrors.ErrScheduleConflict,
				fmt.Sprintf("%s is a registered holiday", models.DateKey(*req.RequestedStartAt)))
		}
	case models.RequestTypeTrocaProfessor:
		if req.RequestedTeacherID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "requested_teacher_id is required for TROCA_PROFESSOR")
		}
		requested, err := s.loadTeacher(ctx, *req.RequestedTeacherID)
		if err != nil {
			return nil, err
		}
		if !requested.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "the requested teacher is inactive")
		}
		if !requested.Teaches(enrollment.Language) {
			return nil, appErrors.Clone(appErrors.ErrLanguageMismatch,
				fmt.Sprintf("teacher %s does not teach %s", requested.FullName, enrollment.Language))
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}

	request := &models.LessonRequest{
		LessonID:                lesson.ID,
		Type:                    req.Type,
		Status:                  models.RequestStatusPending,
		RequiresTeacherApproval: s.requiresTeacherApproval(req.Type, enrollment, actor),
		RequestedStartAt:        req.RequestedStartAt,
		RequestedTeacherID:      req.RequestedTeacherID,
		Notes:                   req.Notes,
		CreatedBy:               actor.ID,
		CreatedByName:           actor.Name,
		CreatedByRole:           actor.Role,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	s.metrics.RequestCreated(string(request.Type))

	if request.RequiresTeacherApproval {
		if teacher, terr := s.loadTeacher(ctx, lesson.TeacherID); terr == nil {
			s.notify(ctx, notify.KindTeacherApprovalNeeded, teacher.Email, notify.Context{
				"request_id":   request.ID,
				"request_type": request.Type,
				"student_name": enrollment.StudentName,
				"start_at":     lesson.StartAt,
			})
		}
	}
	return request, nil
}

// Get returns one request, scoped the same way as List: teachers only see
// requests on their own lessons, students only their own submissions.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.Actor) (*models.LessonRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return request, nil
	case models.RoleTeacher:
		lesson, err := s.loadLesson(ctx, request.LessonID)
		if err != nil {
			return nil, err
		}
		if lesson.TeacherID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers may only view requests on their own lessons")
		}
		return request, nil
	case models.RoleStudent:
		if request.CreatedBy != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own requests")
		}
		return request, nil
	default:
		return nil, appErrors.ErrForbidden
	}
}

// List returns requests visible to the actor. Teachers only see requests on
// their own lessons; students only their own submissions.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter, actor *models.Actor) ([]models.LessonRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleStudent:
		filter.CreatedBy = actor.ID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Decide is the single decision entry point for both approval paths. It
// dispatches on the actor's role so the cancel-then-recreate sequence exists
// in exactly one place. Deciding a terminal request fails with STATE_CONFLICT.
func (s *RequestService) Decide(ctx context.Context, requestID string, req dto.DecideRequestRequest, actor *models.Actor) (*dto.DecideRequestResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "request has already been decided")
	}
	lesson, err := s.loadLesson(ctx, request.LessonID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.loadEnrollment(ctx, lesson.EnrollmentID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case models.RoleTeacher:
		return s.decideAsTeacher(ctx, request, lesson, enrollment, req, actor)
	case models.RoleAdmin:
		return s.decideAsAdmin(ctx, request, lesson, enrollment, req, actor)
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned teacher or an administrator may decide a request")
	}
}

func (s *RequestService) decideAsTeacher(ctx context.Context, request *models.LessonRequest, lesson *models.Lesson, enrollment *models.Enrollment, req dto.DecideRequestRequest, actor *models.Actor) (*dto.DecideRequestResult, error) {
	if lesson.TeacherID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the lesson's assigned teacher may decide this request")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "teachers may only decide pending requests")
	}
	now := time.Now().UTC()

	if !req.Approve {
		if err := s.updateDecision(ctx, request, models.RequestStatusTeacherRejected, actor, &now, req.Notes,
			models.RequestStatusPending); err != nil {
			return nil, err
		}
		s.metrics.RequestDecided("teacher_rejected")
		s.notify(ctx, notify.KindRequestRejected, enrollment.StudentEmail, notify.Context{
			"request_id": request.ID,
			"forwarded":  true,
			"notes":      req.Notes,
		})
		return &dto.DecideRequestResult{Request: request}, nil
	}

	// The teacher-approve path attributes the cancellation to the requester,
	// since the assigned teacher is only confirming what was asked.
	cancelled, replacement, err := s.complete(ctx, request, lesson, request.CreatedByName, nil, nil, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.updateDecision(ctx, request, models.RequestStatusCompleted, actor, &now, req.Notes,
		models.RequestStatusPending); err != nil {
		return nil, err
	}
	s.metrics.RequestDecided("teacher_approved")
	s.notifyOutcome(ctx, request, lesson, enrollment, replacement)
	return &dto.DecideRequestResult{Request: request, Cancelled: cancelled, Replacement: replacement}, nil
}

func (s *RequestService) decideAsAdmin(ctx context.Context, request *models.LessonRequest, lesson *models.Lesson, enrollment *models.Enrollment, req dto.DecideRequestRequest, actor *models.Actor) (*dto.DecideRequestResult, error) {
	now := time.Now().UTC()
	expected := []models.RequestStatus{models.RequestStatusPending, models.RequestStatusTeacherRejected}

	if !req.Approve {
		if err := s.updateDecision(ctx, request, models.RequestStatusAdminRejected, actor, request.TeacherDecidedAt, req.Notes, expected...); err != nil {
			return nil, err
		}
		s.metrics.RequestDecided("admin_rejected")
		s.notify(ctx, notify.KindRequestRejected, enrollment.StudentEmail, notify.Context{
			"request_id":       request.ID,
			"lesson_unchanged": true,
			"notes":            req.Notes,
		})
		return &dto.DecideRequestResult{Request: request}, nil
	}

	cancelled, replacement, err := s.complete(ctx, request, lesson, actor.Name, req.NewStartAt, req.NewTeacherID, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.updateDecision(ctx, request, models.RequestStatusCompleted, actor, request.TeacherDecidedAt, req.Notes, expected...); err != nil {
		return nil, err
	}
	s.metrics.RequestDecided("admin_approved")
	s.notifyOutcome(ctx, request, lesson, enrollment, replacement)
	return &dto.DecideRequestResult{Request: request, Cancelled: cancelled, Replacement: replacement}, nil
}

// complete runs the approval sequence: cancel the original, then book the
// replacement when the request (or an admin override) names a new time. The
// cancellation is committed first so a crash between the two steps leaves a
// cancelled original and no replacement, never a duplicate pair.
func (s *RequestService) complete(ctx context.Context, request *models.LessonRequest, lesson *models.Lesson, cancelAttribution string, overrideStartAt *time.Time, overrideTeacherID *string, actor *models.Actor, now time.Time) (*models.Lesson, *models.Lesson, error) {
	startAt := request.RequestedStartAt
	if overrideStartAt != nil {
		startAt = overrideStartAt
	}
	teacherID := lesson.TeacherID
	if request.RequestedTeacherID != nil {
		teacherID = *request.RequestedTeacherID
	}
	if overrideTeacherID != nil {
		teacherID = *overrideTeacherID
	}
	if startAt == nil && request.Type == models.RequestTypeTrocaProfessor {
		startAt = &lesson.StartAt
	}

	cancelled, err := s.lifecycle.Cancel(ctx, lesson.ID, cancelAttribution, now)
	if err != nil {
		return nil, nil, err
	}

	var replacement *models.Lesson
	if startAt != nil {
		trail := models.AuditTrail{}.
			Append(request.CreatedByName, models.AuditActionRequested, request.CreatedAt).
			Append(actor.Name, models.AuditActionApproved, now)
		replacement, err = s.lifecycle.CreateReplacement(ctx, lesson, *startAt, teacherID, trail, actor)
		if err != nil {
			return cancelled, nil, err
		}
	}
	return cancelled, replacement, nil
}

// updateDecision persists the transition and mutates the in-memory request to
// match. A zero-row update means someone else decided first.
func (s *RequestService) updateDecision(ctx context.Context, request *models.LessonRequest, status models.RequestStatus, actor *models.Actor, teacherDecidedAt *time.Time, notes string, expected ...models.RequestStatus) error {
	var adminNotes *string
	if notes != "" {
		adminNotes = &notes
	}
	err := s.repo.UpdateDecision(ctx, repository.UpdateDecisionParams{
		ID:               request.ID,
		Status:           status,
		ProcessedBy:      actor.ID,
		TeacherDecidedAt: teacherDecidedAt,
		AdminNotes:       adminNotes,
		ExpectedStatuses: expected,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrStateConflict, "request has already been decided")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	request.Status = status
	request.ProcessedBy = &actor.ID
	request.TeacherDecidedAt = teacherDecidedAt
	request.AdminNotes = adminNotes
	request.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *RequestService) notifyOutcome(ctx context.Context, request *models.LessonRequest, lesson *models.Lesson, enrollment *models.Enrollment, replacement *models.Lesson) {
	kind := notify.KindRequestApproved
	data := notify.Context{"request_id": request.ID, "request_type": request.Type}
	if replacement != nil {
		data["replacement_start_at"] = replacement.StartAt
		if request.Type == models.RequestTypeCancelamento {
			kind = notify.KindCancellationWithMakeup
		}
	}
	s.notify(ctx, kind, enrollment.StudentEmail, data)

	// a teacher swap means the incoming teacher learns about the slot too
	if replacement != nil && replacement.TeacherID != lesson.TeacherID {
		if teacher, err := s.loadTeacher(ctx, replacement.TeacherID); err == nil {
			s.notify(ctx, notify.KindReposicaoScheduled, teacher.Email, notify.Context{
				"lesson_id":    replacement.ID,
				"student_name": enrollment.StudentName,
				"start_at":     replacement.StartAt,
			})
		}
	}
}

func (s *RequestService) authorizeCreate(lesson *models.Lesson, enrollment *models.Enrollment, actor *models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if lesson.TeacherID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "teachers may only raise requests on their own lessons")
		}
		return nil
	case models.RoleStudent:
		if enrollment.IsGroup {
			return appErrors.Clone(appErrors.ErrForbidden, "group lessons do not accept student-initiated requests")
		}
		if enrollment.StudentID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only raise requests on their own enrollment")
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

// noticeHours resolves the cancellation notice threshold. A per-enrollment
// override is always authoritative; the category default applies otherwise.
func (s *RequestService) noticeHours(enrollment *models.Enrollment) int {
	if enrollment.NoticeHours != nil && *enrollment.NoticeHours > 0 {
		return *enrollment.NoticeHours
	}
	if hours, ok := s.cfg.NoticeHours[string(enrollment.Category)]; ok && hours > 0 {
		return hours
	}
	return 6
}

// requiresTeacherApproval is fixed at creation: only TROCA_* requests on the
// configured categories need teacher sign-off, and never when the assigned
// teacher or an admin raises the request themselves.
func (s *RequestService) requiresTeacherApproval(requestType models.RequestType, enrollment *models.Enrollment, actor *models.Actor) bool {
	if requestType == models.RequestTypeCancelamento {
		return false
	}
	if actor.Role != models.RoleStudent {
		return false
	}
	for _, category := range s.cfg.ApprovalCategories {
		if category == string(enrollment.Category) {
			return true
		}
	}
	return false
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.LessonRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) loadLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

func (s *RequestService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *RequestService) loadTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func (s *RequestService) notify(ctx context.Context, kind notify.Kind, recipient string, data notify.Context) {
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
