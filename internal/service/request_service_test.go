package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/internal/notify"
	"github.com/vemfalar/agenda-api/internal/repository"
	"github.com/vemfalar/agenda-api/pkg/config"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type requestRepoStub struct {
	requests map[string]*models.LessonRequest
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.LessonRequest)}
}

func (s *requestRepoStub) Create(ctx context.Context, request *models.LessonRequest) error {
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", len(s.requests)+1)
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	stored := *request
	s.requests[request.ID] = &stored
	return nil
}

func (s *requestRepoStub) GetByID(ctx context.Context, id string) (*models.LessonRequest, error) {
	if r, ok := s.requests[id]; ok {
		out := *r
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, error) {
	var out []models.LessonRequest
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (s *requestRepoStub) UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error {
	request, ok := s.requests[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	matched := false
	for _, expected := range params.ExpectedStatuses {
		if request.Status == expected {
			matched = true
			break
		}
	}
	if !matched {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.ProcessedBy = &params.ProcessedBy
	request.TeacherDecidedAt = params.TeacherDecidedAt
	request.AdminNotes = params.AdminNotes
	return nil
}

type lifecycleStub struct {
	lessons      *lessonRepoStub
	cancelled    []string
	attributions []string
	replacements []*models.Lesson
	trails       []models.AuditTrail
}

func (s *lifecycleStub) Cancel(ctx context.Context, lessonID, attribution string, at time.Time) (*models.Lesson, error) {
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !lesson.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "lesson is not in an active status")
	}
	lesson.Status = models.LessonStatusCancelled
	lesson.AuditTrail = lesson.AuditTrail.Append(attribution, models.AuditActionCancelled, at)
	if err := s.lessons.Update(ctx, lesson); err != nil {
		return nil, err
	}
	s.cancelled = append(s.cancelled, lessonID)
	s.attributions = append(s.attributions, attribution)
	return lesson, nil
}

func (s *lifecycleStub) CreateReplacement(ctx context.Context, original *models.Lesson, startAt time.Time, teacherID string, trail models.AuditTrail, actor *models.Actor) (*models.Lesson, error) {
	lesson := &models.Lesson{
		EnrollmentID:    original.EnrollmentID,
		TeacherID:       teacherID,
		Status:          models.LessonStatusReposicao,
		StartAt:         startAt,
		DurationMinutes: original.DurationMinutes,
		AuditTrail:      trail,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, err
	}
	s.replacements = append(s.replacements, lesson)
	s.trails = append(s.trails, trail)
	return lesson, nil
}

type requestFixture struct {
	repo      *requestRepoStub
	lessons   *lessonRepoStub
	lifecycle *lifecycleStub
	notifier  *notifierRecorder
	svc       *RequestService
}

func newRequestFixture() *requestFixture {
	repo := newRequestRepoStub()
	lessons := newLessonRepoStub()
	lifecycle := &lifecycleStub{lessons: lessons}
	notifier := &notifierRecorder{}
	enrollments := &enrollmentStoreStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {
			ID:           "enr-1",
			StudentID:    "student-1",
			StudentName:  "Maria Silva",
			StudentEmail: "maria@example.com",
			Category:     models.CategoryRegular,
			Language:     models.LanguageIngles,
			Status:       models.EnrollmentStatusActive,
		},
	}}
	teachers := &teacherStoreStub{teachers: map[string]*models.Teacher{
		"teacher-1": {ID: "teacher-1", FullName: "John Smith", Email: "john@example.com", Active: true, Languages: []string{"INGLES"}},
		"teacher-2": {ID: "teacher-2", FullName: "Laura Diaz", Email: "laura@example.com", Active: true, Languages: []string{"INGLES", "ESPANHOL"}},
	}}
	holidays := &holidayStoreStub{dates: map[string]bool{}}
	cfg := config.SchedulingConfig{
		NoticeHours:        map[string]int{"REGULAR": 6, "INTENSIVO": 12, "VIP": 24},
		ApprovalCategories: []string{"INTENSIVO", "VIP"},
	}
	svc := NewRequestService(repo, lessons, lifecycle, enrollments, teachers, holidays, notifier, nil, cfg, nil)
	return &requestFixture{repo: repo, lessons: lessons, lifecycle: lifecycle, notifier: notifier, svc: svc}
}

func (f *requestFixture) enrollment(id string) *models.Enrollment {
	return f.svc.enrollments.(*enrollmentStoreStub).enrollments[id]
}

func (f *requestFixture) holidays() *holidayStoreStub {
	return f.svc.holidays.(*holidayStoreStub)
}

func (f *requestFixture) addLesson(id string, startAt time.Time) {
	_ = f.lessons.Create(context.Background(), &models.Lesson{
		ID:              id,
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		Status:          models.LessonStatusConfirmed,
		StartAt:         startAt,
		DurationMinutes: 60,
	})
}

func studentActor() *models.Actor {
	return &models.Actor{ID: "student-1", Name: "Maria Silva", Role: models.RoleStudent}
}

func teacherActor() *models.Actor {
	return &models.Actor{ID: "teacher-1", Name: "John Smith", Role: models.RoleTeacher}
}

func TestRequestServiceCancelamentoNoticeTooShort(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(2*time.Hour))

	_, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type: models.RequestTypeCancelamento,
	}, studentActor())
	require.Error(t, err)
	require.Contains(t, appErrors.FromError(err).Message, "6 horas de antecedência")
	require.Empty(t, f.repo.requests)
}

func TestRequestServicePerEnrollmentNoticeOverrideWins(t *testing.T) {
	f := newRequestFixture()
	override := 1
	f.enrollment("enr-1").NoticeHours = &override
	f.addLesson("lesson-1", time.Now().UTC().Add(2*time.Hour))

	request, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type: models.RequestTypeCancelamento,
	}, studentActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.False(t, request.RequiresTeacherApproval)
}

func TestRequestServiceTrocaAulaHolidayRejectedBeforeRowCreation(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))
	requested := time.Now().UTC().Add(96 * time.Hour)
	f.holidays().dates[models.DateKey(requested)] = true

	_, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type:             models.RequestTypeTrocaAula,
		RequestedStartAt: &requested,
	}, studentActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.repo.requests)
}

func TestRequestServiceTrocaAulaBackwardDateRejected(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(96*time.Hour))
	requested := time.Now().UTC().Add(48 * time.Hour)

	_, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type:             models.RequestTypeTrocaAula,
		RequestedStartAt: &requested,
	}, studentActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceGroupRejectsStudentRequests(t *testing.T) {
	f := newRequestFixture()
	group := "Turma A"
	f.enrollment("enr-1").IsGroup = true
	f.enrollment("enr-1").GroupName = &group
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))

	_, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type: models.RequestTypeCancelamento,
	}, studentActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTeacherApprovalComputedForVIP(t *testing.T) {
	f := newRequestFixture()
	f.enrollment("enr-1").Category = models.CategoryVIP
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))
	newTeacher := "teacher-2"

	request, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type:               models.RequestTypeTrocaProfessor,
		RequestedTeacherID: &newTeacher,
	}, studentActor())
	require.NoError(t, err)
	require.True(t, request.RequiresTeacherApproval)
	require.Equal(t, 1, f.notifier.count(notify.KindTeacherApprovalNeeded))
}

func TestRequestServiceCancelamentoNeverNeedsTeacherApproval(t *testing.T) {
	f := newRequestFixture()
	f.enrollment("enr-1").Category = models.CategoryVIP
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))

	request, err := f.svc.CreateRequest(context.Background(), "lesson-1", dto.CreateRequestRequest{
		Type: models.RequestTypeCancelamento,
	}, studentActor())
	require.NoError(t, err)
	require.False(t, request.RequiresTeacherApproval)
}

func TestRequestServiceDecideTeacherApprove(t *testing.T) {
	f := newRequestFixture()
	start := time.Now().UTC().Add(48 * time.Hour)
	f.addLesson("lesson-1", start)
	requested := start.AddDate(0, 0, 2)
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:                      "req-1",
		LessonID:                "lesson-1",
		Type:                    models.RequestTypeTrocaAula,
		Status:                  models.RequestStatusPending,
		RequiresTeacherApproval: true,
		RequestedStartAt:        &requested,
		CreatedBy:               "student-1",
		CreatedByName:           "Maria Silva",
		CreatedByRole:           models.RoleStudent,
	}))

	result, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, teacherActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCompleted, result.Request.Status)

	// exactly one cancellation and one replacement
	require.Len(t, f.lifecycle.cancelled, 1)
	require.Len(t, f.lifecycle.replacements, 1)
	require.Equal(t, models.LessonStatusReposicao, result.Replacement.Status)
	require.Equal(t, requested, result.Replacement.StartAt)
	// the teacher confirms what the student asked for
	require.Equal(t, "Maria Silva", f.lifecycle.attributions[0])

	trail := f.lifecycle.trails[0]
	require.Len(t, trail, 2)
	require.Equal(t, models.AuditActionRequested, trail[0].Action)
	require.Equal(t, models.AuditActionApproved, trail[1].Action)
	require.Equal(t, "John Smith", trail[1].Actor)
}

func TestRequestServiceDecideTwiceIsStateConflict(t *testing.T) {
	f := newRequestFixture()
	start := time.Now().UTC().Add(48 * time.Hour)
	f.addLesson("lesson-1", start)
	requested := start.AddDate(0, 0, 2)
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:               "req-1",
		LessonID:         "lesson-1",
		Type:             models.RequestTypeTrocaAula,
		Status:           models.RequestStatusPending,
		RequestedStartAt: &requested,
		CreatedBy:        "student-1",
		CreatedByName:    "Maria Silva",
		CreatedByRole:    models.RoleStudent,
	}))

	_, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, adminActor())
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
	require.Len(t, f.lifecycle.cancelled, 1)
	require.Len(t, f.lifecycle.replacements, 1)
}

func TestRequestServiceAdminMayDecideAfterTeacherRejection(t *testing.T) {
	f := newRequestFixture()
	start := time.Now().UTC().Add(48 * time.Hour)
	f.addLesson("lesson-1", start)
	requested := start.AddDate(0, 0, 2)
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:               "req-1",
		LessonID:         "lesson-1",
		Type:             models.RequestTypeTrocaAula,
		Status:           models.RequestStatusTeacherRejected,
		RequestedStartAt: &requested,
		CreatedBy:        "student-1",
		CreatedByName:    "Maria Silva",
		CreatedByRole:    models.RoleStudent,
	}))

	result, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCompleted, result.Request.Status)
	// the admin path attributes the cancellation to the acting admin
	require.Equal(t, "Ana Admin", f.lifecycle.attributions[0])
}

func TestRequestServiceTeacherCannotDecideOthersLessons(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:            "req-1",
		LessonID:      "lesson-1",
		Type:          models.RequestTypeCancelamento,
		Status:        models.RequestStatusPending,
		CreatedBy:     "student-1",
		CreatedByName: "Maria Silva",
		CreatedByRole: models.RoleStudent,
	}))

	other := &models.Actor{ID: "teacher-2", Name: "Laura Diaz", Role: models.RoleTeacher}
	_, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, other)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTeacherRejectionForwardsToAdmin(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:                      "req-1",
		LessonID:                "lesson-1",
		Type:                    models.RequestTypeTrocaProfessor,
		Status:                  models.RequestStatusPending,
		RequiresTeacherApproval: true,
		CreatedBy:               "student-1",
		CreatedByName:           "Maria Silva",
		CreatedByRole:           models.RoleStudent,
	}))

	result, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: false}, teacherActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusTeacherRejected, result.Request.Status)
	require.Empty(t, f.lifecycle.cancelled)
	require.Equal(t, 1, f.notifier.count(notify.KindRequestRejected))
}

func TestRequestServiceApprovalNotifiesIncomingTeacher(t *testing.T) {
	f := newRequestFixture()
	start := time.Now().UTC().Add(48 * time.Hour)
	f.addLesson("lesson-1", start)
	newTeacher := "teacher-2"
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:                 "req-1",
		LessonID:           "lesson-1",
		Type:               models.RequestTypeTrocaProfessor,
		Status:             models.RequestStatusPending,
		RequestedTeacherID: &newTeacher,
		CreatedBy:          "student-1",
		CreatedByName:      "Maria Silva",
		CreatedByRole:      models.RoleStudent,
	}))

	result, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{Approve: true}, teacherActor())
	require.NoError(t, err)
	require.Equal(t, "teacher-2", result.Replacement.TeacherID)

	// the student hears the outcome, the incoming teacher hears the slot
	require.Equal(t, 1, f.notifier.count(notify.KindRequestApproved))
	require.Equal(t, 1, f.notifier.count(notify.KindReposicaoScheduled))
	require.Contains(t, f.notifier.recipients, "laura@example.com")
}

func TestRequestServiceGetIsRelationshipScoped(t *testing.T) {
	f := newRequestFixture()
	f.addLesson("lesson-1", time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:            "req-1",
		LessonID:      "lesson-1",
		Type:          models.RequestTypeCancelamento,
		Status:        models.RequestStatusPending,
		CreatedBy:     "student-1",
		CreatedByName: "Maria Silva",
		CreatedByRole: models.RoleStudent,
	}))

	_, err := f.svc.Get(context.Background(), "req-1", studentActor())
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), "req-1", teacherActor())
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), "req-1", adminActor())
	require.NoError(t, err)

	otherStudent := &models.Actor{ID: "student-2", Name: "Carlos Souza", Role: models.RoleStudent}
	_, err = f.svc.Get(context.Background(), "req-1", otherStudent)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	otherTeacher := &models.Actor{ID: "teacher-2", Name: "Laura Diaz", Role: models.RoleTeacher}
	_, err = f.svc.Get(context.Background(), "req-1", otherTeacher)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceAdminApproveCancelamentoWithMakeup(t *testing.T) {
	f := newRequestFixture()
	start := time.Now().UTC().Add(48 * time.Hour)
	f.addLesson("lesson-1", start)
	require.NoError(t, f.repo.Create(context.Background(), &models.LessonRequest{
		ID:            "req-1",
		LessonID:      "lesson-1",
		Type:          models.RequestTypeCancelamento,
		Status:        models.RequestStatusPending,
		CreatedBy:     "student-1",
		CreatedByName: "Maria Silva",
		CreatedByRole: models.RoleStudent,
	}))

	makeup := start.AddDate(0, 0, 3)
	result, err := f.svc.Decide(context.Background(), "req-1", dto.DecideRequestRequest{
		Approve:    true,
		NewStartAt: &makeup,
	}, adminActor())
	require.NoError(t, err)
	require.NotNil(t, result.Replacement)
	require.Equal(t, 1, f.notifier.count(notify.KindCancellationWithMakeup))
}
