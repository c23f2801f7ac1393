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
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type lessonRepoStub struct {
	lessons map[string]*models.Lesson
	created []*models.Lesson
	details []models.LessonDetail

	seriesWeekday int
	seriesMinute  int
	seriesFrom    time.Time
	seriesCount   int64

	pairCount int
}

func newLessonRepoStub() *lessonRepoStub {
	return &lessonRepoStub{lessons: make(map[string]*models.Lesson)}
}

func (s *lessonRepoStub) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = fmt.Sprintf("lesson-%d", len(s.lessons)+1)
	}
	copy := *lesson
	s.lessons[lesson.ID] = &copy
	s.created = append(s.created, &copy)
	return nil
}

func (s *lessonRepoStub) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := s.lessons[id]; ok {
		copy := *lesson
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *lessonRepoStub) Update(ctx context.Context, lesson *models.Lesson) error {
	if _, ok := s.lessons[lesson.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *lesson
	s.lessons[lesson.ID] = &copy
	return nil
}

func (s *lessonRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.lessons, id)
	return nil
}

func (s *lessonRepoStub) DeleteSeriesFrom(ctx context.Context, enrollmentID, teacherID string, weekday, minuteOfDay int, from time.Time) (int64, error) {
	s.seriesWeekday = weekday
	s.seriesMinute = minuteOfDay
	s.seriesFrom = from
	return s.seriesCount, nil
}

func (s *lessonRepoStub) CountByEnrollmentAndTeacher(ctx context.Context, enrollmentID, teacherID string) (int, error) {
	return s.pairCount, nil
}

func (s *lessonRepoStub) ListDetailsByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error) {
	var out []models.LessonDetail
	for _, d := range s.details {
		if d.TeacherID == teacherID && !d.StartAt.Before(from) && d.StartAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *lessonRepoStub) ListByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, d := range s.details {
		if d.TeacherID == teacherID && !d.StartAt.Before(from) && d.StartAt.Before(to) {
			out = append(out, d.Lesson)
		}
	}
	return out, nil
}

func (s *lessonRepoStub) ListFutureDetailsByTeacher(ctx context.Context, teacherID string, from time.Time) ([]models.LessonDetail, error) {
	var out []models.LessonDetail
	for _, d := range s.details {
		if d.TeacherID == teacherID && !d.StartAt.Before(from) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *lessonRepoStub) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, lesson := range s.lessons {
		out = append(out, *lesson)
	}
	return out, nil
}

type enrollmentStoreStub struct {
	enrollments map[string]*models.Enrollment
}

func (s *enrollmentStoreStub) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type teacherStoreStub struct {
	teachers map[string]*models.Teacher
}

func (s *teacherStoreStub) GetByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := s.teachers[id]; ok {
		copy := *t
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type holidayStoreStub struct {
	dates map[string]bool
}

func (s *holidayStoreStub) IsHoliday(ctx context.Context, date string) (bool, error) {
	return s.dates[date], nil
}

type openRequestStoreStub struct {
	open      []models.LessonRequest
	decisions []repository.UpdateDecisionParams
}

func (s *openRequestStoreStub) ListOpenByLesson(ctx context.Context, lessonID string) ([]models.LessonRequest, error) {
	var out []models.LessonRequest
	for _, r := range s.open {
		if r.LessonID == lessonID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *openRequestStoreStub) UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error {
	s.decisions = append(s.decisions, params)
	return nil
}

type notifierRecorder struct {
	kinds      []notify.Kind
	recipients []string
	fail       bool
}

func (n *notifierRecorder) Notify(ctx context.Context, kind notify.Kind, recipient string, data notify.Context) error {
	n.kinds = append(n.kinds, kind)
	n.recipients = append(n.recipients, recipient)
	if n.fail {
		return fmt.Errorf("smtp down")
	}
	return nil
}

func (n *notifierRecorder) count(kind notify.Kind) int {
	total := 0
	for _, k := range n.kinds {
		if k == kind {
			total++
		}
	}
	return total
}

type lessonFixture struct {
	repo     *lessonRepoStub
	requests *openRequestStoreStub
	notifier *notifierRecorder
	svc      *LessonService
}

func newLessonFixture() *lessonFixture {
	repo := newLessonRepoStub()
	repo.pairCount = 1
	requests := &openRequestStoreStub{}
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
		"teacher-1": {
			ID:        "teacher-1",
			FullName:  "John Smith",
			Email:     "john@example.com",
			Active:    true,
			Languages: []string{"INGLES"},
		},
	}}
	holidays := &holidayStoreStub{dates: map[string]bool{}}
	svc := NewLessonService(repo, enrollments, teachers, holidays, requests, notifier, nil, nil)
	return &lessonFixture{repo: repo, requests: requests, notifier: notifier, svc: svc}
}

func (f *lessonFixture) enrollments() *enrollmentStoreStub {
	return f.svc.enrollments.(*enrollmentStoreStub)
}

func (f *lessonFixture) teachers() *teacherStoreStub {
	return f.svc.teachers.(*teacherStoreStub)
}

func (f *lessonFixture) holidays() *holidayStoreStub {
	return f.svc.holidays.(*holidayStoreStub)
}

func adminActor() *models.Actor {
	return &models.Actor{ID: "admin-1", Name: "Ana Admin", Role: models.RoleAdmin}
}

func futureMonday(weeks int) time.Time {
	day := time.Now().UTC().AddDate(0, 0, 7*weeks)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC)
}

func TestLessonServiceCreateSkipsHolidayOccurrences(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(2)
	second := start.AddDate(0, 0, 7)
	f.holidays().dates[models.DateKey(second)] = true

	repeat := 3
	result, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         start,
		DurationMinutes: 60,
		Recurrence:      &dto.Recurrence{Repeat: &repeat},
	}, adminActor())
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, second, result.Skipped[0])
	require.True(t, result.Created[0].StartAt.Before(result.Created[1].StartAt))
	// student and teacher each get one message per created lesson
	require.Equal(t, 4, f.notifier.count(notify.KindLessonConfirmed))
}

func TestLessonServiceCreateAllHolidaysCreatesNothing(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(2)
	f.holidays().dates[models.DateKey(start)] = true

	_, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         start,
		DurationMinutes: 60,
	}, adminActor())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	require.Empty(t, f.repo.created)
}

func TestLessonServiceCreateLanguageMismatch(t *testing.T) {
	f := newLessonFixture()
	f.enrollments().enrollments["enr-1"].Language = models.LanguageEspanhol

	_, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         futureMonday(1),
		DurationMinutes: 60,
	}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrLanguageMismatch.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.repo.created)
}

func TestLessonServiceCreateConflictNamesStudent(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(1)
	f.repo.details = []models.LessonDetail{{
		Lesson: models.Lesson{
			ID:              "busy-1",
			TeacherID:       "teacher-1",
			Status:          models.LessonStatusConfirmed,
			StartAt:         start.Add(30 * time.Minute),
			DurationMinutes: 60,
		},
		StudentName: "Pedro Costa",
	}}

	_, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         start,
		DurationMinutes: 60,
	}, adminActor())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	require.Contains(t, appErr.Message, "Pedro Costa")
}

func TestLessonServiceCreateBackToBackIsNotAConflict(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(1)
	f.repo.details = []models.LessonDetail{{
		Lesson: models.Lesson{
			ID:              "busy-1",
			TeacherID:       "teacher-1",
			Status:          models.LessonStatusConfirmed,
			StartAt:         start.Add(-60 * time.Minute),
			DurationMinutes: 60,
		},
		StudentName: "Pedro Costa",
	}}

	result, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         start,
		DurationMinutes: 60,
	}, adminActor())
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
}

func TestLessonServiceCreatePauseWindowRejected(t *testing.T) {
	f := newLessonFixture()
	pausedAt := time.Now().UTC().AddDate(0, 0, -1)
	enrollment := f.enrollments().enrollments["enr-1"]
	enrollment.Status = models.EnrollmentStatusPaused
	enrollment.PausedAt = &pausedAt

	_, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         futureMonday(1),
		DurationMinutes: 60,
	}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceCreateFirstLessonNotifiesTeacher(t *testing.T) {
	f := newLessonFixture()
	f.repo.pairCount = 0

	_, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         futureMonday(1),
		DurationMinutes: 60,
	}, adminActor())
	require.NoError(t, err)
	require.Equal(t, 1, f.notifier.count(notify.KindNewStudent))
}

func TestLessonServiceUpdateCancelAppendsTrailAndCompletesRequests(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(1)
	require.NoError(t, f.repo.Create(context.Background(), &models.Lesson{
		ID:              "lesson-1",
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		Status:          models.LessonStatusConfirmed,
		StartAt:         start,
		DurationMinutes: 60,
	}))
	f.requests.open = []models.LessonRequest{{
		ID:       "req-1",
		LessonID: "lesson-1",
		Status:   models.RequestStatusPending,
	}}

	cancelled := models.LessonStatusCancelled
	lesson, err := f.svc.Update(context.Background(), "lesson-1", dto.UpdateLessonRequest{Status: &cancelled}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusCancelled, lesson.Status)
	require.Len(t, lesson.AuditTrail, 1)
	require.Equal(t, models.AuditActionCancelled, lesson.AuditTrail[0].Action)
	require.Equal(t, "Ana Admin", lesson.AuditTrail[0].Actor)

	require.Len(t, f.requests.decisions, 1)
	require.Equal(t, models.RequestStatusCompleted, f.requests.decisions[0].Status)
	require.Equal(t, 2, f.notifier.count(notify.KindLessonCancelled))
	require.Equal(t, 1, f.notifier.count(notify.KindRequestApproved))
}

func TestLessonServiceUpdateCancelledLessonIsTerminal(t *testing.T) {
	f := newLessonFixture()
	require.NoError(t, f.repo.Create(context.Background(), &models.Lesson{
		ID:              "lesson-1",
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		Status:          models.LessonStatusCancelled,
		StartAt:         futureMonday(1),
		DurationMinutes: 60,
	}))

	confirmed := models.LessonStatusConfirmed
	_, err := f.svc.Update(context.Background(), "lesson-1", dto.UpdateLessonRequest{Status: &confirmed}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceDeleteCascadePassesSeriesKey(t *testing.T) {
	f := newLessonFixture()
	start := futureMonday(1)
	require.NoError(t, f.repo.Create(context.Background(), &models.Lesson{
		ID:              "lesson-1",
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		Status:          models.LessonStatusConfirmed,
		StartAt:         start,
		DurationMinutes: 60,
	}))
	f.repo.seriesCount = 4

	count, err := f.svc.Delete(context.Background(), "lesson-1", true, adminActor())
	require.NoError(t, err)
	require.EqualValues(t, 4, count)
	require.Equal(t, int(start.Weekday()), f.repo.seriesWeekday)
	require.Equal(t, start.Hour()*60+start.Minute(), f.repo.seriesMinute)
	require.Equal(t, start, f.repo.seriesFrom)
	require.Empty(t, f.notifier.kinds)
}

func TestLessonServiceNotificationFailureDoesNotAbort(t *testing.T) {
	f := newLessonFixture()
	f.notifier.fail = true

	result, err := f.svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID:    "enr-1",
		TeacherID:       "teacher-1",
		StartAt:         futureMonday(1),
		DurationMinutes: 60,
	}, adminActor())
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
}

func TestExpandRecurrenceTwoPerWeek(t *testing.T) {
	start := futureMonday(1)
	second := start.AddDate(0, 0, 2)
	weeks, perWeek := 2, 2
	occurrences, err := expandRecurrence(dto.CreateLessonRequest{
		StartAt: start,
		Recurrence: &dto.Recurrence{
			Weeks:         &weeks,
			PerWeek:       &perWeek,
			SecondStartAt: &second,
		},
	})
	require.NoError(t, err)
	require.Len(t, occurrences, 4)
	require.Equal(t, []time.Time{start, second, start.AddDate(0, 0, 7), second.AddDate(0, 0, 7)}, occurrences)
}

func TestExpandRecurrenceModesAreExclusive(t *testing.T) {
	repeat, weeks := 2, 2
	_, err := expandRecurrence(dto.CreateLessonRequest{
		StartAt:    futureMonday(1),
		Recurrence: &dto.Recurrence{Repeat: &repeat, Weeks: &weeks},
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
