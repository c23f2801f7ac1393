package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/pkg/config"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

type auditLessonStore interface {
	ListDetailsBetween(ctx context.Context, from, to time.Time) ([]models.LessonDetail, error)
}

type auditEnrollmentStore interface {
	ListAuditable(ctx context.Context) ([]models.Enrollment, error)
}

type auditRecordStore interface {
	LatestByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]models.LessonRecord, error)
}

// AuditService builds the weekly consistency report: status buckets, the
// contracted-frequency check with group merging, transitive double-booking
// clusters and inactive-teacher assignments. The report is read-only; it
// mutates nothing and notifies no one.
type AuditService struct {
	lessons     auditLessonStore
	enrollments auditEnrollmentStore
	records     auditRecordStore
	cache       *redis.Client
	cfg         config.AuditConfig
	slack       int
	metrics     *MetricsService
	logger      *zap.Logger
}

// noRecords serves reports without book data when no record store is wired.
type noRecords struct{}

func (noRecords) LatestByEnrollments(context.Context, []string) (map[string]models.LessonRecord, error) {
	return nil, nil
}

// NewAuditService constructs the auditor. cache may be nil, which disables
// report caching; records may be nil, which omits latest-book data.
func NewAuditService(lessons auditLessonStore, enrollments auditEnrollmentStore, records auditRecordStore, cache *redis.Client, cfg config.AuditConfig, slackMinutes int, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if slackMinutes < 0 {
		slackMinutes = 0
	}
	if records == nil {
		records = noRecords{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		lessons:     lessons,
		enrollments: enrollments,
		records:     records,
		cache:       cache,
		cfg:         cfg,
		slack:       slackMinutes,
		metrics:     metrics,
		logger:      logger,
	}
}

// AuditWeek reports on the Monday–Saturday window containing day. Any day of
// that week resolves to the same report; Sundays fall outside the audited
// window and floor to the week that just ended.
func (s *AuditService) AuditWeek(ctx context.Context, day time.Time) (*models.WeeklyAuditReport, error) {
	monday := floorToMonday(day)
	weekEnd := monday.AddDate(0, 0, 6)

	cacheKey := fmt.Sprintf("audit:week:%s", models.DateKey(monday))
	if cached := s.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	details, err := s.lessons.ListDetailsBetween(ctx, monday, weekEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week lessons")
	}

	report := &models.WeeklyAuditReport{
		WeekStart:   monday,
		WeekEnd:     weekEnd,
		GeneratedAt: time.Now().UTC(),
	}
	for i := range details {
		entry := auditEntry(details[i])
		switch details[i].Status {
		case models.LessonStatusConfirmed:
			report.Confirmed = append(report.Confirmed, entry)
		case models.LessonStatusCancelled:
			report.Cancelled = append(report.Cancelled, entry)
		case models.LessonStatusReposicao:
			report.Reposicao = append(report.Reposicao, entry)
		}
	}
	report.ConfirmedCount = len(report.Confirmed)
	report.CancelledCount = len(report.Cancelled)
	report.ReposicaoCount = len(report.Reposicao)

	mismatches, err := s.frequencyMismatches(ctx, details)
	if err != nil {
		return nil, err
	}
	report.FrequencyMismatches = mismatches
	report.DoubleBookings = doubleBookings(details)
	report.InactiveTeachers = inactiveTeachers(details)

	s.toCache(ctx, cacheKey, report)
	return report, nil
}

// frequencyMismatches compares each auditable enrollment's contracted weekly
// frequency against the week's active lessons. Group members sharing a slot
// (same teacher and start) are merged and the slot counts once.
func (s *AuditService) frequencyMismatches(ctx context.Context, details []models.LessonDetail) ([]models.FrequencyMismatch, error) {
	enrollments, err := s.enrollments.ListAuditable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	type cluster struct {
		ids       []string
		label     string
		isGroup   bool
		frequency int
		minutes   int
	}
	clusters := map[string]*cluster{}
	order := []string{}
	for _, e := range enrollments {
		key := "enrollment:" + e.ID
		label := e.StudentName
		if e.IsGroup && e.GroupName != nil && *e.GroupName != "" {
			key = "group:" + *e.GroupName
			label = *e.GroupName
		}
		c, ok := clusters[key]
		if !ok {
			c = &cluster{label: label, isGroup: e.IsGroup}
			clusters[key] = c
			order = append(order, key)
		}
		c.ids = append(c.ids, e.ID)
		if e.WeeklyFrequency != nil && *e.WeeklyFrequency > c.frequency {
			c.frequency = *e.WeeklyFrequency
		}
		if e.LessonMinutes != nil && *e.LessonMinutes > c.minutes {
			c.minutes = *e.LessonMinutes
		}
	}

	// Active week lessons indexed by enrollment.
	byEnrollment := map[string][]models.LessonDetail{}
	for i := range details {
		if !details[i].Status.Active() {
			continue
		}
		byEnrollment[details[i].EnrollmentID] = append(byEnrollment[details[i].EnrollmentID], details[i])
	}

	var mismatches []models.FrequencyMismatch
	for _, key := range order {
		c := clusters[key]
		if c.frequency == 0 {
			continue
		}

		type slotKey struct {
			teacherID string
			startAt   int64
		}
		slotMinutes := map[slotKey]int{}
		slotStarts := map[slotKey]time.Time{}
		for _, id := range c.ids {
			for _, lesson := range byEnrollment[id] {
				k := slotKey{lesson.TeacherID, lesson.StartAt.Unix()}
				slotMinutes[k] = lesson.DurationMinutes
				slotStarts[k] = lesson.StartAt
			}
		}

		actualCount := len(slotMinutes)
		actualMinutes := 0
		for _, minutes := range slotMinutes {
			actualMinutes += minutes
		}
		expectedMinutes := 0
		if c.minutes > 0 {
			expectedMinutes = c.frequency * c.minutes
		}

		// With a contracted duration the minutes comparison is authoritative:
		// a consolidated double-length lesson still satisfies the contract.
		// Without one, only occurrence counts can be compared.
		var ok bool
		if c.minutes > 0 {
			diff := expectedMinutes - actualMinutes
			if diff < 0 {
				diff = -diff
			}
			ok = diff <= s.slack
		} else {
			ok = actualCount == c.frequency
		}
		if ok {
			continue
		}

		starts := make([]time.Time, 0, len(slotStarts))
		for _, at := range slotStarts {
			starts = append(starts, at)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

		mismatch := models.FrequencyMismatch{
			EnrollmentIDs:   c.ids,
			Label:           c.label,
			IsGroup:         c.isGroup,
			ExpectedCount:   c.frequency,
			ActualCount:     actualCount,
			ExpectedMinutes: expectedMinutes,
			ActualMinutes:   actualMinutes,
			WeekLessons:     starts,
		}
		if latest, rerr := s.records.LatestByEnrollments(ctx, c.ids); rerr == nil {
			var best *models.LessonRecord
			for id := range latest {
				record := latest[id]
				if best == nil || record.LessonAt.After(best.LessonAt) {
					best = &record
				}
			}
			if best != nil {
				mismatch.LatestBook = best.Book
			}
		} else {
			s.logger.Warn("failed to load latest lesson records", zap.Error(rerr))
		}
		mismatches = append(mismatches, mismatch)
	}
	return mismatches, nil
}

// doubleBookings clusters each teacher's active lessons by transitive
// interval overlap. Back-to-back lessons (end of one equals start of the
// next) never overlap; the interval is half-open.
func doubleBookings(details []models.LessonDetail) []models.DoubleBooking {
	byTeacher := map[string][]models.LessonDetail{}
	teacherOrder := []string{}
	for i := range details {
		if !details[i].Status.Active() {
			continue
		}
		id := details[i].TeacherID
		if _, ok := byTeacher[id]; !ok {
			teacherOrder = append(teacherOrder, id)
		}
		byTeacher[id] = append(byTeacher[id], details[i])
	}

	var bookings []models.DoubleBooking
	for _, teacherID := range teacherOrder {
		lessons := byTeacher[teacherID]
		sort.Slice(lessons, func(i, j int) bool { return lessons[i].StartAt.Before(lessons[j].StartAt) })

		var cluster []models.LessonDetail
		clusterEnd := time.Time{}
		flush := func() {
			if len(cluster) >= 2 {
				booking := models.DoubleBooking{
					TeacherID:   teacherID,
					TeacherName: cluster[0].TeacherName,
				}
				for _, lesson := range cluster {
					booking.Lessons = append(booking.Lessons, auditEntry(lesson))
				}
				bookings = append(bookings, booking)
			}
			cluster = nil
		}
		for _, lesson := range lessons {
			if len(cluster) > 0 && lesson.StartAt.Before(clusterEnd) {
				cluster = append(cluster, lesson)
				if lesson.EndAt().After(clusterEnd) {
					clusterEnd = lesson.EndAt()
				}
				continue
			}
			flush()
			cluster = []models.LessonDetail{lesson}
			clusterEnd = lesson.EndAt()
		}
		flush()
	}
	return bookings
}

func inactiveTeachers(details []models.LessonDetail) []models.InactiveTeacher {
	byTeacher := map[string]*models.InactiveTeacher{}
	order := []string{}
	for i := range details {
		if details[i].TeacherActive || !details[i].Status.Active() {
			continue
		}
		id := details[i].TeacherID
		entry, ok := byTeacher[id]
		if !ok {
			entry = &models.InactiveTeacher{TeacherID: id, TeacherName: details[i].TeacherName}
			byTeacher[id] = entry
			order = append(order, id)
		}
		entry.Lessons = append(entry.Lessons, auditEntry(details[i]))
	}
	out := make([]models.InactiveTeacher, 0, len(order))
	for _, id := range order {
		out = append(out, *byTeacher[id])
	}
	return out
}

func (s *AuditService) fromCache(ctx context.Context, key string) *models.WeeklyAuditReport {
	if s.cache == nil || !s.cfg.Enabled {
		return nil
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("audit cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.AuditCache(false)
		return nil
	}
	var report models.WeeklyAuditReport
	if err := json.Unmarshal(raw, &report); err != nil {
		s.logger.Warn("audit cache payload invalid", zap.String("key", key), zap.Error(err))
		s.metrics.AuditCache(false)
		return nil
	}
	s.metrics.AuditCache(true)
	return &report
}

func (s *AuditService) toCache(ctx context.Context, key string, report *models.WeeklyAuditReport) {
	if s.cache == nil || !s.cfg.Enabled {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("audit cache marshal failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("audit cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func auditEntry(detail models.LessonDetail) models.AuditLessonEntry {
	return models.AuditLessonEntry{
		LessonID:    detail.ID,
		StudentName: detail.StudentName,
		TeacherName: detail.TeacherName,
		StartAt:     detail.StartAt,
	}
}

// floorToMonday returns midnight of the Monday on or before t.
func floorToMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
