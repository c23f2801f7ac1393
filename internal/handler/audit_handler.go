package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/export"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type auditService interface {
	AuditWeek(ctx context.Context, day time.Time) (*models.WeeklyAuditReport, error)
}

// AuditHandler exposes the weekly consistency report.
type AuditHandler struct {
	service auditService
	pdf     *export.PDFExporter
	csv     *export.CSVExporter
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService, pdf *export.PDFExporter, csv *export.CSVExporter) *AuditHandler {
	return &AuditHandler{service: service, pdf: pdf, csv: csv}
}

// Week godoc
// @Summary Weekly consistency report (Monday to Saturday)
// @Tags Audit
// @Produce json
// @Param monday query string false "Any date inside the audited week (YYYY-MM-DD), defaults to today"
// @Param format query string false "json (default), pdf or csv"
// @Success 200 {object} response.Envelope
// @Router /audit/week [get]
func (h *AuditHandler) Week(c *gin.Context) {
	day := time.Now().UTC()
	if raw := c.Query("monday"); raw != "" {
		parsed, err := time.Parse(models.HolidayDateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "monday must use the YYYY-MM-DD format"))
			return
		}
		day = parsed
	}

	report, err := h.service.AuditWeek(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}

	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "json":
		response.JSON(c, http.StatusOK, report, nil)
	case "pdf":
		raw, err := h.pdf.RenderSections(reportSections(report),
			fmt.Sprintf("Weekly audit %s", models.DateKey(report.WeekStart)))
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report"))
			return
		}
		c.Header("Content-Disposition",
			fmt.Sprintf(`attachment; filename="audit-week-%s.pdf"`, models.DateKey(report.WeekStart)))
		c.Data(http.StatusOK, "application/pdf", raw)
	case "csv":
		raw, err := h.csv.Render(mismatchDataset(report))
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report"))
			return
		}
		c.Header("Content-Disposition",
			fmt.Sprintf(`attachment; filename="audit-week-%s.csv"`, models.DateKey(report.WeekStart)))
		c.Data(http.StatusOK, "text/csv", raw)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, pdf or csv"))
	}
}

func reportSections(report *models.WeeklyAuditReport) []export.Section {
	sections := []export.Section{
		{
			Caption: fmt.Sprintf("Lessons (%d confirmed, %d cancelled, %d reposicao)",
				report.ConfirmedCount, report.CancelledCount, report.ReposicaoCount),
			Data: lessonDataset(append(append(append([]models.AuditLessonEntry{},
				report.Confirmed...), report.Reposicao...), report.Cancelled...)),
		},
		{Caption: "Frequency mismatches", Data: mismatchDataset(report)},
	}
	for _, booking := range report.DoubleBookings {
		sections = append(sections, export.Section{
			Caption: fmt.Sprintf("Double booking: %s", booking.TeacherName),
			Data:    lessonDataset(booking.Lessons),
		})
	}
	for _, inactive := range report.InactiveTeachers {
		sections = append(sections, export.Section{
			Caption: fmt.Sprintf("Inactive teacher with lessons: %s", inactive.TeacherName),
			Data:    lessonDataset(inactive.Lessons),
		})
	}
	return sections
}

func lessonDataset(entries []models.AuditLessonEntry) export.Dataset {
	data := export.Dataset{Headers: []string{"Student", "Teacher", "Start"}}
	for _, entry := range entries {
		data.Rows = append(data.Rows, map[string]string{
			"Student": entry.StudentName,
			"Teacher": entry.TeacherName,
			"Start":   entry.StartAt.Format("2006-01-02 15:04"),
		})
	}
	return data
}

func mismatchDataset(report *models.WeeklyAuditReport) export.Dataset {
	data := export.Dataset{Headers: []string{"Label", "Expected", "Actual", "Expected min", "Actual min", "Latest book"}}
	for _, m := range report.FrequencyMismatches {
		data.Rows = append(data.Rows, map[string]string{
			"Label":        m.Label,
			"Expected":     strconv.Itoa(m.ExpectedCount),
			"Actual":       strconv.Itoa(m.ActualCount),
			"Expected min": strconv.Itoa(m.ExpectedMinutes),
			"Actual min":   strconv.Itoa(m.ActualMinutes),
			"Latest book":  m.LatestBook,
		})
	}
	return data
}
