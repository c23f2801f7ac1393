package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type lessonService interface {
	Create(ctx context.Context, req dto.CreateLessonRequest, actor *models.Actor) (*dto.CreateLessonsResult, error)
	Get(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	Update(ctx context.Context, id string, req dto.UpdateLessonRequest, actor *models.Actor) (*models.Lesson, error)
	Delete(ctx context.Context, id string, cascade bool, actor *models.Actor) (int64, error)
}

// LessonHandler exposes REST endpoints for the lesson lifecycle.
type LessonHandler struct {
	service lessonService
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(service lessonService) *LessonHandler {
	return &LessonHandler{service: service}
}

// Create godoc
// @Summary Book a lesson or recurring series
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(result.Skipped) > 0 {
		meta = map[string]interface{}{"skipped_holidays": result.Skipped}
	}
	response.Created(c, result.Created, meta)
}

// List godoc
// @Summary List lessons
// @Tags Lessons
// @Produce json
// @Param enrollment_id query string false "Enrollment filter"
// @Param teacher_id query string false "Teacher filter"
// @Param from query string false "RFC3339 lower bound (inclusive)"
// @Param to query string false "RFC3339 upper bound (exclusive)"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	filter := models.LessonFilter{
		EnrollmentID: strings.TrimSpace(c.Query("enrollment_id")),
		TeacherID:    strings.TrimSpace(c.Query("teacher_id")),
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339"))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339"))
			return
		}
		filter.To = &to
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Statuses = append(filter.Statuses, models.LessonStatus(part))
			}
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	lessons, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Get godoc
// @Summary Get lesson detail
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Update godoc
// @Summary Update a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.UpdateLessonRequest true "Partial lesson payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	var req dto.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Delete godoc
// @Summary Delete a lesson, optionally cascading the future series
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Param cascade query bool false "Delete all future occurrences of the series"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cascade := c.Query("cascade") == "true"
	count, err := h.service.Delete(c.Request.Context(), c.Param("id"), cascade, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": count}, nil)
}
