package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type requestService interface {
	CreateRequest(ctx context.Context, lessonID string, req dto.CreateRequestRequest, actor *models.Actor) (*models.LessonRequest, error)
	Get(ctx context.Context, id string, actor *models.Actor) (*models.LessonRequest, error)
	List(ctx context.Context, filter models.RequestFilter, actor *models.Actor) ([]models.LessonRequest, error)
	Decide(ctx context.Context, requestID string, req dto.DecideRequestRequest, actor *models.Actor) (*dto.DecideRequestResult, error)
}

// RequestHandler exposes REST endpoints for the change-request workflow.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create godoc
// @Summary Raise a change request on a lesson
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/{id}/requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.CreateRequest(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List change requests
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Param lesson_id query string false "Lesson filter"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.RequestFilter{
		LessonID: strings.TrimSpace(c.Query("lesson_id")),
	}
	if raw := c.Query("type"); raw != "" {
		filter.Type = models.RequestType(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Statuses = append(filter.Statuses, models.RequestStatus(part))
			}
		}
	}
	requests, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get change request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Decide a change request as teacher or admin
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideRequestRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/decision [post]
func (h *RequestHandler) Decide(c *gin.Context) {
	var req dto.DecideRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
