package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/internal/service"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type teacherService interface {
	Get(ctx context.Context, id string) (*models.Teacher, error)
	Slots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
	ReplaceAvailability(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) ([]models.AvailabilitySlot, error)
}

// TeacherHandler exposes teacher reference data and availability management.
type TeacherHandler struct {
	service teacherService
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(service teacherService) *TeacherHandler {
	return &TeacherHandler{service: service}
}

// Get godoc
// @Summary Get teacher detail
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Slots godoc
// @Summary List a teacher's availability windows
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *TeacherHandler) Slots(c *gin.Context) {
	slots, err := h.service.Slots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// ReplaceAvailability godoc
// @Summary Replace a teacher's full availability slot set
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Slot set"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Future lessons outside the proposed windows"
// @Router /teachers/{id}/availability [put]
func (h *TeacherHandler) ReplaceAvailability(c *gin.Context) {
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid availability payload"))
		return
	}
	slots, err := h.service.ReplaceAvailability(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		var slotErr *service.SlotConflictError
		if errors.As(err, &slotErr) {
			appErr := appErrors.FromError(err)
			c.JSON(appErr.Status, response.Envelope{
				Error: appErr,
				Data:  gin.H{"conflicts": slotErr.Conflicts},
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
