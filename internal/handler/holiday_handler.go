package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type holidayService interface {
	List(ctx context.Context) ([]models.Holiday, error)
	Create(ctx context.Context, req dto.CreateHolidayRequest) (*models.Holiday, error)
	Delete(ctx context.Context, date string) error
}

// HolidayHandler exposes the holiday date table.
type HolidayHandler struct {
	service holidayService
}

// NewHolidayHandler constructs the handler.
func NewHolidayHandler(service holidayService) *HolidayHandler {
	return &HolidayHandler{service: service}
}

// List godoc
// @Summary List registered holidays
// @Tags Holidays
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /holidays [get]
func (h *HolidayHandler) List(c *gin.Context) {
	holidays, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, holidays, nil)
}

// Create godoc
// @Summary Register a holiday date
// @Tags Holidays
// @Accept json
// @Produce json
// @Param payload body dto.CreateHolidayRequest true "Holiday payload"
// @Success 201 {object} response.Envelope
// @Router /holidays [post]
func (h *HolidayHandler) Create(c *gin.Context) {
	var req dto.CreateHolidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid holiday payload"))
		return
	}
	holiday, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, holiday)
}

// Delete godoc
// @Summary Remove a holiday date
// @Tags Holidays
// @Produce json
// @Param date path string true "Holiday date (YYYY-MM-DD)"
// @Success 204
// @Router /holidays/{date} [delete]
func (h *HolidayHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
