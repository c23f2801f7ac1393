package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vemfalar/agenda-api/internal/dto"
	"github.com/vemfalar/agenda-api/internal/models"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
	"github.com/vemfalar/agenda-api/pkg/response"
)

type availabilityService interface {
	FreeSlots(ctx context.Context, teacherID string, date time.Time, durationMinutes int, notBefore *time.Time) ([]dto.FreeSlot, error)
	FreeDates(ctx context.Context, teacherID string, from time.Time, durationMinutes, horizonMonths int) ([]string, error)
}

// AvailabilityHandler exposes the availability resolver.
type AvailabilityHandler struct {
	service       availabilityService
	horizonMonths int
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService, horizonMonths int) *AvailabilityHandler {
	if horizonMonths <= 0 {
		horizonMonths = 3
	}
	return &AvailabilityHandler{service: service, horizonMonths: horizonMonths}
}

// FreeSlots godoc
// @Summary List a teacher's free slots on a date
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int true "Lesson duration in minutes"
// @Param not_before query string false "Earliest acceptable date (YYYY-MM-DD), e.g. the original lesson date"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability/slots [get]
func (h *AvailabilityHandler) FreeSlots(c *gin.Context) {
	date, err := time.Parse(models.HolidayDateLayout, c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must use the YYYY-MM-DD format"))
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil || duration <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be a positive number of minutes"))
		return
	}
	var notBefore *time.Time
	if raw := c.Query("not_before"); raw != "" {
		parsed, perr := time.Parse(models.HolidayDateLayout, raw)
		if perr != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "not_before must use the YYYY-MM-DD format"))
			return
		}
		notBefore = &parsed
	}
	slots, err := h.service.FreeSlots(c.Request.Context(), c.Param("id"), date, duration, notBefore)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// FreeDates godoc
// @Summary List dates with at least one free slot inside the horizon
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param duration query int true "Lesson duration in minutes"
// @Param months query int false "Search horizon in months (capped by the configured horizon)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability/dates [get]
func (h *AvailabilityHandler) FreeDates(c *gin.Context) {
	from, err := time.Parse(models.HolidayDateLayout, c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must use the YYYY-MM-DD format"))
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil || duration <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be a positive number of minutes"))
		return
	}
	months := h.horizonMonths
	if raw := c.Query("months"); raw != "" {
		parsed, perr := strconv.Atoi(raw)
		if perr != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "months must be a positive number"))
			return
		}
		if parsed < months {
			months = parsed
		}
	}
	dates, err := h.service.FreeDates(c.Request.Context(), c.Param("id"), from, duration, months)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}
