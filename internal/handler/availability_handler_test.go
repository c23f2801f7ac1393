package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vemfalar/agenda-api/internal/dto"
)

type availabilityServiceMock struct {
	slotsResp  []dto.FreeSlot
	datesResp  []string
	lastMonths int
	lastFrom   time.Time
}

func (m *availabilityServiceMock) FreeSlots(ctx context.Context, teacherID string, date time.Time, durationMinutes int, notBefore *time.Time) ([]dto.FreeSlot, error) {
	return m.slotsResp, nil
}

func (m *availabilityServiceMock) FreeDates(ctx context.Context, teacherID string, from time.Time, durationMinutes, horizonMonths int) ([]string, error) {
	m.lastFrom = from
	m.lastMonths = horizonMonths
	return m.datesResp, nil
}

func TestAvailabilityHandlerFreeDatesDefaultHorizon(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &availabilityServiceMock{datesResp: []string{"2026-09-14"}}
	handler := NewAvailabilityHandler(mockSvc, 3)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/teacher-1/availability/dates?from=2026-09-07&duration=60", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}

	handler.FreeDates(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mockSvc.lastMonths)
}

func TestAvailabilityHandlerFreeDatesNarrowsHorizon(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, 3)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/teacher-1/availability/dates?from=2026-09-07&duration=60&months=1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}

	handler.FreeDates(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.lastMonths)
}

func TestAvailabilityHandlerFreeDatesCapsAtConfiguredHorizon(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, 3)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/teacher-1/availability/dates?from=2026-09-07&duration=60&months=12", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}

	handler.FreeDates(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mockSvc.lastMonths)
}

func TestAvailabilityHandlerFreeDatesRejectsBadMonths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, 3)

	for _, months := range []string{"abc", "0", "-2"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		req, _ := http.NewRequest(http.MethodGet, "/teachers/teacher-1/availability/dates?from=2026-09-07&duration=60&months="+months, nil)
		c.Request = req
		c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}

		handler.FreeDates(c)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
}
