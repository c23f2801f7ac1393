package dto

// CreateHolidayRequest registers a date on which no lesson may be scheduled.
type CreateHolidayRequest struct {
	Date string `json:"date" binding:"required"`
	Name string `json:"name" binding:"required"`
}
