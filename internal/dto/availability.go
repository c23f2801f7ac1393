package dto

import "time"

// FreeSlot is one bookable interval on a teacher's day.
type FreeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotInput is one availability window in a replacement payload.
// Weekday follows time.Weekday numbering (0 = Sunday).
type SlotInput struct {
	Weekday     int `json:"weekday" binding:"min=0,max=6"`
	StartMinute int `json:"start_minute" binding:"min=0,max=1439"`
	EndMinute   int `json:"end_minute" binding:"min=1,max=1440"`
}

// ReplaceAvailabilityRequest replaces a teacher's full slot set.
type ReplaceAvailabilityRequest struct {
	Slots []SlotInput `json:"slots"`
}

// SlotConflict describes a future lesson orphaned by a slot replacement.
type SlotConflict struct {
	LessonID    string    `json:"lesson_id"`
	StudentName string    `json:"student_name"`
	StartAt     time.Time `json:"start_at"`
}
