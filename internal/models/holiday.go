package models

import "time"

// HolidayDateLayout is the canonical date key format for holidays.
const HolidayDateLayout = "2006-01-02"

// Holiday is a date on which no lesson may be created, rescheduled into, or
// registered against.
type Holiday struct {
	Date      string    `db:"date" json:"date"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DateKey normalises a timestamp to the holiday table's date key.
func DateKey(t time.Time) string {
	return t.Format(HolidayDateLayout)
}
