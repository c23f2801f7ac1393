package models

import (
	"time"

	"github.com/lib/pq"
)

// Teacher represents an instructor record consumed by the scheduler.
type Teacher struct {
	ID        string         `db:"id" json:"id"`
	FullName  string         `db:"full_name" json:"full_name"`
	Email     string         `db:"email" json:"email"`
	Active    bool           `db:"active" json:"active"`
	Languages pq.StringArray `db:"languages" json:"languages"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Teaches reports whether the teacher covers the contracted course language.
// INGLES_E_ESPANHOL is satisfied by either language.
func (t *Teacher) Teaches(lang CourseLanguage) bool {
	has := func(want string) bool {
		for _, l := range t.Languages {
			if l == want {
				return true
			}
		}
		return false
	}
	switch lang {
	case LanguageIngles:
		return has(string(LanguageIngles))
	case LanguageEspanhol:
		return has(string(LanguageEspanhol))
	case LanguageInglesEEspanhol:
		return has(string(LanguageIngles)) || has(string(LanguageEspanhol))
	default:
		return false
	}
}

// AvailabilitySlot is one fixed weekly availability window.
// Weekday follows time.Weekday numbering (0 = Sunday).
type AvailabilitySlot struct {
	ID          string `db:"id" json:"id"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	Weekday     int    `db:"weekday" json:"weekday"`
	StartMinute int    `db:"start_minute" json:"start_minute"`
	EndMinute   int    `db:"end_minute" json:"end_minute"`
}

// Contains reports whether the minute range [start, end) fits inside the slot.
func (s AvailabilitySlot) Contains(weekday, startMinute, endMinute int) bool {
	return s.Weekday == weekday && startMinute >= s.StartMinute && endMinute <= s.EndMinute
}
