package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Audit actions recorded on a lesson's trail.
const (
	AuditActionCreated     = "created"
	AuditActionCancelled   = "cancelled"
	AuditActionRescheduled = "rescheduled"
	AuditActionRequested   = "requested"
	AuditActionApproved    = "approved"
)

// AuditEntry is one structured event on a lesson's append-only trail.
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Legacy renders the entry in the sentence format staff are used to reading.
func (e AuditEntry) Legacy() string {
	return fmt.Sprintf("Lesson was %s by %s at %s", e.Action, e.Actor, e.Timestamp.Format("2006-01-02 15:04"))
}

// AuditTrail is an ordered, append-only sequence of audit entries stored as a
// JSONB column.
type AuditTrail []AuditEntry

// Append returns the trail with a new entry added; prior entries are never
// replaced.
func (t AuditTrail) Append(actor, action string, at time.Time) AuditTrail {
	return append(t, AuditEntry{Actor: actor, Action: action, Timestamp: at.UTC()})
}

// Legacy renders the whole trail as newline separated sentences.
func (t AuditTrail) Legacy() string {
	out := ""
	for i, e := range t {
		if i > 0 {
			out += "\n"
		}
		out += e.Legacy()
	}
	return out
}

// Value implements driver.Valuer.
func (t AuditTrail) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *AuditTrail) Scan(src interface{}) error {
	if src == nil {
		*t = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported audit trail type %T", src)
	}
}
