package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditTrailAppendPreservesOrder(t *testing.T) {
	at := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	trail := AuditTrail{}.
		Append("Maria Silva", AuditActionRequested, at).
		Append("Ana Admin", AuditActionApproved, at.Add(time.Hour))

	require.Len(t, trail, 2)
	require.Equal(t, "Maria Silva", trail[0].Actor)
	require.Equal(t, AuditActionApproved, trail[1].Action)
}

func TestAuditEntryLegacySentence(t *testing.T) {
	entry := AuditEntry{
		Actor:     "Ana Admin",
		Action:    AuditActionCancelled,
		Timestamp: time.Date(2026, 9, 7, 14, 30, 0, 0, time.UTC),
	}
	require.Equal(t, "Lesson was cancelled by Ana Admin at 2026-09-07 14:30", entry.Legacy())
}

func TestAuditTrailLegacyJoinsLines(t *testing.T) {
	at := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	trail := AuditTrail{}.
		Append("Maria Silva", AuditActionRequested, at).
		Append("Ana Admin", AuditActionApproved, at)

	require.Equal(t,
		"Lesson was requested by Maria Silva at 2026-09-07 10:00\nLesson was approved by Ana Admin at 2026-09-07 10:00",
		trail.Legacy())
}

func TestAuditTrailScanValueRoundTrip(t *testing.T) {
	at := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	trail := AuditTrail{}.Append("Ana Admin", AuditActionCreated, at)

	raw, err := trail.Value()
	require.NoError(t, err)

	var decoded AuditTrail
	require.NoError(t, decoded.Scan(raw))
	require.Equal(t, trail, decoded)
}

func TestAuditTrailNilValueIsEmptyArray(t *testing.T) {
	var trail AuditTrail
	raw, err := trail.Value()
	require.NoError(t, err)
	require.Equal(t, []byte("[]"), raw)

	var decoded AuditTrail
	require.NoError(t, decoded.Scan(nil))
	require.Nil(t, decoded)
}
