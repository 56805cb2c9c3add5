package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func existing(id, lecturer, room, center string, start, end int) Session {
	return Session{
		ID:         id,
		LecturerID: lecturer,
		CenterID:   center,
		Room:       room,
		Date:       testDay,
		StartMin:   start,
		EndMin:     end,
		Status:     StatusScheduled,
	}
}

func TestDetectConflictsIdenticalRange(t *testing.T) {
	// An identical lecturer and time range must always conflict.
	sameDay := []Session{existing("s1", "lect-1", "A1", "c1", 540, 600)}
	p := Proposal{Date: testDay, StartMin: 540, EndMin: 600, LecturerID: "lect-1", Room: "B2", CenterID: "c1"}

	got := DetectConflicts(p, sameDay)
	require.Len(t, got, 1)
	assert.Equal(t, ConflictLecturer, got[0].Kind)
	assert.Equal(t, "s1", got[0].SessionID)
}

func TestDetectConflictsBackToBack(t *testing.T) {
	// 09:00-10:00 followed by 10:00-11:00 is not a conflict.
	sameDay := []Session{existing("s1", "lect-1", "A1", "c1", 540, 600)}
	p := Proposal{Date: testDay, StartMin: 600, EndMin: 660, LecturerID: "lect-1", Room: "A1", CenterID: "c1"}

	assert.Empty(t, DetectConflicts(p, sameDay))
}

func TestDetectConflictsOverlappingLecturer(t *testing.T) {
	// S at 09:00-10:00, S2 same lecturer at 09:30-10:30 -> one LECTURER conflict.
	sameDay := []Session{existing("s1", "lect-1", "A1", "c1", 540, 600)}
	p := Proposal{Date: testDay, StartMin: 570, EndMin: 630, LecturerID: "lect-1", Room: "B2", CenterID: "c1"}

	got := DetectConflicts(p, sameDay)
	require.Len(t, got, 1)
	assert.Equal(t, ConflictLecturer, got[0].Kind)
}

func TestDetectConflictsRoomRequiresSameCenter(t *testing.T) {
	sameDay := []Session{
		existing("s1", "lect-1", "A1", "c1", 540, 600),
		existing("s2", "lect-2", "A1", "c2", 540, 600),
	}
	p := Proposal{Date: testDay, StartMin: 540, EndMin: 600, LecturerID: "lect-3", Room: "A1", CenterID: "c1"}

	got := DetectConflicts(p, sameDay)
	require.Len(t, got, 1)
	assert.Equal(t, ConflictRoom, got[0].Kind)
	assert.Equal(t, "s1", got[0].SessionID)
}

func TestDetectConflictsBothKindsFromOneSession(t *testing.T) {
	sameDay := []Session{existing("s1", "lect-1", "A1", "c1", 540, 600)}
	p := Proposal{Date: testDay, StartMin: 550, EndMin: 610, LecturerID: "lect-1", Room: "A1", CenterID: "c1"}

	got := DetectConflicts(p, sameDay)
	require.Len(t, got, 2)
	assert.Equal(t, ConflictLecturer, got[0].Kind)
	assert.Equal(t, ConflictRoom, got[1].Kind)
}

func TestDetectConflictsSkipsExcludedAndCancelled(t *testing.T) {
	cancelled := existing("s2", "lect-1", "A1", "c1", 540, 600)
	cancelled.Status = StatusCancelled
	sameDay := []Session{
		existing("s1", "lect-1", "A1", "c1", 540, 600),
		cancelled,
	}
	p := Proposal{
		Date: testDay, StartMin: 540, EndMin: 600,
		LecturerID: "lect-1", Room: "A1", CenterID: "c1",
		ExcludeID: "s1",
	}

	assert.Empty(t, DetectConflicts(p, sameDay))
}

func TestDetectConflictsPreservesInputOrder(t *testing.T) {
	sameDay := []Session{
		existing("s1", "lect-1", "A1", "c1", 540, 600),
		existing("s2", "lect-1", "B2", "c1", 570, 630),
		existing("s3", "lect-2", "A1", "c1", 590, 650),
	}
	p := Proposal{Date: testDay, StartMin: 540, EndMin: 660, LecturerID: "lect-1", Room: "A1", CenterID: "c1"}

	got := DetectConflicts(p, sameDay)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"s1", "s1", "s2", "s3"},
		[]string{got[0].SessionID, got[1].SessionID, got[2].SessionID, got[3].SessionID})
}
