package schedule

import (
	"fmt"
	"time"

	"campusops/internal/timeutil"
)

// Proposal is a session create/edit candidate handed to the conflict
// detector. ExcludeID is set when editing so a session never conflicts
// with itself.
type Proposal struct {
	Date       time.Time
	StartMin   int
	EndMin     int
	LecturerID string
	CenterID   string
	Room       string
	ExcludeID  string
}

// DetectConflicts scans the given same-day sessions and reports every
// lecturer and room overlap against the proposal, in input order. The
// caller must supply only non-cancelled sessions dated on the proposal's
// date and is responsible for rejecting the write when the result is
// non-empty. StartMin < EndMin must already hold.
func DetectConflicts(p Proposal, sameDay []Session) []Conflict {
	var out []Conflict
	for _, s := range sameDay {
		if s.ID == p.ExcludeID || s.Status == StatusCancelled {
			continue
		}
		if !timeutil.Overlaps(p.StartMin, p.EndMin, s.StartMin, s.EndMin) {
			continue
		}
		if s.LecturerID == p.LecturerID {
			out = append(out, Conflict{
				Kind:       ConflictLecturer,
				SessionID:  s.ID,
				StartMin:   s.StartMin,
				EndMin:     s.EndMin,
				LecturerID: s.LecturerID,
			})
		}
		if s.Room == p.Room && s.CenterID == p.CenterID {
			out = append(out, Conflict{
				Kind:      ConflictRoom,
				SessionID: s.ID,
				StartMin:  s.StartMin,
				EndMin:    s.EndMin,
				Room:      s.Room,
				CenterID:  s.CenterID,
			})
		}
	}
	return out
}

// ConflictError carries the full structured conflict list so callers can
// render both lecturer and room clashes.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with %d existing session(s)", len(e.Conflicts))
}
