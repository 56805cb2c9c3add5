package schedule

import "time"

// Status is a session lifecycle state.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Session is one scheduled class meeting. Times of day are stored as
// minutes since midnight; Date carries no time component.
type Session struct {
	ID         string
	ModuleID   string
	BatchID    string
	LecturerID string
	CenterID   string
	Room       string
	Date       time.Time
	StartMin   int
	EndMin     int
	Status     Status
	Delivery   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ConflictKind distinguishes what resource a conflicting session shares
// with the proposal.
type ConflictKind string

const (
	ConflictLecturer ConflictKind = "LECTURER"
	ConflictRoom     ConflictKind = "ROOM"
)

// Conflict describes one overlap against an existing session. A single
// existing session can yield both a LECTURER and a ROOM conflict.
type Conflict struct {
	Kind       ConflictKind `json:"kind"`
	SessionID  string       `json:"session_id"`
	StartMin   int          `json:"-"`
	EndMin     int          `json:"-"`
	LecturerID string       `json:"lecturer_id,omitempty"`
	Room       string       `json:"room,omitempty"`
	CenterID   string       `json:"center_id,omitempty"`
}
