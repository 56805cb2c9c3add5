package attendance

import (
	"context"
	"errors"
	"time"

	"campusops/internal/schedule"
	"campusops/internal/timeutil"
)

// RecordStatus is the attendance outcome for one (student, session) pair.
type RecordStatus string

const (
	StatusPresent RecordStatus = "PRESENT"
	StatusLate    RecordStatus = "LATE"
	StatusAbsent  RecordStatus = "ABSENT"
	StatusExcused RecordStatus = "EXCUSED"
)

// Action reports what a scan did to the attendance record.
type Action string

const (
	ActionEntry            Action = "ENTRY"
	ActionExit             Action = "EXIT"
	ActionAlreadyCompleted Action = "ALREADY_COMPLETED"
)

// Record is one student's attendance for one session. ExitTime stays nil
// until the second scan.
type Record struct {
	ID          string
	StudentID   string
	SessionID   string
	Status      RecordStatus
	EntryTime   time.Time
	ExitTime    *time.Time
	FirstMarked time.Time
	Remarks     string
}

// Result pairs the action taken with the record after the scan.
type Result struct {
	Action  Action
	Record  Record
	Session schedule.Session
}

var (
	// ErrNoActiveEnrollment means the student has no ACTIVE enrollment to
	// derive candidate sessions from.
	ErrNoActiveEnrollment = errors.New("student has no active enrollment")
	// ErrNoActiveSchedule means no enrolled session's grace window covers
	// the scan instant.
	ErrNoActiveSchedule = errors.New("no active class schedule for this scan")
	// ErrSessionNotFound means the explicitly supplied session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
)

// Policy holds the scan-matching constants. These are operational knobs,
// not structural requirements.
type Policy struct {
	GraceBefore time.Duration // window opens this long before start
	GraceAfter  time.Duration // window closes this long after end
	LateAfter   time.Duration // entries later than start+LateAfter are LATE
}

// DefaultPolicy mirrors the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		GraceBefore: 15 * time.Minute,
		GraceAfter:  30 * time.Minute,
		LateAfter:   10 * time.Minute,
	}
}

// Store is the persistence surface for attendance records and the
// read-only enrollment/session lookups the matcher needs.
type Store interface {
	// ActiveBatchIDs projects the student's ACTIVE enrollments to batch ids.
	ActiveBatchIDs(ctx context.Context, studentID string) ([]string, error)
	// SessionsOnDateForBatches returns non-cancelled sessions on a date
	// belonging to any of the batches, in stable (start_min, id) order.
	SessionsOnDateForBatches(ctx context.Context, date time.Time, batchIDs []string) ([]schedule.Session, error)
	// GetSession fetches one session by id, nil when absent.
	GetSession(ctx context.Context, id string) (*schedule.Session, error)

	GetRecord(ctx context.Context, studentID, sessionID string) (*Record, error)
	// InsertRecord creates the record; inserted=false means a concurrent
	// scan won the (student, session) uniqueness race and rec holds the
	// existing row.
	InsertRecord(ctx context.Context, rec Record) (out Record, inserted bool, err error)
	// SetExit stamps the exit time if it is still unset; ok=false means
	// the record had already exited.
	SetExit(ctx context.Context, id string, at time.Time) (ok bool, err error)
}

// Service turns resolved scans into attendance entry/exit records.
type Service struct {
	store  Store
	policy Policy
}

// NewService builds the attendance service with the given policy.
func NewService(store Store, policy Policy) *Service {
	if policy.GraceBefore == 0 && policy.GraceAfter == 0 && policy.LateAfter == 0 {
		policy = DefaultPolicy()
	}
	return &Service{store: store, policy: policy}
}

// MatchSession finds the session a scan belongs to. An explicit session id
// short-circuits the search; otherwise the student's enrolled batches are
// scanned for same-day sessions whose grace window contains the scan's
// time-of-day, and the nearest start time wins.
func (s *Service) MatchSession(ctx context.Context, studentID, explicitID string, at time.Time) (schedule.Session, error) {
	if explicitID != "" {
		sess, err := s.store.GetSession(ctx, explicitID)
		if err != nil {
			return schedule.Session{}, err
		}
		if sess == nil {
			return schedule.Session{}, ErrSessionNotFound
		}
		return *sess, nil
	}

	batches, err := s.store.ActiveBatchIDs(ctx, studentID)
	if err != nil {
		return schedule.Session{}, err
	}
	if len(batches) == 0 {
		return schedule.Session{}, ErrNoActiveEnrollment
	}

	candidates, err := s.store.SessionsOnDateForBatches(ctx, timeutil.DateOf(at), batches)
	if err != nil {
		return schedule.Session{}, err
	}

	scanMin := timeutil.MinuteOfDay(at)
	graceBefore := int(s.policy.GraceBefore.Minutes())
	graceAfter := int(s.policy.GraceAfter.Minutes())

	best := -1
	bestDist := 0
	for i, c := range candidates {
		if scanMin < c.StartMin-graceBefore || scanMin > c.EndMin+graceAfter {
			continue
		}
		d := timeutil.AbsDiff(c.StartMin, scanMin)
		// Strict < keeps the first-encountered session on an exact tie.
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 {
		return schedule.Session{}, ErrNoActiveSchedule
	}
	return candidates[best], nil
}

// RecordScan advances the (student, session) pair through the entry/exit
// state machine: no record yet creates one (ENTRY), an open record gets
// its exit stamped (EXIT), and a closed record is left untouched
// (ALREADY_COMPLETED). Duplicate scans are therefore no-ops.
func (s *Service) RecordScan(ctx context.Context, studentID string, sess schedule.Session, at time.Time) (Result, error) {
	rec, err := s.store.GetRecord(ctx, studentID, sess.ID)
	if err != nil {
		return Result{}, err
	}

	if rec == nil {
		fresh := Record{
			StudentID:   studentID,
			SessionID:   sess.ID,
			Status:      s.entryStatus(sess, at),
			EntryTime:   at,
			FirstMarked: at,
		}
		created, inserted, err := s.store.InsertRecord(ctx, fresh)
		if err != nil {
			return Result{}, err
		}
		if inserted {
			return Result{Action: ActionEntry, Record: created, Session: sess}, nil
		}
		// A concurrent scan created the record first; fall through to the
		// exit path against the winner's row.
		rec = &created
	}

	if rec.ExitTime == nil {
		ok, err := s.store.SetExit(ctx, rec.ID, at)
		if err != nil {
			return Result{}, err
		}
		if ok {
			out := *rec
			out.ExitTime = &at
			return Result{Action: ActionExit, Record: out, Session: sess}, nil
		}
	}
	return Result{Action: ActionAlreadyCompleted, Record: *rec, Session: sess}, nil
}

// Scan is the full pipeline for a resolved student: match, then record.
func (s *Service) Scan(ctx context.Context, studentID, explicitID string, at time.Time) (Result, error) {
	sess, err := s.MatchSession(ctx, studentID, explicitID, at)
	if err != nil {
		return Result{}, err
	}
	return s.RecordScan(ctx, studentID, sess, at)
}

// entryStatus compares the scan instant at second resolution so an entry
// exactly on the late threshold is still PRESENT.
func (s *Service) entryStatus(sess schedule.Session, at time.Time) RecordStatus {
	threshold := sess.StartMin*60 + int(s.policy.LateAfter.Seconds())
	if timeutil.SecondOfDay(at) > threshold {
		return StatusLate
	}
	return StatusPresent
}
