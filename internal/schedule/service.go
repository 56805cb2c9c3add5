package schedule

import (
	"context"
	"errors"
	"log"
	"time"

	"campusops/internal/metrics"
	"campusops/internal/timeutil"
)

var (
	// ErrNotFound signals a missing session id.
	ErrNotFound = errors.New("session not found")
	// ErrHasAttendance blocks deletion of sessions with attendance records.
	ErrHasAttendance = errors.New("session has attendance records")
	// ErrInvalidTime signals startTime >= endTime or an out-of-range clock.
	ErrInvalidTime = errors.New("start time must be before end time")
)

// Filter narrows session listings.
type Filter struct {
	Date       *time.Time
	LecturerID string
	BatchID    string
	Status     Status
	Limit      int
	Offset     int
}

// Store is the persistence surface the scheduling service needs.
type Store interface {
	ListOnDate(ctx context.Context, date time.Time, excludeID string) ([]Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Insert(ctx context.Context, s Session) (Session, error)
	Update(ctx context.Context, s Session) (Session, error)
	SetStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	HasAttendance(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f Filter) ([]Session, error)
	CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error)
	// AdvanceFinished promotes SCHEDULED sessions ended strictly before
	// (today, nowMin) to COMPLETED and returns how many changed.
	AdvanceFinished(ctx context.Context, today time.Time, nowMin int) (int64, error)
}

// Service owns session scheduling: conflict-checked writes, listings, and
// the lifecycle auto-advancer.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a scheduling service. The clock is injectable for tests.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Input is the caller-supplied session payload for create and update.
type Input struct {
	ModuleID   string
	BatchID    string
	LecturerID string
	CenterID   string
	Room       string
	Date       time.Time
	StartMin   int
	EndMin     int
	Delivery   string
}

func (in Input) validate() error {
	if in.StartMin < 0 || in.EndMin > timeutil.MinutesPerDay {
		return ErrInvalidTime
	}
	if in.StartMin >= in.EndMin {
		return ErrInvalidTime
	}
	return nil
}

// DetectConflicts runs the read-only conflict check for a proposal.
func (s *Service) DetectConflicts(ctx context.Context, p Proposal) ([]Conflict, error) {
	sameDay, err := s.store.ListOnDate(ctx, p.Date, p.ExcludeID)
	if err != nil {
		return nil, err
	}
	return DetectConflicts(p, sameDay), nil
}

// Create checks the proposal for lecturer/room clashes and persists the
// session when clear. A non-empty conflict list is returned as
// *ConflictError; the store's transactional insert re-verifies under an
// advisory lock to close the check-then-act race.
func (s *Service) Create(ctx context.Context, in Input) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	conflicts, err := s.DetectConflicts(ctx, Proposal{
		Date:       in.Date,
		StartMin:   in.StartMin,
		EndMin:     in.EndMin,
		LecturerID: in.LecturerID,
		CenterID:   in.CenterID,
		Room:       in.Room,
	})
	if err != nil {
		return Session{}, err
	}
	if len(conflicts) > 0 {
		metrics.SessionConflictsTotal.Inc()
		return Session{}, &ConflictError{Conflicts: conflicts}
	}

	sess := Session{
		ModuleID:   in.ModuleID,
		BatchID:    in.BatchID,
		LecturerID: in.LecturerID,
		CenterID:   in.CenterID,
		Room:       in.Room,
		Date:       timeutil.DateOf(in.Date),
		StartMin:   in.StartMin,
		EndMin:     in.EndMin,
		Status:     StatusScheduled,
		Delivery:   in.Delivery,
	}
	created, err := s.store.Insert(ctx, sess)
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			metrics.SessionConflictsTotal.Inc()
		}
		return Session{}, err
	}
	return created, nil
}

// Update edits an existing session after re-running conflict detection
// with the session itself excluded.
func (s *Service) Update(ctx context.Context, id string, in Input) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if existing == nil {
		return Session{}, ErrNotFound
	}
	conflicts, err := s.DetectConflicts(ctx, Proposal{
		Date:       in.Date,
		StartMin:   in.StartMin,
		EndMin:     in.EndMin,
		LecturerID: in.LecturerID,
		CenterID:   in.CenterID,
		Room:       in.Room,
		ExcludeID:  id,
	})
	if err != nil {
		return Session{}, err
	}
	if len(conflicts) > 0 {
		metrics.SessionConflictsTotal.Inc()
		return Session{}, &ConflictError{Conflicts: conflicts}
	}

	updated := *existing
	updated.ModuleID = in.ModuleID
	updated.BatchID = in.BatchID
	updated.LecturerID = in.LecturerID
	updated.CenterID = in.CenterID
	updated.Room = in.Room
	updated.Date = timeutil.DateOf(in.Date)
	updated.StartMin = in.StartMin
	updated.EndMin = in.EndMin
	updated.Delivery = in.Delivery
	return s.store.Update(ctx, updated)
}

// Cancel moves a SCHEDULED session to the terminal CANCELLED state.
func (s *Service) Cancel(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	if existing.Status != StatusScheduled {
		return errors.New("only scheduled sessions can be cancelled")
	}
	return s.store.SetStatus(ctx, id, StatusCancelled)
}

// Delete removes a session that has no attendance records referencing it.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	has, err := s.store.HasAttendance(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return ErrHasAttendance
	}
	return s.store.Delete(ctx, id)
}

// Get fetches one session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// List returns sessions matching the filter. The auto-advancer runs
// first so no stale SCHEDULED status is ever observed by a reader.
func (s *Service) List(ctx context.Context, f Filter) ([]Session, error) {
	s.AdvanceFinished(ctx)
	return s.store.List(ctx, f)
}

// Stats reports per-status counts for a date range, advancing finished
// sessions first like every other reporting path.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	s.AdvanceFinished(ctx)
	return s.store.CountByStatus(ctx, from, to)
}

// AdvanceFinished promotes every SCHEDULED session whose end instant has
// passed to COMPLETED. It is idempotent and must never fail the request
// it runs inside of; errors are logged and swallowed.
func (s *Service) AdvanceFinished(ctx context.Context) int64 {
	now := s.now()
	n, err := s.store.AdvanceFinished(ctx, timeutil.DateOf(now), timeutil.MinuteOfDay(now))
	if err != nil {
		log.Printf("auto-advance failed: %v", err)
		return 0
	}
	if n > 0 {
		metrics.SessionsAdvancedTotal.Add(float64(n))
	}
	return n
}
