package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusops/internal/timeutil"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	sessions   map[string]Session
	attendance map[string]int // session id -> record count
	failAll    bool
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]Session{}, attendance: map[string]int{}}
}

var errStore = errors.New("store unavailable")

func (m *memStore) ListOnDate(_ context.Context, date time.Time, excludeID string) ([]Session, error) {
	if m.failAll {
		return nil, errStore
	}
	var out []Session
	for _, s := range m.sessions {
		if timeutil.SameDate(s.Date, date) && s.Status != StatusCancelled && s.ID != excludeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (*Session, error) {
	if m.failAll {
		return nil, errStore
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) Insert(_ context.Context, s Session) (Session, error) {
	if m.failAll {
		return Session{}, errStore
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) Update(_ context.Context, s Session) (Session, error) {
	if _, ok := m.sessions[s.ID]; !ok {
		return Session{}, ErrNotFound
	}
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) SetStatus(_ context.Context, id string, status Status) error {
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	m.sessions[id] = s
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memStore) HasAttendance(_ context.Context, id string) (bool, error) {
	return m.attendance[id] > 0, nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Session, error) {
	if m.failAll {
		return nil, errStore
	}
	var out []Session
	for _, s := range m.sessions {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) CountByStatus(_ context.Context, _, _ time.Time) (map[Status]int, error) {
	out := map[Status]int{}
	for _, s := range m.sessions {
		out[s.Status]++
	}
	return out, nil
}

func (m *memStore) AdvanceFinished(_ context.Context, today time.Time, nowMin int) (int64, error) {
	if m.failAll {
		return 0, errStore
	}
	var n int64
	for id, s := range m.sessions {
		if s.Status != StatusScheduled {
			continue
		}
		past := s.Date.Before(today) || (timeutil.SameDate(s.Date, today) && s.EndMin < nowMin)
		if past {
			s.Status = StatusCompleted
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func validInput(start, end int) Input {
	return Input{
		ModuleID:   "mod-1",
		BatchID:    "batch-1",
		LecturerID: "lect-1",
		CenterID:   "c1",
		Room:       "A1",
		Date:       testDay,
		StartMin:   start,
		EndMin:     end,
		Delivery:   "physical",
	}
}

func TestCreateRejectsInvalidTimes(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, err := svc.Create(context.Background(), validInput(600, 600))
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = svc.Create(context.Background(), validInput(660, 600))
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestCreateRejectsConflicts(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)

	_, err := svc.Create(context.Background(), validInput(540, 600))
	require.NoError(t, err)

	// Same lecturer, overlapping 09:30-10:30.
	in := validInput(570, 630)
	in.Room = "B2"
	_, err = svc.Create(context.Background(), in)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, ConflictLecturer, ce.Conflicts[0].Kind)
	assert.Len(t, store.sessions, 1)
}

func TestCreateAllowsDisjointRanges(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, err := svc.Create(context.Background(), validInput(540, 600))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validInput(600, 660))
	assert.NoError(t, err)
}

func TestUpdateExcludesSelf(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)

	created, err := svc.Create(context.Background(), validInput(540, 600))
	require.NoError(t, err)

	// Shifting the same session by 30 minutes must not conflict with itself.
	updated, err := svc.Update(context.Background(), created.ID, validInput(570, 630))
	require.NoError(t, err)
	assert.Equal(t, 570, updated.StartMin)
}

func TestUpdateUnknownSession(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Update(context.Background(), "missing", validInput(540, 600))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBlockedByAttendance(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)

	created, err := svc.Create(context.Background(), validInput(540, 600))
	require.NoError(t, err)
	store.attendance[created.ID] = 2

	err = svc.Delete(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrHasAttendance)
	assert.Contains(t, store.sessions, created.ID)

	store.attendance[created.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.NotContains(t, store.sessions, created.ID)
}

func TestCancelOnlyFromScheduled(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)

	created, err := svc.Create(context.Background(), validInput(540, 600))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), created.ID))
	assert.Equal(t, StatusCancelled, store.sessions[created.ID].Status)

	assert.Error(t, svc.Cancel(context.Background(), created.ID))
}

func TestAdvanceFinishedIdempotent(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))

	ended, _ := store.Insert(context.Background(), Session{
		Date: testDay, StartMin: 540, EndMin: 600, Status: StatusScheduled,
	})
	running, _ := store.Insert(context.Background(), Session{
		Date: testDay, StartMin: 600, EndMin: 660, Status: StatusScheduled,
	})
	yesterday, _ := store.Insert(context.Background(), Session{
		Date: testDay.AddDate(0, 0, -1), StartMin: 900, EndMin: 960, Status: StatusScheduled,
	})

	assert.Equal(t, int64(2), svc.AdvanceFinished(context.Background()))
	assert.Equal(t, StatusCompleted, store.sessions[ended.ID].Status)
	assert.Equal(t, StatusCompleted, store.sessions[yesterday.ID].Status)
	assert.Equal(t, StatusScheduled, store.sessions[running.ID].Status)

	// Second run with no time change is a no-op.
	assert.Equal(t, int64(0), svc.AdvanceFinished(context.Background()))
}

func TestAdvanceBoundaryIsExclusive(t *testing.T) {
	store := newMemStore()
	// End 10:00, now exactly 10:00 -> not yet strictly past.
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))

	s, _ := store.Insert(context.Background(), Session{
		Date: testDay, StartMin: 540, EndMin: 600, Status: StatusScheduled,
	})

	assert.Equal(t, int64(0), svc.AdvanceFinished(context.Background()))
	assert.Equal(t, StatusScheduled, store.sessions[s.ID].Status)
}

func TestAdvanceFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.failAll = true
	svc := NewService(store, nil)

	// Housekeeping must not panic or propagate.
	assert.Equal(t, int64(0), svc.AdvanceFinished(context.Background()))
}

func TestListAdvancesFirst(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))

	_, _ = store.Insert(context.Background(), Session{
		Date: testDay, StartMin: 540, EndMin: 600, Status: StatusScheduled,
	})

	out, err := svc.List(context.Background(), Filter{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
