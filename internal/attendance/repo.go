package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"campusops/internal/schedule"
)

// Repository persists attendance data in Postgres and serves the
// read-only enrollment and session lookups the matcher needs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ActiveBatchIDs returns the batch ids of the student's ACTIVE enrollments.
func (r *Repository) ActiveBatchIDs(ctx context.Context, studentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id FROM enrollments
		WHERE student_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SessionsOnDateForBatches returns non-cancelled sessions on the date whose
// batch is in the set, ordered by start time then id.
func (r *Repository) SessionsOnDateForBatches(ctx context.Context, date time.Time, batchIDs []string) ([]schedule.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, module_id, batch_id, lecturer_id, center_id, room,
			session_date, start_min, end_min, status, delivery, created_at, updated_at
		FROM sessions
		WHERE session_date = $1 AND status <> 'CANCELLED' AND batch_id = ANY($2)
		ORDER BY start_min, id
	`, date, batchIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Session
	for rows.Next() {
		var s schedule.Session
		if err := rows.Scan(&s.ID, &s.ModuleID, &s.BatchID, &s.LecturerID, &s.CenterID,
			&s.Room, &s.Date, &s.StartMin, &s.EndMin, &s.Status, &s.Delivery,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession fetches one session by id, nil when absent.
func (r *Repository) GetSession(ctx context.Context, id string) (*schedule.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, module_id, batch_id, lecturer_id, center_id, room,
			session_date, start_min, end_min, status, delivery, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id)
	var s schedule.Session
	err := row.Scan(&s.ID, &s.ModuleID, &s.BatchID, &s.LecturerID, &s.CenterID,
		&s.Room, &s.Date, &s.StartMin, &s.EndMin, &s.Status, &s.Delivery,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetRecord returns the attendance record for the pair, nil when absent.
func (r *Repository) GetRecord(ctx context.Context, studentID, sessionID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, session_id, status, entry_time, exit_time, first_marked, remarks
		FROM attendance_records
		WHERE student_id = $1 AND session_id = $2
	`, studentID, sessionID)
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Status,
		&rec.EntryTime, &rec.ExitTime, &rec.FirstMarked, &rec.Remarks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord creates the record for the pair. The UNIQUE (student_id,
// session_id) constraint arbitrates concurrent first scans: the loser gets
// inserted=false and the winner's row back.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_id, status, entry_time, exit_time, first_marked, remarks)
		VALUES ($1,$2,$3,$4,$5,NULL,$6,$7)
		ON CONFLICT (student_id, session_id) DO NOTHING
	`, rec.ID, rec.StudentID, rec.SessionID, rec.Status, rec.EntryTime, rec.FirstMarked, rec.Remarks)
	if err != nil {
		return Record{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := r.GetRecord(ctx, rec.StudentID, rec.SessionID)
		if err != nil {
			return Record{}, false, err
		}
		if existing == nil {
			return Record{}, false, errors.New("attendance record vanished after conflict")
		}
		return *existing, false, nil
	}
	return rec, true, nil
}

// SetExit stamps the exit time; the WHERE guard makes repeated exits
// no-ops even under concurrent scans.
func (r *Repository) SetExit(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET exit_time = $2
		WHERE id = $1 AND exit_time IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountEntriesToday counts the student's entries on a calendar date; used
// for the scan response summary.
func (r *Repository) CountEntriesToday(ctx context.Context, studentID string, date time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.student_id = $1 AND s.session_date = $2
	`, studentID, date).Scan(&n)
	return n, err
}
