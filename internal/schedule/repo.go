package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionCols = `id, module_id, batch_id, lecturer_id, center_id, room,
	session_date, start_min, end_min, status, delivery, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ModuleID, &s.BatchID, &s.LecturerID, &s.CenterID,
		&s.Room, &s.Date, &s.StartMin, &s.EndMin, &s.Status, &s.Delivery,
		&s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListOnDate returns non-cancelled sessions on a calendar date, ordered by
// start time then id so the conflict list and matcher tie-break are stable.
func (r *Repository) ListOnDate(ctx context.Context, date time.Time, excludeID string) ([]Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions
		WHERE session_date = $1 AND status <> 'CANCELLED'`
	args := []any{date}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_min, id`
	return r.querySessions(ctx, query, args...)
}

// Get returns one session, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Insert writes a new session inside a transaction that holds advisory
// locks on the lecturer/day and room/day keys, then re-checks for
// overlaps. This closes the race between the service's read-only conflict
// check and the write.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	if err := lockAndRecheck(ctx, tx, s, ""); err != nil {
		return Session{}, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO sessions (id, module_id, batch_id, lecturer_id, center_id, room,
			session_date, start_min, end_min, status, delivery)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`, s.ID, s.ModuleID, s.BatchID, s.LecturerID, s.CenterID, s.Room,
		s.Date, s.StartMin, s.EndMin, s.Status, s.Delivery)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	return s, tx.Commit()
}

// Update rewrites a session's schedulable fields under the same advisory
// locking discipline as Insert.
func (r *Repository) Update(ctx context.Context, s Session) (Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	if err := lockAndRecheck(ctx, tx, s, s.ID); err != nil {
		return Session{}, err
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE sessions SET module_id=$2, batch_id=$3, lecturer_id=$4, center_id=$5,
			room=$6, session_date=$7, start_min=$8, end_min=$9, delivery=$10,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at
	`, s.ID, s.ModuleID, s.BatchID, s.LecturerID, s.CenterID, s.Room,
		s.Date, s.StartMin, s.EndMin, s.Delivery)
	if err := row.Scan(&s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, tx.Commit()
}

func lockAndRecheck(ctx context.Context, tx *sql.Tx, s Session, excludeID string) error {
	day := s.Date.Format("2006-01-02")
	for _, key := range []string{
		"lect:" + s.LecturerID + ":" + day,
		"room:" + s.CenterID + ":" + s.Room + ":" + day,
	} {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
	}
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE session_date = $1 AND status <> 'CANCELLED'
		  AND ($2 = '' OR id::text <> $2)
		  AND start_min < $4 AND $3 < end_min
		  AND (lecturer_id = $5 OR (room = $6 AND center_id = $7))
	`, s.Date, excludeID, s.StartMin, s.EndMin, s.LecturerID, s.Room, s.CenterID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		// Lost the race to a concurrent writer; the caller surfaces this
		// as a conflict rejection.
		return &ConflictError{Conflicts: []Conflict{{Kind: ConflictLecturer, SessionID: ""}}}
	}
	return nil
}

// SetStatus updates lifecycle status only.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// HasAttendance reports whether any attendance record references the session.
func (r *Repository) HasAttendance(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE session_id = $1`, id).Scan(&n)
	return n > 0, err
}

// List returns sessions with basic filters.
func (r *Repository) List(ctx context.Context, f Filter) ([]Session, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + sessionCols + ` FROM sessions`
	args := []any{}
	clauses := []string{}
	if f.Date != nil {
		clauses = append(clauses, "session_date = $"+itoa(len(args)+1))
		args = append(args, *f.Date)
	}
	if f.LecturerID != "" {
		clauses = append(clauses, "lecturer_id = $"+itoa(len(args)+1))
		args = append(args, f.LecturerID)
	}
	if f.BatchID != "" {
		clauses = append(clauses, "batch_id = $"+itoa(len(args)+1))
		args = append(args, f.BatchID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = $"+itoa(len(args)+1))
		args = append(args, f.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY session_date DESC, start_min LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)
	return r.querySessions(ctx, query, args...)
}

// CountByStatus aggregates sessions per lifecycle status over a date range.
func (r *Repository) CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM sessions
		WHERE session_date BETWEEN $1 AND $2
		GROUP BY status
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// AdvanceFinished promotes SCHEDULED sessions whose end instant is
// strictly before (today, nowMin) to COMPLETED in one statement.
func (r *Repository) AdvanceFinished(ctx context.Context, today time.Time, nowMin int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'COMPLETED', updated_at = NOW()
		WHERE status = 'SCHEDULED'
		  AND (session_date < $1 OR (session_date = $1 AND end_min < $2))
	`, today, nowMin)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
