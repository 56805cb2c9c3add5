package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the Postgres student store, plus the kiosk device and
// refresh-token bookkeeping used by device registration.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentCols = `id, full_name, email, fingerprint_id, passkey, active, created_at`

func (r *Repository) scanStudent(row *sql.Row) (*Student, error) {
	var st Student
	err := row.Scan(&st.ID, &st.FullName, &st.Email, &st.FingerprintID,
		&st.Passkey, &st.Active, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// ByID returns the student, nil when absent.
func (r *Repository) ByID(ctx context.Context, id string) (*Student, error) {
	return r.scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE id = $1`, id))
}

// ByFingerprint resolves a fingerprint device identifier.
func (r *Repository) ByFingerprint(ctx context.Context, fingerprintID string) (*Student, error) {
	return r.scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE fingerprint_id = $1`, fingerprintID))
}

// ByPasskey resolves a 6-digit kiosk passkey.
func (r *Repository) ByPasskey(ctx context.Context, passkey int) (*Student, error) {
	return r.scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE passkey = $1`, passkey))
}

// PasskeyTaken checks passkey uniqueness across all students.
func (r *Repository) PasskeyTaken(ctx context.Context, passkey int) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE passkey = $1`, passkey).Scan(&n)
	return n > 0, err
}

// SetPasskey assigns a passkey to the student.
func (r *Repository) SetPasskey(ctx context.Context, studentID string, passkey int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET passkey = $2 WHERE id = $1`, studentID, passkey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownIdentity
	}
	return nil
}

// UpsertDevice ensures a kiosk device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, device_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, deviceID, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
