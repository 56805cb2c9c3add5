package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and bootstraps the
// schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id             UUID PRIMARY KEY,
		full_name      TEXT NOT NULL,
		email          TEXT UNIQUE NOT NULL,
		fingerprint_id TEXT UNIQUE,
		passkey        INT UNIQUE,
		active         BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id         UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id),
		batch_id   TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id           UUID PRIMARY KEY,
		module_id    TEXT NOT NULL,
		batch_id     TEXT NOT NULL,
		lecturer_id  TEXT NOT NULL,
		center_id    TEXT NOT NULL,
		room         TEXT NOT NULL,
		session_date DATE NOT NULL,
		start_min    INT NOT NULL,
		end_min      INT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'SCHEDULED'
			CHECK (status IN ('SCHEDULED','COMPLETED','CANCELLED')),
		delivery     TEXT NOT NULL DEFAULT 'physical',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (start_min < end_min)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_date   ON sessions(session_date);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id           UUID PRIMARY KEY,
		student_id   UUID NOT NULL REFERENCES students(id),
		session_id   UUID NOT NULL REFERENCES sessions(id),
		status       TEXT NOT NULL,
		entry_time   TIMESTAMPTZ NOT NULL,
		exit_time    TIMESTAMPTZ,
		first_marked TIMESTAMPTZ NOT NULL,
		remarks      TEXT NOT NULL DEFAULT '',
		UNIQUE (student_id, session_id)
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
