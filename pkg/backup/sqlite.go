package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("backup: record not found")

// SQLiteStore archives records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	-- generated_at is Unix nanoseconds so ORDER BY follows time order.
	CREATE TABLE IF NOT EXISTS backups (
		id              TEXT PRIMARY KEY,
		generated_at    INTEGER NOT NULL,
		password_length INTEGER NOT NULL,
		frames_used     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_backups_generated ON backups(generated_at DESC);

	CREATE TABLE IF NOT EXISTS backup_frames (
		backup_id      TEXT NOT NULL REFERENCES backups(id) ON DELETE CASCADE,
		seq            INTEGER NOT NULL,
		flat           TEXT NOT NULL,
		used_camera    INTEGER NOT NULL,
		width          INTEGER NOT NULL,
		height         INTEGER NOT NULL,
		timestamp      REAL NOT NULL,
		grid_rows      INTEGER NOT NULL,
		grid_cols      INTEGER NOT NULL,
		avg_brightness REAL NOT NULL,
		PRIMARY KEY (backup_id, seq)
	);
	`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write implements Writer. The record and its frames are stored atomically.
func (s *SQLiteStore) Write(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO backups (id, generated_at, password_length, frames_used) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.GeneratedAt.UnixNano(), rec.PasswordLength, len(rec.Frames))
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}

	for i, f := range rec.Frames {
		flat, err := json.Marshal(f.Flat)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO backup_frames (backup_id, seq, flat, used_camera, width, height, timestamp, grid_rows, grid_cols, avg_brightness)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, string(flat), f.UsedCamera, f.Resolution[0], f.Resolution[1], f.Timestamp,
			f.GridShape[0], f.GridShape[1], f.AvgBrightness)
		if err != nil {
			return fmt.Errorf("insert frame %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Get loads a record with its frames in capture order.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var generated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, generated_at, password_length FROM backups WHERE id = ?`, id).
		Scan(&rec.ID, &generated, &rec.PasswordLength)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query backup: %w", err)
	}
	rec.GeneratedAt = time.Unix(0, generated).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT flat, used_camera, width, height, timestamp, grid_rows, grid_cols, avg_brightness
		 FROM backup_frames WHERE backup_id = ? ORDER BY seq`, id)
	if err != nil {
		return Record{}, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Frame
		var flat string
		if err := rows.Scan(&flat, &f.UsedCamera, &f.Resolution[0], &f.Resolution[1], &f.Timestamp,
			&f.GridShape[0], &f.GridShape[1], &f.AvgBrightness); err != nil {
			return Record{}, fmt.Errorf("scan frame: %w", err)
		}
		if err := json.Unmarshal([]byte(flat), &f.Flat); err != nil {
			return Record{}, fmt.Errorf("decode frame: %w", err)
		}
		rec.Frames = append(rec.Frames, f)
	}
	return rec, rows.Err()
}

// Summary is a row of List.
type Summary struct {
	ID             string    `json:"id"`
	GeneratedAt    time.Time `json:"generated_at"`
	PasswordLength int       `json:"password_length"`
	FramesUsed     int       `json:"frames_used"`
}

// List returns the newest records first. limit <= 0 means 50.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, password_length, frames_used FROM backups ORDER BY generated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var generated int64
		if err := rows.Scan(&sum.ID, &generated, &sum.PasswordLength, &sum.FramesUsed); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		sum.GeneratedAt = time.Unix(0, generated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
