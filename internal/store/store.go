// Package store persists run attempts. SQLite keeps the queryable
// record (who ran which level, with what script hash, to what
// verdict); the bulky replay log lives in a compressed trace archive
// next to the database, referenced by path.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunRecord is one persisted run attempt.
type RunRecord struct {
	ID               string    `json:"id"`
	LevelID          int       `json:"level_id"`
	ScriptSHA256     string    `json:"script_sha256"`
	Verdict          string    `json:"verdict"`
	Reason           string    `json:"reason"`
	FailedConstraint string    `json:"failed_constraint,omitempty"`
	FaultLine        int       `json:"fault_line,omitempty"`
	FaultMessage     string    `json:"fault_message,omitempty"`
	Ticks            int       `json:"ticks"`
	StepsUsed        int       `json:"steps_used"`
	TracePath        string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store is the SQLite-backed run archive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and enables WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			level_id INTEGER NOT NULL,
			script_sha256 TEXT NOT NULL,
			verdict TEXT NOT NULL,
			reason TEXT NOT NULL,
			failed_constraint TEXT NOT NULL DEFAULT '',
			fault_line INTEGER NOT NULL DEFAULT 0,
			fault_message TEXT NOT NULL DEFAULT '',
			ticks INTEGER NOT NULL DEFAULT 0,
			steps_used INTEGER NOT NULL DEFAULT 0,
			trace_path TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_level ON runs(level_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS scripts (
			sha256 TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	return nil
}

// HashScript returns the canonical content address for a script.
func HashScript(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// SaveRun persists a run record and the script it ran. A missing ID
// gets a fresh uuid; the record's ID is set either way.
func (s *Store) SaveRun(rec *RunRecord, source string) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ScriptSHA256 == "" {
		rec.ScriptSHA256 = HashScript(source)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO scripts (sha256, source) VALUES (?, ?)`,
		rec.ScriptSHA256, source,
	); err != nil {
		return fmt.Errorf("store: save script: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO runs (
			id, level_id, script_sha256, verdict, reason,
			failed_constraint, fault_line, fault_message,
			ticks, steps_used, trace_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LevelID, rec.ScriptSHA256, rec.Verdict, rec.Reason,
		rec.FailedConstraint, rec.FaultLine, rec.FaultMessage,
		rec.Ticks, rec.StepsUsed, rec.TracePath,
	); err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}

	return tx.Commit()
}

// UpdateTracePath records where a run's trace archive landed.
func (s *Store) UpdateTracePath(id, path string) error {
	res, err := s.db.Exec(`UPDATE runs SET trace_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("store: update trace path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrNotFound reports a missing record.
var ErrNotFound = fmt.Errorf("store: not found")

// GetRun retrieves one run by id.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.QueryRow(
		`SELECT id, level_id, script_sha256, verdict, reason,
			failed_constraint, fault_line, fault_message,
			ticks, steps_used, trace_path, created_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.LevelID, &rec.ScriptSHA256, &rec.Verdict, &rec.Reason,
		&rec.FailedConstraint, &rec.FaultLine, &rec.FaultMessage,
		&rec.Ticks, &rec.StepsUsed, &rec.TracePath, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return &rec, nil
}

// ListRuns returns recent runs, newest first, optionally filtered by
// level.
func (s *Store) ListRuns(levelID, limit, offset int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, level_id, script_sha256, verdict, reason,
			failed_constraint, fault_line, fault_message,
			ticks, steps_used, trace_path, created_at
		FROM runs`
	args := []any{}
	if levelID > 0 {
		query += ` WHERE level_id = ?`
		args = append(args, levelID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.LevelID, &rec.ScriptSHA256, &rec.Verdict, &rec.Reason,
			&rec.FailedConstraint, &rec.FaultLine, &rec.FaultMessage,
			&rec.Ticks, &rec.StepsUsed, &rec.TracePath, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetScript returns the stored source for a content hash.
func (s *Store) GetScript(sha string) (string, error) {
	var src string
	err := s.db.QueryRow(`SELECT source FROM scripts WHERE sha256 = ?`, sha).Scan(&src)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get script: %w", err)
	}
	return src, nil
}
