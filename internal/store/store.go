package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed storage collaborator: commitments, attendance
// records, pod membership, and adaptation experiments.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS commitments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			pod_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			commitment TEXT NOT NULL,
			smart_analysis TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commitments_user ON commitments(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			pod_id TEXT NOT NULL,
			status TEXT NOT NULL,
			scheduled_start TEXT NOT NULL,
			scheduled_end TEXT NOT NULL,
			joined_at TEXT,
			left_at TEXT,
			minutes_present REAL NOT NULL DEFAULT 0,
			finalized INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_user ON attendance(user_id, pod_id, scheduled_start)`,
		`CREATE TABLE IF NOT EXISTS pod_members (
			user_id TEXT NOT NULL,
			pod_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, pod_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pod_members_pod ON pod_members(pod_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			adaptation_type TEXT NOT NULL,
			adaptations TEXT NOT NULL DEFAULT '[]',
			baseline_metrics TEXT NOT NULL DEFAULT '{}',
			current_metrics TEXT NOT NULL DEFAULT '{}',
			success_criteria TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'active',
			started_at TEXT NOT NULL,
			monitor_until TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_experiments_user ON experiments(user_id, status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// Stats is a compact snapshot used by status reporting.
type Stats struct {
	Commitments          int
	AttendanceRecords    int
	ActiveMembers        int
	ActiveExperiments    int
	CompletedExperiments int
}

func (s *Store) Stats() (Stats, error) {
	var stats Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM commitments`, &stats.Commitments},
		{`SELECT COUNT(*) FROM attendance`, &stats.AttendanceRecords},
		{`SELECT COUNT(*) FROM pod_members WHERE is_active = 1`, &stats.ActiveMembers},
		{`SELECT COUNT(*) FROM experiments WHERE status = 'active'`, &stats.ActiveExperiments},
		{`SELECT COUNT(*) FROM experiments WHERE status = 'completed'`, &stats.CompletedExperiments},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("stats query: %w", err)
		}
	}
	return stats, nil
}
