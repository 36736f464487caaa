package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/attendance"
)

// RecordAttendance inserts or updates one (session, user) attendance row.
// Rows become immutable once the session is finalized.
func (s *Store) RecordAttendance(rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finalized int
	err := s.db.QueryRow(`
		SELECT finalized FROM attendance WHERE session_id = ? AND user_id = ?
	`, rec.SessionID, rec.UserID).Scan(&finalized)
	switch {
	case err == sql.ErrNoRows:
		// new row
	case err != nil:
		return fmt.Errorf("check attendance row: %w", err)
	case finalized == 1:
		return fmt.Errorf("session %s is finalized; attendance for %s is immutable", rec.SessionID, rec.UserID)
	}

	_, err = s.db.Exec(`
		INSERT INTO attendance (session_id, user_id, pod_id, status, scheduled_start, scheduled_end,
			joined_at, left_at, minutes_present)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, user_id) DO UPDATE SET
			status = excluded.status,
			joined_at = excluded.joined_at,
			left_at = excluded.left_at,
			minutes_present = excluded.minutes_present
	`, rec.SessionID, rec.UserID, rec.PodID, string(rec.Status),
		formatTime(rec.ScheduledStart), formatTime(rec.ScheduledEnd),
		nullableTime(rec.JoinedAt), nullableTime(rec.LeftAt), rec.MinutesPresent)
	if err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	return nil
}

// FinalizeSession freezes all attendance rows for a session.
func (s *Store) FinalizeSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE attendance SET finalized = 1 WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	return nil
}

// AttendanceForUser returns a user's records in one pod since the given
// time, oldest first.
func (s *Store) AttendanceForUser(userID, podID string, since time.Time) ([]attendance.Record, error) {
	rows, err := s.db.Query(`
		SELECT session_id, user_id, pod_id, status, scheduled_start, scheduled_end,
			joined_at, left_at, minutes_present
		FROM attendance
		WHERE user_id = ? AND pod_id = ? AND scheduled_start >= ?
		ORDER BY scheduled_start ASC
	`, userID, podID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()
	return scanAttendance(rows)
}

func scanAttendance(rows *sql.Rows) ([]attendance.Record, error) {
	result := make([]attendance.Record, 0)
	for rows.Next() {
		var rec attendance.Record
		var status, start, end string
		var joined, left sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.PodID, &status, &start, &end,
			&joined, &left, &rec.MinutesPresent); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.Status = attendance.Status(status)

		var err error
		if rec.ScheduledStart, err = parseTime(start); err != nil {
			return nil, err
		}
		if rec.ScheduledEnd, err = parseTime(end); err != nil {
			return nil, err
		}
		if joined.Valid {
			t, err := parseTime(joined.String)
			if err != nil {
				return nil, err
			}
			rec.JoinedAt = &t
		}
		if left.Valid {
			t, err := parseTime(left.String)
			if err != nil {
				return nil, err
			}
			rec.LeftAt = &t
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return result, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// UpsertMembership records pod membership for a user.
func (s *Store) UpsertMembership(userID, podID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pod_members (user_id, pod_id, is_active)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, pod_id) DO UPDATE SET is_active = excluded.is_active
	`, userID, podID, boolToInt(active))
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *Store) IsActiveMember(userID, podID string) (bool, error) {
	var active int
	err := s.db.QueryRow(`
		SELECT is_active FROM pod_members WHERE user_id = ? AND pod_id = ?
	`, userID, podID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return active == 1, nil
}

func (s *Store) ActivePodMembers(podID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT user_id FROM pod_members WHERE pod_id = ? AND is_active = 1 ORDER BY user_id
	`, podID)
	if err != nil {
		return nil, fmt.Errorf("query pod members: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan pod member: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pod members: %w", err)
	}
	return users, nil
}

// Pods lists every pod that has at least one active member.
func (s *Store) Pods() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT pod_id FROM pod_members WHERE is_active = 1 ORDER BY pod_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query pods: %w", err)
	}
	defer rows.Close()

	pods := make([]string, 0)
	for rows.Next() {
		var podID string
		if err := rows.Scan(&podID); err != nil {
			return nil, fmt.Errorf("scan pod: %w", err)
		}
		pods = append(pods, podID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pods: %w", err)
	}
	return pods, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
