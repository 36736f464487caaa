package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/theprogressmethod/telbot-sub003/internal/behavior"
)

func (s *Store) AddCommitment(c behavior.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("commitment id is required")
	}
	status := c.Status
	if status == "" {
		status = "active"
	}

	_, err := s.db.Exec(`
		INSERT INTO commitments (id, user_id, pod_id, status, commitment, smart_analysis, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, "", status, strings.TrimSpace(c.Text), c.SmartAnalysis, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert commitment: %w", err)
	}
	return nil
}

func (s *Store) CompleteCommitment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE commitments SET status = 'completed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete commitment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete commitment result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("commitment %s not found", id)
	}
	return nil
}

func (s *Store) CommitmentsForUser(userID string) ([]behavior.Commitment, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, status, commitment, smart_analysis, created_at
		FROM commitments
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query commitments: %w", err)
	}
	defer rows.Close()
	return scanCommitments(rows)
}

func scanCommitments(rows *sql.Rows) ([]behavior.Commitment, error) {
	result := make([]behavior.Commitment, 0)
	for rows.Next() {
		var c behavior.Commitment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Status, &c.Text, &c.SmartAnalysis, &createdAt); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = t
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commitments: %w", err)
	}
	return result, nil
}
