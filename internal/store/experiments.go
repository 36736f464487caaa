package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/experiment"
)

func (s *Store) InsertExperiment(exp experiment.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	adaptations, err := json.Marshal(exp.Adaptations)
	if err != nil {
		return fmt.Errorf("marshal adaptations: %w", err)
	}
	baseline, err := json.Marshal(exp.BaselineMetrics)
	if err != nil {
		return fmt.Errorf("marshal baseline metrics: %w", err)
	}
	current, err := json.Marshal(exp.CurrentMetrics)
	if err != nil {
		return fmt.Errorf("marshal current metrics: %w", err)
	}
	criteria, err := json.Marshal(exp.SuccessCriteria)
	if err != nil {
		return fmt.Errorf("marshal success criteria: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO experiments (id, user_id, adaptation_type, adaptations, baseline_metrics,
			current_metrics, success_criteria, status, started_at, monitor_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exp.ID, exp.UserID, exp.Type, string(adaptations), string(baseline),
		string(current), string(criteria), string(exp.Status),
		formatTime(exp.StartedAt), formatTime(exp.MonitorUntil))
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

func (s *Store) GetExperiment(id string) (*experiment.Experiment, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, adaptation_type, adaptations, baseline_metrics,
			current_metrics, success_criteria, status, started_at, monitor_until, completed_at
		FROM experiments WHERE id = ?
	`, id)

	var exp experiment.Experiment
	var adaptations, baseline, current, criteria, status, started, until string
	var completed sql.NullString
	err := row.Scan(&exp.ID, &exp.UserID, &exp.Type, &adaptations, &baseline,
		&current, &criteria, &status, &started, &until, &completed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("experiment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(adaptations), &exp.Adaptations); err != nil {
		return nil, fmt.Errorf("parse adaptations: %w", err)
	}
	if err := json.Unmarshal([]byte(baseline), &exp.BaselineMetrics); err != nil {
		return nil, fmt.Errorf("parse baseline metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(current), &exp.CurrentMetrics); err != nil {
		return nil, fmt.Errorf("parse current metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &exp.SuccessCriteria); err != nil {
		return nil, fmt.Errorf("parse success criteria: %w", err)
	}
	exp.Status = experiment.Status(status)
	if exp.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if exp.MonitorUntil, err = parseTime(until); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		exp.CompletedAt = &t
	}
	return &exp, nil
}

func (s *Store) UpdateExperimentMetrics(id string, metrics map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE experiments SET current_metrics = ? WHERE id = ? AND status = 'active'
	`, string(data), id)
	if err != nil {
		return fmt.Errorf("update experiment metrics: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update experiment metrics result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("active experiment %s not found", id)
	}
	return nil
}

func (s *Store) CompleteExperiment(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE experiments SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'active'
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("complete experiment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete experiment result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("active experiment %s not found", id)
	}
	return nil
}

func (s *Store) ExperimentCounts() (active, completed int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM experiments WHERE status = 'active'`).Scan(&active); err != nil {
		return 0, 0, fmt.Errorf("count active experiments: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM experiments WHERE status = 'completed'`).Scan(&completed); err != nil {
		return 0, 0, fmt.Errorf("count completed experiments: %w", err)
	}
	return active, completed, nil
}
