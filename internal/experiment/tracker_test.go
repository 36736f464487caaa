package experiment

import (
	"fmt"
	"testing"
	"time"
)

type fakeStore struct {
	experiments map[string]*Experiment
}

func newFakeStore() *fakeStore {
	return &fakeStore{experiments: make(map[string]*Experiment)}
}

func (f *fakeStore) InsertExperiment(exp Experiment) error {
	if _, ok := f.experiments[exp.ID]; ok {
		return fmt.Errorf("duplicate experiment %s", exp.ID)
	}
	f.experiments[exp.ID] = &exp
	return nil
}

func (f *fakeStore) GetExperiment(id string) (*Experiment, error) {
	exp, ok := f.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment %s not found", id)
	}
	copied := *exp
	return &copied, nil
}

func (f *fakeStore) UpdateExperimentMetrics(id string, metrics map[string]float64) error {
	exp, ok := f.experiments[id]
	if !ok || exp.Status != StatusActive {
		return fmt.Errorf("active experiment %s not found", id)
	}
	exp.CurrentMetrics = metrics
	return nil
}

func (f *fakeStore) CompleteExperiment(id string, at time.Time) error {
	exp, ok := f.experiments[id]
	if !ok || exp.Status != StatusActive {
		return fmt.Errorf("active experiment %s not found", id)
	}
	exp.Status = StatusCompleted
	exp.CompletedAt = &at
	return nil
}

func (f *fakeStore) ExperimentCounts() (int, int, error) {
	var active, completed int
	for _, exp := range f.experiments {
		switch exp.Status {
		case StatusActive:
			active++
		case StatusCompleted:
			completed++
		}
	}
	return active, completed, nil
}

func TestApplyRecordsExperiment(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(store, 30)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	baseline := map[string]float64{"completion_rate": 0.4}
	id, err := tracker.Apply("user-1", "frequency_increase", []string{"daily_check_in"}, baseline)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if id == "" {
		t.Fatal("Apply returned empty id")
	}

	exp, err := tracker.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exp.Status != StatusActive {
		t.Errorf("status = %s, want %s", exp.Status, StatusActive)
	}
	if exp.UserID != "user-1" || exp.Type != "frequency_increase" {
		t.Errorf("experiment = %+v", exp)
	}
	if got := exp.BaselineMetrics["completion_rate"]; got != 0.4 {
		t.Errorf("baseline completion_rate = %v, want 0.4", got)
	}
	wantUntil := now.Add(30 * 24 * time.Hour)
	if !exp.MonitorUntil.Equal(wantUntil) {
		t.Errorf("monitor_until = %v, want %v", exp.MonitorUntil, wantUntil)
	}
	if exp.CompletedAt != nil {
		t.Errorf("completed_at = %v, want nil", exp.CompletedAt)
	}
	if len(exp.SuccessCriteria) == 0 {
		t.Error("success criteria should be populated by default")
	}
}

func TestApplyValidation(t *testing.T) {
	tracker := NewTracker(newFakeStore(), 30)
	if _, err := tracker.Apply("", "frequency_increase", nil, nil); err == nil {
		t.Error("expected error for empty user id")
	}
	if _, err := tracker.Apply("user-1", "", nil, nil); err == nil {
		t.Error("expected error for empty adaptation type")
	}
}

func TestApplyGeneratesUniqueIDs(t *testing.T) {
	tracker := NewTracker(newFakeStore(), 30)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := tracker.Apply("user-1", "content_style_change", nil, nil)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate experiment id %s", id)
		}
		seen[id] = true
	}
}

func TestUpdateMetricsOnlyWhileActive(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(store, 30)

	id, err := tracker.Apply("user-1", "timing_adjustment", nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := tracker.UpdateMetrics(id, map[string]float64{"completion_rate": 0.6}); err != nil {
		t.Fatalf("UpdateMetrics: %v", err)
	}
	exp, _ := tracker.Get(id)
	if got := exp.CurrentMetrics["completion_rate"]; got != 0.6 {
		t.Errorf("current completion_rate = %v, want 0.6", got)
	}

	if err := tracker.Complete(id); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := tracker.UpdateMetrics(id, map[string]float64{"completion_rate": 0.9}); err == nil {
		t.Error("expected error updating a completed experiment")
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(store, 30)

	id, err := tracker.Apply("user-1", "frequency_increase", nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := tracker.Complete(id); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	exp, _ := tracker.Get(id)
	if exp.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", exp.Status, StatusCompleted)
	}
	if exp.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if err := tracker.Complete(id); err == nil {
		t.Error("expected error completing an already-completed experiment")
	}
}

func TestStatusCounts(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(store, 30)

	var last string
	for i := 0; i < 3; i++ {
		id, err := tracker.Apply("user-1", "frequency_increase", nil, nil)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		last = id
	}
	if err := tracker.Complete(last); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	counts, err := tracker.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Active != 2 || counts.Completed != 1 {
		t.Errorf("counts = %+v, want active 2 completed 1", counts)
	}
}

func TestMonitorDaysDefault(t *testing.T) {
	tracker := NewTracker(newFakeStore(), 0)
	if tracker.monitorDays != 30 {
		t.Errorf("monitorDays = %d, want 30", tracker.monitorDays)
	}
}
