package experiment

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Status of an adaptation experiment. The only transition is active →
// completed; judging success or failure against the criteria is an external
// process reading baseline vs current metrics.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Experiment records one applied-adaptation trial for later before/after
// evaluation.
type Experiment struct {
	ID              string             `json:"experiment_id"`
	UserID          string             `json:"user_id"`
	Type            string             `json:"adaptation_type"`
	Adaptations     []string           `json:"adaptations"`
	BaselineMetrics map[string]float64 `json:"baseline_metrics"`
	CurrentMetrics  map[string]float64 `json:"current_metrics"`
	SuccessCriteria map[string]float64 `json:"success_criteria"`
	Status          Status             `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	MonitorUntil    time.Time          `json:"monitor_until"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// Store is the persistence the tracker needs; satisfied by internal/store.
type Store interface {
	InsertExperiment(exp Experiment) error
	GetExperiment(id string) (*Experiment, error)
	UpdateExperimentMetrics(id string, metrics map[string]float64) error
	CompleteExperiment(id string, at time.Time) error
	ExperimentCounts() (active, completed int, err error)
}

// Tracker applies adaptation bundles and records them for measurement.
type Tracker struct {
	store       Store
	monitorDays int
	now         func() time.Time
}

func NewTracker(store Store, monitorDays int) *Tracker {
	if monitorDays <= 0 {
		monitorDays = 30
	}
	return &Tracker{store: store, monitorDays: monitorDays, now: time.Now}
}

// DefaultSuccessCriteria names the thresholds an external evaluator compares
// baseline vs current metrics against.
func DefaultSuccessCriteria() map[string]float64 {
	return map[string]float64{
		"completion_rate_delta":      0.10,
		"engagement_frequency_delta": 0.05,
		"attendance_rate_delta":      0.05,
	}
}

// Apply records that an adaptation bundle was applied to a user, capturing
// the baseline engagement metrics at apply time. Returns the experiment ID.
func (t *Tracker) Apply(userID, adaptationType string, adaptations []string, baseline map[string]float64) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if adaptationType == "" {
		return "", fmt.Errorf("adaptation type is required")
	}
	if baseline == nil {
		baseline = map[string]float64{}
	}

	now := t.now().UTC()
	exp := Experiment{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            adaptationType,
		Adaptations:     append([]string(nil), adaptations...),
		BaselineMetrics: baseline,
		CurrentMetrics:  map[string]float64{},
		SuccessCriteria: DefaultSuccessCriteria(),
		Status:          StatusActive,
		StartedAt:       now,
		MonitorUntil:    now.Add(time.Duration(t.monitorDays) * 24 * time.Hour),
	}
	if err := t.store.InsertExperiment(exp); err != nil {
		return "", fmt.Errorf("apply adaptation: %w", err)
	}
	log.Printf("[experiment] applied %s to %s (%s)", adaptationType, userID, exp.ID)
	return exp.ID, nil
}

// Get returns one experiment by ID.
func (t *Tracker) Get(id string) (*Experiment, error) {
	return t.store.GetExperiment(id)
}

// UpdateMetrics refreshes the current engagement metrics of an active
// experiment for later comparison against its baseline.
func (t *Tracker) UpdateMetrics(id string, metrics map[string]float64) error {
	if metrics == nil {
		metrics = map[string]float64{}
	}
	return t.store.UpdateExperimentMetrics(id, metrics)
}

// Complete transitions an experiment to completed. This is the only modeled
// transition; there is deliberately no failed or rolled-back state.
func (t *Tracker) Complete(id string) error {
	return t.store.CompleteExperiment(id, t.now().UTC())
}

// Counts is the system-wide experiment status summary.
type Counts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

func (t *Tracker) Status() (Counts, error) {
	active, completed, err := t.store.ExperimentCounts()
	if err != nil {
		return Counts{}, err
	}
	return Counts{Active: active, Completed: completed}, nil
}
