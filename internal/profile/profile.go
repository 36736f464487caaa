package profile

import (
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/attendance"
	"github.com/theprogressmethod/telbot-sub003/internal/behavior"
	"github.com/theprogressmethod/telbot-sub003/internal/persona"
)

// Adaptation is one applied-adaptation entry in a profile's history.
type Adaptation struct {
	ExperimentID string    `json:"experiment_id"`
	Type         string    `json:"adaptation_type"`
	AppliedAt    time.Time `json:"applied_at"`
}

// Profile is the personalization unit of work: one persona, scalar feature
// dictionaries, a trust score, and the append-only adaptation log. Profiles
// are recomputed whole on each analysis pass, never incrementally patched.
type Profile struct {
	UserID            string             `json:"user_id"`
	PodID             string             `json:"pod_id"`
	Persona           persona.Persona    `json:"persona"`
	BehaviorPatterns  map[string]float64 `json:"behavior_patterns"`
	EngagementMetrics map[string]float64 `json:"engagement_metrics"`
	LearningStyle     map[string]float64 `json:"learning_style"`
	Confidence        float64            `json:"confidence_score"`
	AdaptationHistory []Adaptation       `json:"adaptation_history"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// confidence combines commitment-count sufficiency, attendance data volume,
// and behavioral consistency into one trust score. A brand-new user with no
// data lands exactly on the neutral 0.5 band.
func confidence(snapshot behavior.Snapshot, analytics attendance.Analytics) float64 {
	commitmentDepth := float64(snapshot.CommitmentCount) / 10
	if commitmentDepth > 1 {
		commitmentDepth = 1
	}
	attendanceDepth := float64(analytics.SessionsScheduled) / 12
	if attendanceDepth > 1 {
		attendanceDepth = 1
	}
	// consistency defaults to 0.5, so its centered term vanishes for new users
	score := 0.5 + 0.25*commitmentDepth + 0.15*attendanceDepth + 0.2*(snapshot.ConsistencyScore-0.5)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func engagementMetrics(a attendance.Analytics) map[string]float64 {
	streak := float64(a.CurrentStreak) / 10
	if streak > 1 {
		streak = 1
	}
	return map[string]float64{
		"attendance_rate":  a.AttendanceRate,
		"prediction_score": a.PredictionScore,
		"streak_strength":  streak,
	}
}

func learningStyle(s behavior.Snapshot) map[string]float64 {
	return map[string]float64{
		"structure_preference":   s.ConsistencyScore,
		"social_preference":      s.PodParticipation,
		"exploration_preference": s.MethodVariety,
	}
}
