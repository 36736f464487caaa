package behavior

import (
	"sort"
	"strings"
	"time"
)

// Commitment is the storage-collaborator shape the extractor consumes.
type Commitment struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"` // "active" or "completed"
	Text          string    `json:"commitment"`
	SmartAnalysis string    `json:"smart_analysis,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (c Commitment) Completed() bool {
	return c.Status == "completed"
}

// Snapshot is the per-user behavior feature vector. Every scalar is clamped
// to [0,1]; missing data yields a defined neutral default (0.5 for unknown,
// 0.0 for no activity) instead of null propagation.
type Snapshot struct {
	UserID              string  `json:"user_id"`
	PodID               string  `json:"pod_id"`
	CompletionRate      float64 `json:"completion_rate"`
	ConsistencyScore    float64 `json:"consistency_score"`
	MethodVariety       float64 `json:"method_variety"`
	EngagementFrequency float64 `json:"engagement_frequency"`
	ProgressTrackingUse float64 `json:"progress_tracking_usage"`
	SmartAnalysisUse    float64 `json:"smart_analysis_usage"`
	PodParticipation    float64 `json:"pod_participation"`
	CommitmentCount     int     `json:"commitment_count"`
}

// Features returns the snapshot as a named scalar map, the form the persona
// classifier and rule engine consume.
func (s Snapshot) Features() map[string]float64 {
	return map[string]float64{
		"completion_rate":         s.CompletionRate,
		"consistency_score":       s.ConsistencyScore,
		"method_variety":          s.MethodVariety,
		"engagement_frequency":    s.EngagementFrequency,
		"progress_tracking_usage": s.ProgressTrackingUse,
		"smart_analysis_usage":    s.SmartAnalysisUse,
		"pod_participation":       s.PodParticipation,
	}
}

const (
	minForConsistency  = 3
	consistencyTail    = 10
	methodCategoryMax  = 5
	trackingVolumeFull = 10 // commitments at which tracking usage saturates
	frequencySpanDays  = 30
)

// Extract computes the behavior feature vector from a user's commitment
// history. activeMember reflects pod membership; pod participation starts
// from that and is refined by the caller when attendance analytics exist.
func Extract(userID, podID string, commitments []Commitment, activeMember bool) Snapshot {
	s := Snapshot{
		UserID:          userID,
		PodID:           podID,
		CommitmentCount: len(commitments),
	}

	sorted := append([]Commitment(nil), commitments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	s.CompletionRate = completionRate(sorted)
	s.ConsistencyScore = consistencyScore(sorted)
	s.MethodVariety = methodVariety(sorted)
	s.EngagementFrequency = engagementFrequency(sorted)
	s.ProgressTrackingUse = clamp01(float64(len(sorted)) / trackingVolumeFull)
	s.SmartAnalysisUse = smartAnalysisUsage(sorted)

	if activeMember {
		s.PodParticipation = 0.5 // neutral until attendance refines it
	}

	return s
}

// completionRate is completed/total; an empty history is 0, not NaN.
func completionRate(commitments []Commitment) float64 {
	if len(commitments) == 0 {
		return 0
	}
	completed := 0
	for _, c := range commitments {
		if c.Completed() {
			completed++
		}
	}
	return clamp01(float64(completed) / float64(len(commitments)))
}

// consistencyScore measures how stable the completion rate is over the last
// ten commitments: rate over growing prefixes (size 3..N), then
// 1 − variance, floored at 0. Fewer than three commitments is unknown (0.5).
func consistencyScore(sorted []Commitment) float64 {
	if len(sorted) < minForConsistency {
		return 0.5
	}

	tail := sorted
	if len(tail) > consistencyTail {
		tail = tail[len(tail)-consistencyTail:]
	}

	rates := make([]float64, 0, len(tail)-minForConsistency+1)
	for size := minForConsistency; size <= len(tail); size++ {
		rates = append(rates, completionRate(tail[:size]))
	}

	mean := 0.0
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))

	variance := 0.0
	for _, r := range rates {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rates))

	return clamp01(1 - variance)
}

// methodCategories maps keyword groups to commitment categories. The first
// matching category wins; unmatched text falls through to "general".
var methodCategories = []struct {
	name     string
	keywords []string
}{
	{"fitness", []string{"workout", "gym", "run", "exercise", "walk", "yoga", "stretch"}},
	{"learning", []string{"read", "study", "learn", "course", "book", "practice"}},
	{"professional", []string{"work", "email", "meeting", "client", "project", "resume"}},
	{"habit_building", []string{"daily", "every day", "morning", "routine", "habit", "streak"}},
}

func classifyMethod(text string) string {
	lower := strings.ToLower(text)
	for _, cat := range methodCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return "general"
}

// methodVariety is distinct categories over the five possible, capped at 1.
func methodVariety(commitments []Commitment) float64 {
	if len(commitments) == 0 {
		return 0
	}
	seen := map[string]struct{}{}
	for _, c := range commitments {
		seen[classifyMethod(c.Text)] = struct{}{}
	}
	return clamp01(float64(len(seen)) / methodCategoryMax)
}

// engagementFrequency maps the average gap between commitment creations onto
// [0,1]: same-day commitments score 1, a 30-day average gap scores 0. One or
// zero timestamps is unknown (0.5).
func engagementFrequency(sorted []Commitment) float64 {
	if len(sorted) < 2 {
		return 0.5
	}
	var gapSum float64
	for i := 1; i < len(sorted); i++ {
		gapSum += sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt).Hours() / 24
	}
	avgDays := gapSum / float64(len(sorted)-1)
	return clamp01(1 - avgDays/frequencySpanDays)
}

func smartAnalysisUsage(commitments []Commitment) float64 {
	if len(commitments) == 0 {
		return 0
	}
	used := 0
	for _, c := range commitments {
		if strings.TrimSpace(c.SmartAnalysis) != "" {
			used++
		}
	}
	return clamp01(float64(used) / float64(len(commitments)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
