package insight

import (
	"fmt"
	"sort"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/attendance"
	"github.com/theprogressmethod/telbot-sub003/internal/rules"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank orders priorities for presentation; lower sorts first.
func priorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Insight is a write-once, human-readable observation derived from a user
// profile or pod analytics. ImpactPrediction values are illustrative
// heuristic percentages, not measured outcomes.
type Insight struct {
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Priority         Priority           `json:"priority"`
	Confidence       float64            `json:"confidence_score"`
	UserID           string             `json:"user_id,omitempty"`
	PodID            string             `json:"pod_id,omitempty"`
	SuggestedActions []string           `json:"suggested_actions,omitempty"`
	ImpactPrediction map[string]float64 `json:"impact_prediction,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Sort orders insights for presentation: priority rank first, then
// confidence descending. The sort is stable.
func Sort(insights []Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		ri, rj := priorityRank(insights[i].Priority), priorityRank(insights[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return insights[i].Confidence > insights[j].Confidence
	})
}

// ForUser generates per-user insights from attendance analytics and the
// rules that fired for the profile. Each trigger is evaluated independently.
func ForUser(a attendance.Analytics, fired []rules.Rule, profileConfidence float64) []Insight {
	now := time.Now().UTC()
	insights := make([]Insight, 0)

	if a.Pattern == attendance.PatternPerfect {
		insights = append(insights, Insight{
			Title: "Perfect Attendance",
			Description: fmt.Sprintf("Attended %d of %d sessions in the last %d weeks with a %d-session streak.",
				a.SessionsAttended, a.SessionsScheduled, a.WindowWeeks, a.CurrentStreak),
			Priority:         PriorityMedium,
			Confidence:       0.9,
			UserID:           a.UserID,
			PodID:            a.PodID,
			SuggestedActions: []string{"send_recognition", "invite_to_mentor"},
			ImpactPrediction: map[string]float64{"retention_lift_pct": 10},
			CreatedAt:        now,
		})
	}

	if a.Engagement == attendance.EngagementCritical {
		insights = append(insights, Insight{
			Title: "Critical Engagement Alert",
			Description: fmt.Sprintf("Attendance rate %.0f%% with engagement at critical level; next-session likelihood %.0f%%.",
				a.AttendanceRate*100, a.PredictionScore*100),
			Priority:         PriorityCritical,
			Confidence:       0.85,
			UserID:           a.UserID,
			PodID:            a.PodID,
			SuggestedActions: []string{"personal_outreach", "offer_schedule_change"},
			ImpactPrediction: map[string]float64{"dropout_risk_reduction_pct": 25},
			CreatedAt:        now,
		})
	}

	for _, flag := range a.RiskFlags {
		if flag != attendance.RiskDecliningTrend {
			continue
		}
		insights = append(insights, Insight{
			Title: "Declining Attendance Pattern",
			Description: fmt.Sprintf("Recent sessions show a drop against the prior stretch; current streak is %d.",
				a.CurrentStreak),
			Priority:         PriorityHigh,
			Confidence:       0.75,
			UserID:           a.UserID,
			PodID:            a.PodID,
			SuggestedActions: []string{"checkin_message", "ask_about_blockers"},
			ImpactPrediction: map[string]float64{"reengagement_pct": 20},
			CreatedAt:        now,
		})
	}

	for _, rule := range fired {
		insights = append(insights, Insight{
			Title: rule.Name,
			Description: fmt.Sprintf("Profile matches %q; suggested adaptations: %v.",
				rule.Name, rule.Adaptations),
			Priority:         PriorityMedium,
			Confidence:       profileConfidence,
			UserID:           a.UserID,
			PodID:            a.PodID,
			SuggestedActions: rule.Adaptations,
			ImpactPrediction: map[string]float64{"engagement_lift_pct": 15},
			CreatedAt:        now,
		})
	}

	Sort(insights)
	return insights
}

const (
	podRateFloor      = 0.65
	atRiskFractionCap = 0.30
)

// ForPod generates pod-level insights from a pod summary.
func ForPod(s attendance.PodSummary) []Insight {
	now := time.Now().UTC()
	insights := make([]Insight, 0)

	if s.MemberCount > 0 && s.AvgAttendanceRate < podRateFloor {
		insights = append(insights, Insight{
			Title: "Pod Attendance Below Optimal",
			Description: fmt.Sprintf("Average attendance is %.0f%% over the last %d weeks, below the %.0f%% target.",
				s.AvgAttendanceRate*100, s.WindowWeeks, podRateFloor*100),
			Priority:         PriorityHigh,
			Confidence:       0.8,
			PodID:            s.PodID,
			SuggestedActions: []string{"review_meeting_time", "pod_energy_checkin"},
			ImpactPrediction: map[string]float64{"attendance_lift_pct": 12},
			CreatedAt:        now,
		})
	}

	if s.AtRiskFraction() > atRiskFractionCap {
		insights = append(insights, Insight{
			Title: "High At-Risk Member Count",
			Description: fmt.Sprintf("%d of %d members are at risk of missing upcoming sessions.",
				len(s.AtRiskMembers), s.MemberCount),
			Priority:         PriorityCritical,
			Confidence:       0.85,
			PodID:            s.PodID,
			SuggestedActions: []string{"facilitator_escalation", "individual_outreach"},
			ImpactPrediction: map[string]float64{"dropout_risk_reduction_pct": 30},
			CreatedAt:        now,
		})
	}

	Sort(insights)
	return insights
}
