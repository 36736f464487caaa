package attendance

import "time"

// PodSummary aggregates member analytics over the pod lookback window
// (default 4 weeks, shorter than the 12-week user window).
type PodSummary struct {
	PodID             string    `json:"pod_id"`
	MemberCount       int       `json:"member_count"`
	AvgAttendanceRate float64   `json:"avg_attendance_rate"`
	AtRiskMembers     []string  `json:"at_risk_members"`
	WindowWeeks       int       `json:"window_weeks"`
	ComputedAt        time.Time `json:"computed_at"`
}

// AtRiskFraction is the share of members currently flagged at risk.
func (s PodSummary) AtRiskFraction() float64 {
	if s.MemberCount == 0 {
		return 0
	}
	return float64(len(s.AtRiskMembers)) / float64(s.MemberCount)
}

// SummarizePod rolls per-member analytics into a pod aggregate. A member is
// at risk when the attendance prediction falls below the threshold or
// engagement has gone critical.
func SummarizePod(podID string, members []Analytics, windowWeeks int, atRiskThreshold float64) PodSummary {
	s := PodSummary{
		PodID:         podID,
		MemberCount:   len(members),
		AtRiskMembers: []string{},
		WindowWeeks:   windowWeeks,
		ComputedAt:    time.Now().UTC(),
	}
	if len(members) == 0 {
		return s
	}

	var rateSum float64
	for _, m := range members {
		rateSum += m.AttendanceRate
		if m.PredictionScore < atRiskThreshold || m.Engagement == EngagementCritical {
			s.AtRiskMembers = append(s.AtRiskMembers, m.UserID)
		}
	}
	s.AvgAttendanceRate = rateSum / float64(len(members))
	return s
}
