package attendance

import "time"

// Status of a single (session, user) attendance record.
type Status string

const (
	StatusPresent        Status = "present"
	StatusAbsent         Status = "absent"
	StatusLate           Status = "late"
	StatusEarlyDeparture Status = "early_departure"
	StatusPartial        Status = "partial"
)

// Pattern buckets an attendance rate. Thresholds are inclusive lower bounds,
// non-overlapping, ordered.
type Pattern string

const (
	PatternPerfect       Pattern = "perfect_attender"  // >= 0.95
	PatternRegular       Pattern = "regular_attender"  // >= 0.80
	PatternInconsistent  Pattern = "inconsistent"      // >= 0.50
	PatternFrequentMiss  Pattern = "frequent_misser"   // >= 0.20
	PatternGhost         Pattern = "ghost_member"      // < 0.20
)

type EngagementLevel string

const (
	EngagementHigh     EngagementLevel = "high"
	EngagementModerate EngagementLevel = "moderate"
	EngagementLow      EngagementLevel = "low"
	EngagementCritical EngagementLevel = "critical"
)

type RiskFlag string

const (
	RiskLowAttendanceRate RiskFlag = "low_attendance_rate"
	RiskDecliningTrend    RiskFlag = "declining_trend"
	RiskChronicLateness   RiskFlag = "chronic_lateness"
	RiskRecentNoShow      RiskFlag = "recent_no_show"
)

// Record is one (session, user) attendance row. JoinedAt/LeftAt are nil when
// the user was absent; MinutesPresent is 0 in that case.
type Record struct {
	SessionID      string     `json:"session_id"`
	UserID         string     `json:"user_id"`
	PodID          string     `json:"pod_id"`
	Status         Status     `json:"status"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	JoinedAt       *time.Time `json:"joined_at,omitempty"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	MinutesPresent float64    `json:"minutes_present"`
}

// Attended reports whether the record counts toward streaks. Anything other
// than a flat absence counts.
func (r Record) Attended() bool {
	return r.Status != StatusAbsent
}

// WasLate reports joining more than five minutes after the scheduled start.
func (r Record) WasLate() bool {
	if r.JoinedAt == nil {
		return false
	}
	return r.JoinedAt.After(r.ScheduledStart.Add(lateGrace))
}

// LeftEarly reports leaving more than five minutes before the scheduled end.
func (r Record) LeftEarly() bool {
	if r.LeftAt == nil {
		return false
	}
	return r.LeftAt.Before(r.ScheduledEnd.Add(-lateGrace))
}

// Analytics is the derived aggregate for one (user, pod) over a rolling window.
type Analytics struct {
	UserID            string          `json:"user_id"`
	PodID             string          `json:"pod_id"`
	SessionsScheduled int             `json:"sessions_scheduled"`
	SessionsAttended  int             `json:"sessions_attended"`
	AttendanceRate    float64         `json:"attendance_rate"`
	CurrentStreak     int             `json:"current_streak"`
	LongestStreak     int             `json:"longest_streak"`
	AvgArrivalOffset  float64         `json:"avg_arrival_offset_minutes"`
	AvgDuration       float64         `json:"avg_duration_minutes"`
	Pattern           Pattern         `json:"attendance_pattern"`
	Engagement        EngagementLevel `json:"engagement_level"`
	RiskFlags         []RiskFlag      `json:"risk_flags"`
	PredictionScore   float64         `json:"prediction_score"`
	WindowWeeks       int             `json:"window_weeks"`
	ComputedAt        time.Time       `json:"computed_at"`
}
