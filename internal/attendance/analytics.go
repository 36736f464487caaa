package attendance

import (
	"sort"
	"time"
)

const (
	lateGrace = 5 * time.Minute

	// recentWindow is how many trailing sessions feed the trend split and
	// the next-session prediction heuristic.
	recentWindow = 6

	neutralPrediction = 0.5
	predictionBoost   = 1.1
	predictionFloor   = 0.1

	lowRateThreshold      = 0.5
	latenessFlagThreshold = 0.5
	trendDropThreshold    = 0.3
)

// Analyze computes the attendance aggregate for one user in one pod from the
// records inside the lookback window. Records may arrive in any order; they
// are sorted by scheduled start before scanning. Zero records never fail:
// a new user gets an explicit neutral result.
func Analyze(userID, podID string, records []Record, windowWeeks int) Analytics {
	a := Analytics{
		UserID:      userID,
		PodID:       podID,
		WindowWeeks: windowWeeks,
		Pattern:     PatternInconsistent,
		Engagement:  EngagementModerate,
		RiskFlags:   []RiskFlag{},
		ComputedAt:  time.Now().UTC(),
	}
	if len(records) == 0 {
		a.PredictionScore = neutralPrediction
		return a
	}

	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScheduledStart.Before(sorted[j].ScheduledStart)
	})

	attended := 0
	lateCount := 0
	var offsetSum float64
	offsetCount := 0
	var durationSum float64
	for _, rec := range sorted {
		if rec.Attended() {
			attended++
			durationSum += rec.MinutesPresent
		}
		if rec.WasLate() {
			lateCount++
		}
		if rec.JoinedAt != nil {
			offsetSum += rec.JoinedAt.Sub(rec.ScheduledStart).Minutes()
			offsetCount++
		}
	}

	a.SessionsScheduled = len(sorted)
	a.SessionsAttended = attended
	a.AttendanceRate = clamp01(float64(attended) / float64(len(sorted)))
	if offsetCount > 0 {
		a.AvgArrivalOffset = offsetSum / float64(offsetCount)
	}
	if attended > 0 {
		a.AvgDuration = durationSum / float64(attended)
	}

	a.CurrentStreak = currentStreak(sorted)
	a.LongestStreak = longestStreak(sorted)
	a.Pattern = PatternFor(a.AttendanceRate)
	a.Engagement = engagementFor(a.AttendanceRate, a.AvgArrivalOffset, a.AvgDuration)
	a.RiskFlags = riskFlags(sorted, a.AttendanceRate, lateCount)
	a.PredictionScore = predictNext(sorted)

	return a
}

// currentStreak is the run of non-absent sessions still standing at the most
// recent meeting, scanned backward from the end.
func currentStreak(sorted []Record) int {
	streak := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		if !sorted[i].Attended() {
			break
		}
		streak++
	}
	return streak
}

// longestStreak is the best run of non-absent sessions anywhere in the
// window, scanned chronologically. The scan direction deliberately differs
// from currentStreak.
func longestStreak(sorted []Record) int {
	longest, run := 0, 0
	for _, rec := range sorted {
		if rec.Attended() {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// PatternFor buckets an attendance rate. Boundaries are inclusive at the
// lower bound: exactly 0.95 is still a perfect attender.
func PatternFor(rate float64) Pattern {
	switch {
	case rate >= 0.95:
		return PatternPerfect
	case rate >= 0.80:
		return PatternRegular
	case rate >= 0.50:
		return PatternInconsistent
	case rate >= 0.20:
		return PatternFrequentMiss
	default:
		return PatternGhost
	}
}

// engagementFor applies the level rules in priority order; first match wins.
func engagementFor(rate, avgOffsetMin, avgDurationMin float64) EngagementLevel {
	switch {
	case rate >= 0.85 && avgOffsetMin <= 5 && avgDurationMin >= 45:
		return EngagementHigh
	case rate >= 0.65 && avgOffsetMin <= 10:
		return EngagementModerate
	case rate >= 0.35:
		return EngagementLow
	default:
		return EngagementCritical
	}
}

// riskFlags evaluates each flag independently; several may co-occur.
func riskFlags(sorted []Record, rate float64, lateCount int) []RiskFlag {
	flags := []RiskFlag{}

	if rate < lowRateThreshold {
		flags = append(flags, RiskLowAttendanceRate)
	}
	if decliningTrend(sorted) {
		flags = append(flags, RiskDecliningTrend)
	}
	if float64(lateCount)/float64(len(sorted)) > latenessFlagThreshold {
		flags = append(flags, RiskChronicLateness)
	}
	if !sorted[len(sorted)-1].Attended() {
		flags = append(flags, RiskRecentNoShow)
	}

	return flags
}

// decliningTrend splits the last six sessions into two consecutive halves of
// three and flags when the recent half drops more than 0.3 below the earlier.
func decliningTrend(sorted []Record) bool {
	if len(sorted) < recentWindow {
		return false
	}
	recent := sorted[len(sorted)-recentWindow:]
	earlier := attendRate(recent[:recentWindow/2])
	latest := attendRate(recent[recentWindow/2:])
	return latest < earlier-trendDropThreshold
}

// predictNext estimates next-session attendance likelihood from the last six
// sessions. This is a plain linear heuristic, not a trained model.
func predictNext(sorted []Record) float64 {
	if len(sorted) == 0 {
		return neutralPrediction
	}
	recent := sorted
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	score := attendRate(recent) * predictionBoost
	if score < predictionFloor {
		score = predictionFloor
	}
	if score > 1 {
		score = 1
	}
	return score
}

func attendRate(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	attended := 0
	for _, rec := range records {
		if rec.Attended() {
			attended++
		}
	}
	return float64(attended) / float64(len(records))
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
