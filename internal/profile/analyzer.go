package profile

import (
	"fmt"
	"log"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/attendance"
	"github.com/theprogressmethod/telbot-sub003/internal/behavior"
	"github.com/theprogressmethod/telbot-sub003/internal/insight"
	"github.com/theprogressmethod/telbot-sub003/internal/persona"
	"github.com/theprogressmethod/telbot-sub003/internal/rules"
)

// Storage is the data the analyzer reads; satisfied by internal/store.
type Storage interface {
	CommitmentsForUser(userID string) ([]behavior.Commitment, error)
	AttendanceForUser(userID, podID string, since time.Time) ([]attendance.Record, error)
	IsActiveMember(userID, podID string) (bool, error)
	ActivePodMembers(podID string) ([]string, error)
	Pods() ([]string, error)
}

// Options tune the analyzer; zero values fall back to defaults.
type Options struct {
	WindowWeeks     int
	PodWindowWeeks  int
	AtRiskThreshold float64
	Profiles        Cache
	Analytics       Cache
}

// Analyzer runs the per-user pipeline: extract features, derive attendance
// analytics, classify a persona, evaluate personalization rules, and emit
// insights. Each user's pipeline is a single linear sequence; callers may
// analyze many users concurrently.
type Analyzer struct {
	store           Storage
	ruleset         []rules.Rule
	windowWeeks     int
	podWindowWeeks  int
	atRiskThreshold float64
	profiles        Cache
	analytics       Cache
	now             func() time.Time
}

func NewAnalyzer(store Storage, ruleset []rules.Rule, opts Options) *Analyzer {
	if opts.WindowWeeks <= 0 {
		opts.WindowWeeks = 12
	}
	if opts.PodWindowWeeks <= 0 {
		opts.PodWindowWeeks = 4
	}
	if opts.AtRiskThreshold <= 0 {
		opts.AtRiskThreshold = 0.5
	}
	if opts.Profiles == nil {
		opts.Profiles = NewMemoryCache(0)
	}
	if opts.Analytics == nil {
		opts.Analytics = NewMemoryCache(15 * time.Minute)
	}
	return &Analyzer{
		store:           store,
		ruleset:         ruleset,
		windowWeeks:     opts.WindowWeeks,
		podWindowWeeks:  opts.PodWindowWeeks,
		atRiskThreshold: opts.AtRiskThreshold,
		profiles:        opts.Profiles,
		analytics:       opts.Analytics,
		now:             time.Now,
	}
}

// Result bundles one user's analysis outputs.
type Result struct {
	Profile    Profile              `json:"profile"`
	Analytics  attendance.Analytics `json:"analytics"`
	FiredRules []rules.Rule         `json:"fired_rules"`
	Insights   []insight.Insight    `json:"insights"`
}

// AnalyzeUser recomputes a user's profile from source data. A data-fetch
// failure is returned to the caller; batch callers log and skip the user.
func (a *Analyzer) AnalyzeUser(userID, podID string) (*Result, error) {
	commitments, err := a.store.CommitmentsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("fetch commitments for %s: %w", userID, err)
	}
	active, err := a.store.IsActiveMember(userID, podID)
	if err != nil {
		return nil, fmt.Errorf("fetch membership for %s: %w", userID, err)
	}

	analytics, err := a.userAnalytics(userID, podID, a.windowWeeks)
	if err != nil {
		return nil, err
	}

	snapshot := behavior.Extract(userID, podID, commitments, active)
	if active && analytics.SessionsScheduled > 0 {
		// observed attendance is a better participation signal than the
		// neutral membership default
		snapshot.PodParticipation = analytics.AttendanceRate
	}
	features := snapshot.Features()

	p := persona.Classify(features)
	conf := confidence(snapshot, analytics)

	fired := rules.Evaluate(rules.Subject{
		Persona:    p,
		Features:   features,
		Confidence: conf,
	}, a.ruleset)

	insights := insight.ForUser(analytics, fired, conf)
	insight.Sort(insights)

	profile := Profile{
		UserID:            userID,
		PodID:             podID,
		Persona:           p,
		BehaviorPatterns:  features,
		EngagementMetrics: engagementMetrics(analytics),
		LearningStyle:     learningStyle(snapshot),
		Confidence:        conf,
		AdaptationHistory: a.priorAdaptations(userID),
		UpdatedAt:         a.now().UTC(),
	}
	a.profiles.Set(userID, profile)

	return &Result{
		Profile:    profile,
		Analytics:  analytics,
		FiredRules: fired,
		Insights:   insights,
	}, nil
}

func (a *Analyzer) userAnalytics(userID, podID string, windowWeeks int) (attendance.Analytics, error) {
	key := fmt.Sprintf("%s:%s", userID, podID)
	if cached, ok := a.analytics.Get(key); ok {
		if analytics, ok := cached.(attendance.Analytics); ok {
			return analytics, nil
		}
	}

	since := a.now().UTC().AddDate(0, 0, -7*windowWeeks)
	records, err := a.store.AttendanceForUser(userID, podID, since)
	if err != nil {
		return attendance.Analytics{}, fmt.Errorf("fetch attendance for %s: %w", userID, err)
	}
	analytics := attendance.Analyze(userID, podID, records, windowWeeks)
	a.analytics.Set(key, analytics)
	return analytics, nil
}

// Profile returns the cached profile for a user, if one has been computed.
func (a *Analyzer) Profile(userID string) (Profile, bool) {
	cached, ok := a.profiles.Get(userID)
	if !ok {
		return Profile{}, false
	}
	profile, ok := cached.(Profile)
	return profile, ok
}

func (a *Analyzer) priorAdaptations(userID string) []Adaptation {
	prior, ok := a.Profile(userID)
	if !ok {
		return []Adaptation{}
	}
	return prior.AdaptationHistory
}

// RecordAdaptation appends an applied adaptation to the user's history. The
// log is append-only; nothing removes entries.
func (a *Analyzer) RecordAdaptation(userID, experimentID, adaptationType string) {
	profile, ok := a.Profile(userID)
	if !ok {
		log.Printf("[profile] no profile for %s; adaptation %s recorded on next analysis", userID, experimentID)
		return
	}
	profile.AdaptationHistory = append(profile.AdaptationHistory, Adaptation{
		ExperimentID: experimentID,
		Type:         adaptationType,
		AppliedAt:    a.now().UTC(),
	})
	a.profiles.Set(userID, profile)
}

// Invalidate drops a user's cached profile and analytics so the next
// analysis recomputes from source data.
func (a *Analyzer) Invalidate(userID, podID string) {
	a.profiles.Invalidate(userID)
	a.analytics.Invalidate(fmt.Sprintf("%s:%s", userID, podID))
}

// PodResult bundles one pod's analysis outputs.
type PodResult struct {
	Summary  attendance.PodSummary `json:"summary"`
	Insights []insight.Insight     `json:"insights"`
	Members  []*Result             `json:"members"`
}

// AnalyzePod analyzes every active member of a pod. A member whose data
// cannot be fetched is logged and skipped; the batch never aborts.
func (a *Analyzer) AnalyzePod(podID string) (*PodResult, error) {
	members, err := a.store.ActivePodMembers(podID)
	if err != nil {
		return nil, fmt.Errorf("fetch members of %s: %w", podID, err)
	}

	results := make([]*Result, 0, len(members))
	memberAnalytics := make([]attendance.Analytics, 0, len(members))
	for _, userID := range members {
		result, err := a.AnalyzeUser(userID, podID)
		if err != nil {
			log.Printf("[profile] skipping %s in pod %s: %v", userID, podID, err)
			continue
		}
		results = append(results, result)

		// pod summaries use the shorter window
		analytics, err := attendanceForSummary(a, userID, podID)
		if err != nil {
			log.Printf("[profile] pod summary skipping %s: %v", userID, err)
			continue
		}
		memberAnalytics = append(memberAnalytics, analytics)
	}

	summary := attendance.SummarizePod(podID, memberAnalytics, a.podWindowWeeks, a.atRiskThreshold)
	insights := insight.ForPod(summary)
	insight.Sort(insights)

	return &PodResult{Summary: summary, Insights: insights, Members: results}, nil
}

func attendanceForSummary(a *Analyzer, userID, podID string) (attendance.Analytics, error) {
	since := a.now().UTC().AddDate(0, 0, -7*a.podWindowWeeks)
	records, err := a.store.AttendanceForUser(userID, podID, since)
	if err != nil {
		return attendance.Analytics{}, fmt.Errorf("fetch attendance for %s: %w", userID, err)
	}
	return attendance.Analyze(userID, podID, records, a.podWindowWeeks), nil
}

// Pods lists the pods with active members, for sweep scheduling.
func (a *Analyzer) Pods() ([]string, error) {
	return a.store.Pods()
}
