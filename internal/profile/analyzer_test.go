package profile

import (
	"fmt"
	"testing"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/attendance"
	"github.com/theprogressmethod/telbot-sub003/internal/behavior"
	"github.com/theprogressmethod/telbot-sub003/internal/persona"
	"github.com/theprogressmethod/telbot-sub003/internal/rules"
)

type fakeStorage struct {
	commitments map[string][]behavior.Commitment
	records     map[string][]attendance.Record
	members     map[string][]string
	active      map[string]bool
	failFetch   map[string]bool

	commitmentFetches int
	attendanceFetches int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		commitments: make(map[string][]behavior.Commitment),
		records:     make(map[string][]attendance.Record),
		members:     make(map[string][]string),
		active:      make(map[string]bool),
		failFetch:   make(map[string]bool),
	}
}

func (f *fakeStorage) CommitmentsForUser(userID string) ([]behavior.Commitment, error) {
	if f.failFetch[userID] {
		return nil, fmt.Errorf("storage unavailable")
	}
	f.commitmentFetches++
	return f.commitments[userID], nil
}

func (f *fakeStorage) AttendanceForUser(userID, podID string, since time.Time) ([]attendance.Record, error) {
	if f.failFetch[userID] {
		return nil, fmt.Errorf("storage unavailable")
	}
	f.attendanceFetches++
	var out []attendance.Record
	for _, rec := range f.records[userID+":"+podID] {
		if !rec.ScheduledStart.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStorage) IsActiveMember(userID, podID string) (bool, error) {
	return f.active[userID+":"+podID], nil
}

func (f *fakeStorage) ActivePodMembers(podID string) ([]string, error) {
	return f.members[podID], nil
}

func (f *fakeStorage) Pods() ([]string, error) {
	pods := make([]string, 0, len(f.members))
	for pod := range f.members {
		pods = append(pods, pod)
	}
	return pods, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func newTestAnalyzer(store Storage) *Analyzer {
	a := NewAnalyzer(store, rules.DefaultRules(), Options{})
	a.now = fixedNow
	return a
}

func addSessions(store *fakeStorage, userID, podID string, statuses ...attendance.Status) {
	base := fixedNow().AddDate(0, 0, -7*len(statuses))
	for i, status := range statuses {
		start := base.AddDate(0, 0, 7*i)
		rec := attendance.Record{
			SessionID:      fmt.Sprintf("%s-s%d", userID, i),
			UserID:         userID,
			PodID:          podID,
			Status:         status,
			ScheduledStart: start,
			ScheduledEnd:   start.Add(60 * time.Minute),
		}
		if status != attendance.StatusAbsent {
			joined := start.Add(1 * time.Minute)
			left := start.Add(59 * time.Minute)
			rec.JoinedAt = &joined
			rec.LeftAt = &left
			rec.MinutesPresent = 58
		}
		store.records[userID+":"+podID] = append(store.records[userID+":"+podID], rec)
	}
}

func TestAnalyzeUserNewUserDefaults(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)

	result, err := a.AnalyzeUser("new-user", "pod-1")
	if err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}

	if result.Profile.Persona != persona.IndependentAchiever {
		t.Errorf("persona = %s, want %s", result.Profile.Persona, persona.IndependentAchiever)
	}
	if result.Profile.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", result.Profile.Confidence)
	}
	if result.Analytics.Pattern != attendance.PatternInconsistent {
		t.Errorf("pattern = %s, want inconsistent", result.Analytics.Pattern)
	}
	if result.Analytics.Engagement != attendance.EngagementModerate {
		t.Errorf("engagement = %s, want moderate", result.Analytics.Engagement)
	}
	if result.Analytics.PredictionScore != 0.5 {
		t.Errorf("prediction = %v, want 0.5", result.Analytics.PredictionScore)
	}
	if len(result.Profile.AdaptationHistory) != 0 {
		t.Errorf("adaptation history should start empty")
	}
}

func TestAnalyzeUserCachesProfile(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)

	if _, ok := a.Profile("user-1"); ok {
		t.Fatal("profile should not exist before analysis")
	}
	result, err := a.AnalyzeUser("user-1", "pod-1")
	if err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	cached, ok := a.Profile("user-1")
	if !ok {
		t.Fatal("profile missing after analysis")
	}
	if cached.Persona != result.Profile.Persona {
		t.Errorf("cached persona = %s, want %s", cached.Persona, result.Profile.Persona)
	}
}

func TestAnalyticsCacheAvoidsRefetch(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)

	if _, err := a.AnalyzeUser("user-1", "pod-1"); err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	first := store.attendanceFetches
	if _, err := a.AnalyzeUser("user-1", "pod-1"); err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	if store.attendanceFetches != first {
		t.Errorf("attendance fetched %d times after cached analysis, want %d", store.attendanceFetches, first)
	}

	a.Invalidate("user-1", "pod-1")
	if _, err := a.AnalyzeUser("user-1", "pod-1"); err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	if store.attendanceFetches != first+1 {
		t.Errorf("invalidate did not force refetch")
	}
}

func TestAttendanceRefinesPodParticipation(t *testing.T) {
	store := newFakeStorage()
	store.active["user-1:pod-1"] = true
	addSessions(store, "user-1", "pod-1",
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusPresent, attendance.StatusAbsent, attendance.StatusPresent)
	a := newTestAnalyzer(store)

	result, err := a.AnalyzeUser("user-1", "pod-1")
	if err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	got := result.Profile.BehaviorPatterns["pod_participation"]
	want := result.Analytics.AttendanceRate
	if got != want {
		t.Errorf("pod_participation = %v, want attendance rate %v", got, want)
	}
	if got == 0.5 {
		t.Error("participation should be refined away from the neutral default")
	}
}

func TestRecordAdaptationAppends(t *testing.T) {
	store := newFakeStorage()
	a := newTestAnalyzer(store)

	if _, err := a.AnalyzeUser("user-1", "pod-1"); err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	a.RecordAdaptation("user-1", "exp-1", "frequency_increase")
	a.RecordAdaptation("user-1", "exp-2", "content_style_change")

	profile, ok := a.Profile("user-1")
	if !ok {
		t.Fatal("profile missing")
	}
	if len(profile.AdaptationHistory) != 2 {
		t.Fatalf("history len = %d, want 2", len(profile.AdaptationHistory))
	}
	if profile.AdaptationHistory[0].ExperimentID != "exp-1" || profile.AdaptationHistory[1].ExperimentID != "exp-2" {
		t.Errorf("history order = %+v", profile.AdaptationHistory)
	}

	// history survives reanalysis
	if _, err := a.AnalyzeUser("user-1", "pod-1"); err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	profile, _ = a.Profile("user-1")
	if len(profile.AdaptationHistory) != 2 {
		t.Errorf("history len after reanalysis = %d, want 2", len(profile.AdaptationHistory))
	}
}

func TestAnalyzePodSkipsFailingMembers(t *testing.T) {
	store := newFakeStorage()
	store.members["pod-1"] = []string{"user-1", "user-2", "user-3"}
	for _, u := range []string{"user-1", "user-2", "user-3"} {
		store.active[u+":pod-1"] = true
		addSessions(store, u, "pod-1",
			attendance.StatusPresent, attendance.StatusPresent,
			attendance.StatusPresent, attendance.StatusPresent)
	}
	store.failFetch["user-2"] = true
	a := newTestAnalyzer(store)

	result, err := a.AnalyzePod("pod-1")
	if err != nil {
		t.Fatalf("AnalyzePod: %v", err)
	}
	if len(result.Members) != 2 {
		t.Errorf("members analyzed = %d, want 2", len(result.Members))
	}
	if result.Summary.MemberCount != 2 {
		t.Errorf("summary member count = %d, want 2", result.Summary.MemberCount)
	}
	if result.Summary.AvgAttendanceRate != 1.0 {
		t.Errorf("avg attendance rate = %v, want 1.0", result.Summary.AvgAttendanceRate)
	}
}

func TestAnalyzePodStrugglingPodInsights(t *testing.T) {
	store := newFakeStorage()
	store.members["pod-1"] = []string{"user-1", "user-2"}
	for _, u := range []string{"user-1", "user-2"} {
		store.active[u+":pod-1"] = true
		addSessions(store, u, "pod-1",
			attendance.StatusAbsent, attendance.StatusAbsent,
			attendance.StatusAbsent, attendance.StatusPresent)
	}
	a := newTestAnalyzer(store)

	result, err := a.AnalyzePod("pod-1")
	if err != nil {
		t.Fatalf("AnalyzePod: %v", err)
	}
	if len(result.Insights) == 0 {
		t.Fatal("expected pod insights for a struggling pod")
	}
	// critical sorts first
	if result.Insights[0].Priority != "critical" {
		t.Errorf("first insight priority = %s, want critical", result.Insights[0].Priority)
	}
}

func TestConfidenceBounds(t *testing.T) {
	store := newFakeStorage()
	created := fixedNow().AddDate(0, 0, -30)
	for i := 0; i < 20; i++ {
		store.commitments["user-1"] = append(store.commitments["user-1"], behavior.Commitment{
			ID:        fmt.Sprintf("c-%d", i),
			UserID:    "user-1",
			Status:    "completed",
			Text:      "gym session",
			CreatedAt: created.AddDate(0, 0, i),
		})
	}
	store.active["user-1:pod-1"] = true
	addSessions(store, "user-1", "pod-1",
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent)
	a := newTestAnalyzer(store)

	result, err := a.AnalyzeUser("user-1", "pod-1")
	if err != nil {
		t.Fatalf("AnalyzeUser: %v", err)
	}
	conf := result.Profile.Confidence
	if conf <= 0.5 || conf > 1 {
		t.Errorf("confidence = %v, want in (0.5, 1] for a data-rich steady user", conf)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(15 * time.Minute)
	current := fixedNow()
	cache.now = func() time.Time { return current }

	cache.Set("key", "value")
	if _, ok := cache.Get("key"); !ok {
		t.Fatal("fresh entry should be readable")
	}

	current = current.Add(16 * time.Minute)
	if _, ok := cache.Get("key"); ok {
		t.Error("entry should expire after the TTL")
	}
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	cache := NewMemoryCache(0)
	current := fixedNow()
	cache.now = func() time.Time { return current }

	cache.Set("key", 42)
	current = current.AddDate(1, 0, 0)
	if _, ok := cache.Get("key"); !ok {
		t.Error("zero-TTL entry should never expire")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryCache(0)
	cache.Set("key", 1)
	cache.Invalidate("key")
	if _, ok := cache.Get("key"); ok {
		t.Error("invalidated entry should be gone")
	}
}
