package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/theprogressmethod/telbot-sub003/internal/persona"
)

func subject(p persona.Persona, confidence float64, features map[string]float64) Subject {
	return Subject{Persona: p, Features: features, Confidence: confidence}
}

func TestEvaluate_PersonaAndConditionsAndConfidence(t *testing.T) {
	ruleset := []Rule{
		{
			ID:                  "r1",
			Personas:            []persona.Persona{persona.GoalOriented},
			Conditions:          map[string]Condition{"completion_rate": {Op: OpGTE, Value: 0.6}},
			ConfidenceThreshold: 0.6,
		},
	}

	features := map[string]float64{"completion_rate": 0.8}

	fired := Evaluate(subject(persona.GoalOriented, 0.7, features), ruleset)
	if len(fired) != 1 || fired[0].ID != "r1" {
		t.Fatalf("fired = %v, want [r1]", fired)
	}

	// Wrong persona.
	if got := Evaluate(subject(persona.SocialLearner, 0.7, features), ruleset); len(got) != 0 {
		t.Errorf("wrong persona fired %v", got)
	}

	// Confidence below threshold.
	if got := Evaluate(subject(persona.GoalOriented, 0.5, features), ruleset); len(got) != 0 {
		t.Errorf("low confidence fired %v", got)
	}

	// Condition not met.
	low := map[string]float64{"completion_rate": 0.5}
	if got := Evaluate(subject(persona.GoalOriented, 0.7, low), ruleset); len(got) != 0 {
		t.Errorf("unmet condition fired %v", got)
	}
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name  string
		cond  Condition
		value float64
		want  bool
	}{
		{"gte holds at boundary", Condition{OpGTE, 0.5}, 0.5, true},
		{"gte fails below", Condition{OpGTE, 0.5}, 0.49, false},
		{"lte holds at boundary", Condition{OpLTE, 0.3}, 0.3, true},
		{"lte fails above", Condition{OpLTE, 0.3}, 0.31, false},
		{"eq holds", Condition{OpEQ, 1.0}, 1.0, true},
		{"eq fails", Condition{OpEQ, 1.0}, 0.99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ruleset := []Rule{{ID: "r", Conditions: map[string]Condition{"f": tt.cond}}}
			fired := Evaluate(subject(persona.GoalOriented, 1.0, map[string]float64{"f": tt.value}), ruleset)
			if got := len(fired) == 1; got != tt.want {
				t.Errorf("fired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_MalformedConditionSkipsRule(t *testing.T) {
	ruleset := []Rule{
		{ID: "bad", Conditions: map[string]Condition{"f": {Op: "between", Value: 0.5}}},
		{ID: "good", Conditions: map[string]Condition{"f": {Op: OpGTE, Value: 0.1}}},
	}
	fired := Evaluate(subject(persona.GoalOriented, 1.0, map[string]float64{"f": 0.5}), ruleset)
	if len(fired) != 1 || fired[0].ID != "good" {
		t.Errorf("fired = %v, want only the well-formed rule", fired)
	}
}

func TestEvaluate_MissingFeatureDoesNotFire(t *testing.T) {
	ruleset := []Rule{{ID: "r", Conditions: map[string]Condition{"absent": {Op: OpGTE, Value: 0}}}}
	if got := Evaluate(subject(persona.GoalOriented, 1.0, map[string]float64{}), ruleset); len(got) != 0 {
		t.Errorf("rule on missing feature fired: %v", got)
	}
}

func TestEvaluate_EmptyPersonaTargetsMatchAll(t *testing.T) {
	ruleset := []Rule{{ID: "any", Conditions: map[string]Condition{"f": {Op: OpLTE, Value: 1}}}}
	for _, p := range persona.All() {
		if got := Evaluate(subject(p, 1.0, map[string]float64{"f": 0.5}), ruleset); len(got) != 1 {
			t.Errorf("rule with no persona targets should fire for %s", p)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	features := map[string]float64{
		"completion_rate":      0.8,
		"consistency_score":    0.7,
		"engagement_frequency": 0.2,
		"pod_participation":    0.3,
	}
	sub := subject(persona.GoalOriented, 0.8, features)
	ruleset := DefaultRules()

	first := Evaluate(sub, ruleset)
	for i := 0; i < 10; i++ {
		again := Evaluate(sub, ruleset)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("rule firing not deterministic: %v vs %v", first, again)
		}
	}
}

func TestCondition_JSONForms(t *testing.T) {
	var rule Rule
	raw := `{
		"id": "j1",
		"personas": ["goal_oriented"],
		"conditions": {
			"completion_rate": {"gte": 0.7},
			"method_variety": 0.4
		},
		"confidenceThreshold": 0.5
	}`
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := rule.Conditions["completion_rate"]; got.Op != OpGTE || got.Value != 0.7 {
		t.Errorf("object condition = %+v, want gte 0.7", got)
	}
	// Bare scalar means exact equality.
	if got := rule.Conditions["method_variety"]; got.Op != OpEQ || got.Value != 0.4 {
		t.Errorf("scalar condition = %+v, want eq 0.4", got)
	}

	// Round trip.
	data, err := json.Marshal(rule.Conditions)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]Condition
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if !reflect.DeepEqual(rule.Conditions, back) {
		t.Errorf("conditions round trip: %v vs %v", rule.Conditions, back)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	raw := `[
		{"id": "ok", "personas": ["social_learner"], "conditions": {"pod_participation": {"gte": 0.5}}, "confidenceThreshold": 0.5},
		{"id": "bad-persona", "personas": ["night_owl"], "conditions": {}, "confidenceThreshold": 0.5}
	]`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "ok" {
		t.Errorf("loaded = %v, want only the rule with a known persona", loaded)
	}

	if _, err := LoadRules(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing rules file")
	}
}

func TestDefaultRules_AllPersonasValid(t *testing.T) {
	for _, rule := range DefaultRules() {
		if rule.ID == "" {
			t.Error("default rule missing ID")
		}
		for _, target := range rule.Personas {
			if !persona.Valid(target) {
				t.Errorf("rule %s targets unknown persona %s", rule.ID, target)
			}
		}
	}
}
