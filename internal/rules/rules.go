package rules

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/theprogressmethod/telbot-sub003/internal/persona"
)

// Op is a condition operator over a behavior feature.
type Op string

const (
	OpGTE Op = "gte"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
)

// Condition is one threshold test against a named feature. In JSON it is
// either an object ({"gte": 0.7}) or a bare number, which means equality.
type Condition struct {
	Op    Op      `json:"op"`
	Value float64 `json:"value"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		c.Op = OpEQ
		c.Value = scalar
		return nil
	}

	var spec map[string]float64
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("condition must be a number or an operator object: %w", err)
	}
	if len(spec) != 1 {
		return fmt.Errorf("condition object must hold exactly one operator, got %d", len(spec))
	}
	for op, value := range spec {
		c.Op = Op(op)
		c.Value = value
	}
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Op == OpEQ {
		return json.Marshal(c.Value)
	}
	return json.Marshal(map[string]float64{string(c.Op): c.Value})
}

// Rule is a static, declarative adaptation trigger. A rule fires for a user
// iff the persona matches, every condition holds, and the profile confidence
// clears the threshold. Rules are independent of one another.
type Rule struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Personas            []persona.Persona    `json:"personas"`
	Conditions          map[string]Condition `json:"conditions"`
	ConfidenceThreshold float64              `json:"confidenceThreshold"`
	Adaptations         []string             `json:"adaptations"`
}

// Subject is the evaluated view of a user profile.
type Subject struct {
	Persona    persona.Persona
	Features   map[string]float64
	Confidence float64
}

// Evaluate returns the subset of rules that fire for the subject, in rule
// order. It is a pure filter with no side effects. A malformed rule is
// skipped with a log line; it never aborts evaluation of the rest.
func Evaluate(subject Subject, ruleset []Rule) []Rule {
	fired := make([]Rule, 0)
	for _, rule := range ruleset {
		ok, err := fires(subject, rule)
		if err != nil {
			log.Printf("[rules] skipping rule %s: %v", rule.ID, err)
			continue
		}
		if ok {
			fired = append(fired, rule)
		}
	}
	return fired
}

func fires(subject Subject, rule Rule) (bool, error) {
	if subject.Confidence < rule.ConfidenceThreshold {
		return false, nil
	}
	if !personaMatches(subject.Persona, rule.Personas) {
		return false, nil
	}
	for feature, cond := range rule.Conditions {
		value, ok := subject.Features[feature]
		if !ok {
			return false, nil
		}
		holds, err := cond.holds(value)
		if err != nil {
			return false, fmt.Errorf("condition on %s: %w", feature, err)
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}

func personaMatches(p persona.Persona, targets []persona.Persona) bool {
	if len(targets) == 0 {
		return true
	}
	for _, target := range targets {
		if p == target {
			return true
		}
	}
	return false
}

func (c Condition) holds(value float64) (bool, error) {
	switch c.Op {
	case OpGTE:
		return value >= c.Value, nil
	case OpLTE:
		return value <= c.Value, nil
	case OpEQ:
		return value == c.Value, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

// LoadRules reads a JSON rule file. Rules with an unknown persona target are
// dropped with a warning so one bad entry cannot poison the set.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var loaded []Rule
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	valid := make([]Rule, 0, len(loaded))
	for _, rule := range loaded {
		bad := false
		for _, target := range rule.Personas {
			if !persona.Valid(target) {
				log.Printf("[rules] dropping rule %s: unknown persona %q", rule.ID, target)
				bad = true
				break
			}
		}
		if !bad {
			valid = append(valid, rule)
		}
	}
	return valid, nil
}

// DefaultRules is the built-in rule set used when no rules file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "goal-milestones",
			Name:     "Milestone framing for goal chasers",
			Personas: []persona.Persona{persona.GoalOriented},
			Conditions: map[string]Condition{
				"completion_rate": {Op: OpGTE, Value: 0.6},
			},
			ConfidenceThreshold: 0.6,
			Adaptations:         []string{"milestone_framing", "weekly_goal_recap"},
		},
		{
			ID:       "process-checklists",
			Name:     "Step checklists for process learners",
			Personas: []persona.Persona{persona.ProcessFocused, persona.StructuredPlanner},
			Conditions: map[string]Condition{
				"consistency_score": {Op: OpGTE, Value: 0.5},
			},
			ConfidenceThreshold: 0.6,
			Adaptations:         []string{"step_checklists", "routine_reminders"},
		},
		{
			ID:       "social-nudges",
			Name:     "Pod shout-outs for social learners",
			Personas: []persona.Persona{persona.SocialLearner},
			Conditions: map[string]Condition{
				"pod_participation": {Op: OpGTE, Value: 0.5},
			},
			ConfidenceThreshold: 0.5,
			Adaptations:         []string{"pod_shoutouts", "buddy_pairing"},
		},
		{
			ID:       "reengage-lapsing",
			Name:     "Re-engagement prompts for fading users",
			Personas: nil, // any persona
			Conditions: map[string]Condition{
				"engagement_frequency": {Op: OpLTE, Value: 0.3},
			},
			ConfidenceThreshold: 0.5,
			Adaptations:         []string{"gentle_checkin", "smaller_commitments"},
		},
		{
			ID:       "variety-prompts",
			Name:     "New-category prompts for experimenters",
			Personas: []persona.Persona{persona.FlexibleExperimenter},
			Conditions: map[string]Condition{
				"method_variety": {Op: OpGTE, Value: 0.6},
			},
			ConfidenceThreshold: 0.6,
			Adaptations:         []string{"category_suggestions"},
		},
		{
			ID:       "independent-deep-dives",
			Name:     "Self-serve analysis for independents",
			Personas: []persona.Persona{persona.IndependentAchiever},
			Conditions: map[string]Condition{
				"completion_rate":   {Op: OpGTE, Value: 0.7},
				"pod_participation": {Op: OpLTE, Value: 0.4},
			},
			ConfidenceThreshold: 0.7,
			Adaptations:         []string{"solo_progress_reports"},
		},
	}
}
