package persona

// Persona is a discrete behavioral archetype driving adaptation selection.
type Persona string

const (
	GoalOriented         Persona = "goal_oriented"
	ProcessFocused       Persona = "process_focused"
	SocialLearner        Persona = "social_learner"
	IndependentAchiever  Persona = "independent_achiever"
	StructuredPlanner    Persona = "structured_planner"
	FlexibleExperimenter Persona = "flexible_experimenter"
)

// DefaultPersona is the neutral fallback when no indicators are measurable.
const DefaultPersona = IndependentAchiever

// All lists the personas in declaration order. The classifier breaks score
// ties by this order, which makes tie-breaking explicit and deterministic
// instead of depending on map iteration.
func All() []Persona {
	return []Persona{
		GoalOriented,
		ProcessFocused,
		SocialLearner,
		IndependentAchiever,
		StructuredPlanner,
		FlexibleExperimenter,
	}
}

func Valid(p Persona) bool {
	for _, known := range All() {
		if p == known {
			return true
		}
	}
	return false
}

// indicatorRange is an inclusive [min,max] band for one behavior feature.
type indicatorRange struct {
	min, max float64
}

// template lists the indicator bands that characterize one persona.
type template struct {
	persona    Persona
	indicators map[string]indicatorRange
}

// templates holds one entry per persona, in declaration order.
var templates = []template{
	{GoalOriented, map[string]indicatorRange{
		"completion_rate":         {0.7, 1.0},
		"engagement_frequency":    {0.6, 1.0},
		"progress_tracking_usage": {0.5, 1.0},
	}},
	{ProcessFocused, map[string]indicatorRange{
		"consistency_score":       {0.7, 1.0},
		"progress_tracking_usage": {0.6, 1.0},
		"method_variety":          {0.0, 0.4},
	}},
	{SocialLearner, map[string]indicatorRange{
		"pod_participation":    {0.6, 1.0},
		"engagement_frequency": {0.5, 1.0},
	}},
	{IndependentAchiever, map[string]indicatorRange{
		"pod_participation":    {0.0, 0.4},
		"completion_rate":      {0.6, 1.0},
		"smart_analysis_usage": {0.0, 0.5},
	}},
	{StructuredPlanner, map[string]indicatorRange{
		"consistency_score":    {0.6, 1.0},
		"smart_analysis_usage": {0.5, 1.0},
		"engagement_frequency": {0.5, 1.0},
	}},
	{FlexibleExperimenter, map[string]indicatorRange{
		"method_variety":    {0.6, 1.0},
		"consistency_score": {0.0, 0.5},
	}},
}

// Classify picks the single best-fit persona for a feature vector. Each
// persona averages its indicator scores: 1.0 inside the band, otherwise
// 1 − distance to the nearest bound, floored at 0. Personas with no
// measurable indicator score 0. An empty feature vector falls back to
// DefaultPersona.
func Classify(features map[string]float64) Persona {
	if len(features) == 0 {
		return DefaultPersona
	}

	best := Persona("")
	bestScore := -1.0
	for _, tpl := range templates {
		score, measured := scoreTemplate(tpl, features)
		if !measured {
			score = 0
		}
		// Strict greater-than keeps the first-declared persona on ties.
		if score > bestScore {
			bestScore = score
			best = tpl.persona
		}
	}

	if best == "" || bestScore <= 0 {
		return DefaultPersona
	}
	return best
}

// Score exposes one persona's average indicator score, mainly for
// explaining a classification.
func Score(p Persona, features map[string]float64) float64 {
	for _, tpl := range templates {
		if tpl.persona == p {
			score, measured := scoreTemplate(tpl, features)
			if !measured {
				return 0
			}
			return score
		}
	}
	return 0
}

func scoreTemplate(tpl template, features map[string]float64) (float64, bool) {
	sum := 0.0
	count := 0
	for name, band := range tpl.indicators {
		value, ok := features[name]
		if !ok {
			continue
		}
		sum += scoreIndicator(value, band)
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func scoreIndicator(value float64, band indicatorRange) float64 {
	if value >= band.min && value <= band.max {
		return 1.0
	}
	var distance float64
	if value < band.min {
		distance = band.min - value
	} else {
		distance = value - band.max
	}
	score := 1 - distance
	if score < 0 {
		return 0
	}
	return score
}
