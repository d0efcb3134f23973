package scoring

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	weights, err := DefaultWeights()
	if err != nil {
		t.Fatalf("default weights: %v", err)
	}
	return NewScorer(weights)
}

func TestScoreEmptyDecisionsIsNeutral(t *testing.T) {
	scorer := newTestScorer(t)
	for _, decisions := range []DecisionSet{nil, {}} {
		got := scorer.Score(decisions)
		if got != (ScorePair{Dominance: 50, Submission: 50}) {
			t.Fatalf("expected neutral pair got %+v", got)
		}
	}
}

func TestScoreWeightedDecisions(t *testing.T) {
	scorer := newTestScorer(t)
	tests := []struct {
		name      string
		decisions DecisionSet
		expected  ScorePair
	}{
		{
			"dominance prefix",
			DecisionSet{"dominance.gives_orders": true, "dominance.sets_pace": true},
			ScorePair{Dominance: 100, Submission: 0},
		},
		{
			"submission vocabulary",
			DecisionSet{"submission.kneels": true, "submission.obeys": "always"},
			ScorePair{Dominance: 0, Submission: 100},
		},
		{
			"exact key wins over prefix",
			DecisionSet{"takes_initiative": false},
			ScorePair{Dominance: 0, Submission: 50},
		},
		{
			"neutral answer",
			DecisionSet{"role_preference": "both"},
			ScorePair{Dominance: 50, Submission: 50},
		},
		{
			"fractional intensity",
			DecisionSet{"dominance.x": 0.5},
			ScorePair{Dominance: 75, Submission: 25},
		},
		{
			"numbers are clamped",
			DecisionSet{"dominance.x": 3.0},
			ScorePair{Dominance: 100, Submission: 0},
		},
		{
			"keys and answers are normalised",
			DecisionSet{"Dominance.Gives Orders": "Strongly Agree"},
			ScorePair{Dominance: 100, Submission: 0},
		},
		{
			"json number",
			DecisionSet{"submission.x": json.Number("-0.5")},
			ScorePair{Dominance: 75, Submission: 25},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := scorer.Score(tc.decisions); got != tc.expected {
				t.Fatalf("expected %+v got %+v", tc.expected, got)
			}
		})
	}
}

func TestEvaluateIgnoresMalformedValues(t *testing.T) {
	scorer := newTestScorer(t)
	eval := scorer.Evaluate(DecisionSet{
		"dominance.x": true,
		"dominance.y": map[string]any{"nested": true},
		"dominance.z": "banana",
		"dominance.n": nil,
		"dominance.f": math.NaN(),
	})
	if eval.Scores.Dominance != 100 {
		t.Fatalf("expected only valid decision to count, got %+v", eval.Scores)
	}
	if eval.Considered != 1 {
		t.Fatalf("expected 1 considered decision got %d", eval.Considered)
	}
	if len(eval.Warnings) != 4 {
		t.Fatalf("expected 4 warnings got %v", eval.Warnings)
	}
	if !strings.Contains(eval.Warnings[0], "dominance.f") {
		t.Fatalf("warnings should be ordered by key, got %v", eval.Warnings)
	}
}

func TestEvaluateCountsUnweightedKeys(t *testing.T) {
	scorer := newTestScorer(t)
	eval := scorer.Evaluate(DecisionSet{"favourite_color": "blue", "dominance.x": true})
	if eval.Unweighted != 1 {
		t.Fatalf("expected 1 unweighted key got %d", eval.Unweighted)
	}
	if len(eval.Warnings) != 0 {
		t.Fatalf("unweighted keys must not warn, got %v", eval.Warnings)
	}
}

func TestEvaluateRescalesDeclaredRanges(t *testing.T) {
	scorer := newTestScorer(t)
	tests := []struct {
		name      string
		decisions DecisionSet
		axis      Axis
		expected  int
	}{
		{"few sessions", DecisionSet{"sessions_per_month": 2}, AxisFrequency, 7},
		{"mid sessions", DecisionSet{"sessions_per_month": json.Number("15")}, AxisFrequency, 50},
		{"max sessions", DecisionSet{"sessions_per_month": 30.0}, AxisFrequency, 100},
		{"beyond range clamps", DecisionSet{"sessions_per_month": 90}, AxisFrequency, 100},
		{"zero sessions", DecisionSet{"sessions_per_month": 0}, AxisFrequency, 0},
		{"pain scale midpoint", DecisionSet{"pain_tolerance": 5}, AxisIntensity, 50},
		{"unranged key still clamps", DecisionSet{"frequency.x": 30}, AxisFrequency, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := scorer.Evaluate(tc.decisions).Axis(tc.axis); got != tc.expected {
				t.Fatalf("expected %s=%d got %d", tc.axis, tc.expected, got)
			}
		})
	}
}

func TestEvaluateIgnoresCollidingKeys(t *testing.T) {
	scorer := newTestScorer(t)
	eval := scorer.Evaluate(DecisionSet{"Role Preference": "lead", "role_preference": "follow"})
	if eval.Considered != 1 {
		t.Fatalf("expected one decision per normalised key, got %d", eval.Considered)
	}
	if eval.Scores != (ScorePair{Dominance: 100, Submission: 0}) {
		t.Fatalf("expected the first spelling in key order to win, got %+v", eval.Scores)
	}
	if len(eval.Warnings) != 1 || !strings.Contains(eval.Warnings[0], `"role_preference" ignored`) {
		t.Fatalf("expected a duplicate warning got %v", eval.Warnings)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	scorer := newTestScorer(t)
	decisions := DecisionSet{}
	answers := []any{true, false, 0.25, -0.75, "agree", "never", "lead", 1.0}
	prefixes := []string{"dominance", "submission", "control", "service", "empathy", "risk", "intensity", "frequency", "discretion", "communication"}
	for i := 0; i < 220; i++ {
		key := prefixes[i%len(prefixes)] + ".q" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		decisions[key] = answers[i%len(answers)]
	}

	first := scorer.Evaluate(decisions)
	for i := 0; i < 20; i++ {
		again := scorer.Evaluate(decisions)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("evaluation changed between runs: %+v vs %+v", first, again)
		}
	}
	for axis, v := range first.Axes {
		if v < 0 || v > 100 {
			t.Fatalf("axis %s out of range: %d", axis, v)
		}
	}
}

func TestNilScorerIsNeutral(t *testing.T) {
	var scorer *Scorer
	if got := scorer.Score(DecisionSet{"dominance.x": true}); got != (ScorePair{Dominance: 50, Submission: 50}) {
		t.Fatalf("expected neutral pair got %+v", got)
	}
}

func TestLoadWeightsValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		errPart string
	}{
		{"unknown axis", map[string]any{"keys": map[string]any{"x": map[string]float64{"charisma": 1}}}, "unknown axis"},
		{"signal out of range", map[string]any{"keys": map[string]any{"x": map[string]float64{"risk": 1}}, "values": map[string]float64{"very": 2}}, "outside"},
		{"empty", map[string]any{"values": map[string]float64{"yes": 1}}, "empty"},
		{"inverted range", map[string]any{"keys": map[string]any{"x": map[string]float64{"risk": 1}}, "ranges": map[string][]float64{"x": {10, 0}}}, "min < max"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWeights(tempJSON(t, tc.payload))
			if err == nil || !strings.Contains(err.Error(), tc.errPart) {
				t.Fatalf("expected error containing %q got %v", tc.errPart, err)
			}
		})
	}
}

func TestLoadWeightsFromFile(t *testing.T) {
	path := tempJSON(t, map[string]any{
		"version": "test",
		"values":  map[string]float64{"Ja": 1, "Nein": -1},
		"keys":    map[string]any{"Führt Gern": map[string]float64{"dominance": 2}},
	})
	weights, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("load weights: %v", err)
	}
	if weights.Version() != "test" {
		t.Fatalf("unexpected version %q", weights.Version())
	}
	got := NewScorer(weights).Score(DecisionSet{"fuhrt_gern": "nein"})
	if got.Dominance != 0 || got.Submission != 50 {
		t.Fatalf("unexpected scores %+v", got)
	}
	if !reflect.DeepEqual(weights.Vocabulary(), []string{"ja", "nein"}) {
		t.Fatalf("unexpected vocabulary %v", weights.Vocabulary())
	}
}
