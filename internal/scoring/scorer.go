package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"profile-ml/service/internal/match"
)

// DecisionSet is the user's micro-decisions keyed by decision id, as decoded from JSON.
type DecisionSet map[string]any

// ScorePair is the dominance/submission orientation, each coordinate in [0,100].
// The two axes are scored independently and need not sum to 100.
type ScorePair struct {
	Dominance  int `json:"dominance"`
	Submission int `json:"submission"`
}

// Evaluation is the full output of a scoring pass.
type Evaluation struct {
	Scores     ScorePair
	Axes       map[Axis]int
	Considered int
	Unweighted int
	Warnings   []string
}

// Axis returns the score for axis, or the neutral midpoint if nothing contributed to it.
func (e Evaluation) Axis(axis Axis) int {
	if v, ok := e.Axes[axis]; ok {
		return v
	}
	return neutralScore
}

const neutralScore = 50

// Scorer aggregates a DecisionSet into axis scores using a declared weight table.
type Scorer struct {
	weights *WeightTable
}

// NewScorer constructs a scorer around the provided weight table.
func NewScorer(weights *WeightTable) *Scorer {
	return &Scorer{weights: weights}
}

func (s *Scorer) table() *WeightTable {
	if s == nil {
		return nil
	}
	return s.weights
}

// Score maps decisions to a dominance/submission pair.
func (s *Scorer) Score(decisions DecisionSet) ScorePair {
	return s.Evaluate(decisions).Scores
}

// Evaluate scores every axis. Each axis is 50 + 50*Σ(w·s)/Σ|w| over the decisions that carry
// a weight for it, where s is the decision's signal in [-1,1]. Absent or unweighted keys are
// neutral; malformed values are skipped and reported in Warnings.
func (s *Scorer) Evaluate(decisions DecisionSet) Evaluation {
	eval := Evaluation{Axes: make(map[Axis]int, len(Axes))}

	keys := make([]string, 0, len(decisions))
	for key := range decisions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	weighted := make(map[Axis]float64, len(Axes))
	magnitude := make(map[Axis]float64, len(Axes))
	// normalised key -> first raw key in sorted order; later spellings are ignored
	seen := make(map[string]string, len(keys))

	for _, rawKey := range keys {
		key := match.NormalizeKey(rawKey)
		if first, dup := seen[key]; dup {
			eval.Warnings = append(eval.Warnings, fmt.Sprintf("decision %q ignored: duplicates %q", rawKey, first))
			continue
		}
		seen[key] = rawKey
		weights, ok := s.table().lookup(key)
		if !ok {
			eval.Unweighted++
			continue
		}
		signal, err := s.signal(key, decisions[rawKey])
		if err != nil {
			eval.Warnings = append(eval.Warnings, fmt.Sprintf("decision %q ignored: %v", rawKey, err))
			continue
		}
		eval.Considered++
		for axis, w := range weights {
			weighted[axis] += w * signal
			magnitude[axis] += math.Abs(w)
		}
	}

	for _, axis := range Axes {
		eval.Axes[axis] = axisScore(weighted[axis], magnitude[axis])
	}
	eval.Scores = ScorePair{
		Dominance:  eval.Axes[AxisDominance],
		Submission: eval.Axes[AxisSubmission],
	}

	if len(eval.Warnings) > 0 {
		logrus.WithFields(logrus.Fields{
			"ignored":  len(eval.Warnings),
			"warnings": eval.Warnings,
		}).Warn("malformed decisions ignored")
	}
	return eval
}

func axisScore(weighted, magnitude float64) int {
	if magnitude == 0 {
		return neutralScore
	}
	return clampScore(int(math.Round(50 + 50*weighted/magnitude)))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// signal converts the value of the normalised decision key into [-1,1].
func (s *Scorer) signal(key string, value any) (float64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return -1, nil
	case float64:
		return s.number(key, v)
	case float32:
		return s.number(key, float64(v))
	case int:
		return s.number(key, float64(v))
	case int64:
		return s.number(key, float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", v.String())
		}
		return s.number(key, f)
	case string:
		signal, ok := s.table().valueSignal(v)
		if !ok {
			return 0, fmt.Errorf("unknown answer %q", v)
		}
		return signal, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}

func (s *Scorer) number(key string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number")
	}
	return s.table().numberSignal(key, v), nil
}
