package scoring

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"profile-ml/service/internal/match"
)

//go:embed data/archetypes.json data/decision_weights.json
var seedFS embed.FS

// Axis names a dimension the scorer aggregates decisions into.
type Axis string

const (
	AxisDominance  Axis = "dominance"
	AxisSubmission Axis = "submission"
	AxisEmpathy    Axis = "empathy"
	AxisRisk       Axis = "risk"
	AxisDirectness Axis = "directness"
	AxisIntensity  Axis = "intensity"
	AxisFrequency  Axis = "frequency"
	AxisDiscretion Axis = "discretion"
)

// Axes lists every known axis in a stable order.
var Axes = []Axis{
	AxisDominance,
	AxisSubmission,
	AxisEmpathy,
	AxisRisk,
	AxisDirectness,
	AxisIntensity,
	AxisFrequency,
	AxisDiscretion,
}

// Weights maps an axis to the weight a decision contributes to it.
type Weights map[Axis]float64

// WeightTable is the declared, immutable weighting of decision keys. Exact keys win over
// namespace prefixes; string answers are translated through the value vocabulary.
// Numeric answers are rescaled from the key's declared range, or clamped to [-1,1].
type WeightTable struct {
	version  string
	keys     map[string]Weights
	prefixes map[string]Weights
	values   map[string]float64
	ranges   map[string]numericRange
}

// numericRange is the answer scale of a numeric decision; Min maps to -1 and Max to +1.
type numericRange struct {
	Min float64
	Max float64
}

type weightFile struct {
	Version  string                        `json:"version"`
	Values   map[string]float64            `json:"values"`
	Ranges   map[string][2]float64         `json:"ranges"`
	Prefixes map[string]map[string]float64 `json:"prefixes"`
	Keys     map[string]map[string]float64 `json:"keys"`
}

// DefaultWeights returns the weight table shipped with the binary.
func DefaultWeights() (*WeightTable, error) {
	data, err := seedFS.ReadFile("data/decision_weights.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded weights: %w", err)
	}
	return parseWeights(data)
}

// LoadWeights reads a weight table from path, falling back to the embedded table when
// path is empty.
func LoadWeights(path string) (*WeightTable, error) {
	if path == "" {
		return DefaultWeights()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return parseWeights(data)
}

func parseWeights(data []byte) (*WeightTable, error) {
	var raw weightFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}

	keys, err := normalizeWeightMap(raw.Keys)
	if err != nil {
		return nil, fmt.Errorf("weights keys: %w", err)
	}
	prefixes, err := normalizeWeightMap(raw.Prefixes)
	if err != nil {
		return nil, fmt.Errorf("weights prefixes: %w", err)
	}
	if len(keys) == 0 && len(prefixes) == 0 {
		return nil, errors.New("weights table is empty")
	}

	values := make(map[string]float64, len(raw.Values))
	for word, signal := range raw.Values {
		normalized := match.NormalizeKey(word)
		if normalized == "" {
			continue
		}
		if math.IsNaN(signal) || signal < -1 || signal > 1 {
			return nil, fmt.Errorf("value %q signal %v outside [-1,1]", word, signal)
		}
		values[normalized] = signal
	}

	ranges := make(map[string]numericRange, len(raw.Ranges))
	for key, bounds := range raw.Ranges {
		normalized := match.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		r := numericRange{Min: bounds[0], Max: bounds[1]}
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) || r.Min >= r.Max {
			return nil, fmt.Errorf("range for %q must be finite with min < max", key)
		}
		ranges[normalized] = r
	}

	return &WeightTable{
		version:  raw.Version,
		keys:     keys,
		prefixes: prefixes,
		values:   values,
		ranges:   ranges,
	}, nil
}

func normalizeWeightMap(in map[string]map[string]float64) (map[string]Weights, error) {
	known := make(map[Axis]struct{}, len(Axes))
	for _, axis := range Axes {
		known[axis] = struct{}{}
	}

	out := make(map[string]Weights, len(in))
	for key, axes := range in {
		normalized := match.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		weights := make(Weights, len(axes))
		for name, w := range axes {
			axis := Axis(match.NormalizeKey(name))
			if _, ok := known[axis]; !ok {
				return nil, fmt.Errorf("%s: unknown axis %q", key, name)
			}
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%s: invalid weight for %s", key, name)
			}
			if w != 0 {
				weights[axis] = w
			}
		}
		if len(weights) > 0 {
			out[normalized] = weights
		}
	}
	return out, nil
}

// Version reports the declared table version.
func (t *WeightTable) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}

// lookup returns the weights for a normalised decision key.
func (t *WeightTable) lookup(key string) (Weights, bool) {
	if t == nil {
		return nil, false
	}
	if w, ok := t.keys[key]; ok {
		return w, true
	}
	if prefix := match.Prefix(key); prefix != "" {
		if w, ok := t.prefixes[prefix]; ok {
			return w, true
		}
	}
	return nil, false
}

// numberSignal maps a numeric answer for key into [-1,1] using the declared range.
func (t *WeightTable) numberSignal(key string, v float64) float64 {
	if t != nil {
		if r, ok := t.ranges[key]; ok {
			v = math.Max(r.Min, math.Min(r.Max, v))
			return 2*(v-r.Min)/(r.Max-r.Min) - 1
		}
	}
	return math.Max(-1, math.Min(1, v))
}

// valueSignal translates a vocabulary answer into a signal.
func (t *WeightTable) valueSignal(word string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	signal, ok := t.values[match.NormalizeKey(word)]
	return signal, ok
}

// Vocabulary returns the accepted string answers in sorted order.
func (t *WeightTable) Vocabulary() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.values))
	for word := range t.values {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}
