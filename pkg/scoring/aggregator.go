package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

// snapEpsilon is how close a global score must be to 0 or 100 to be
// reported as exactly 0 or 100.
const snapEpsilon = 1e-12

// Aggregator combines category subscores into a global score.
type Aggregator struct {
	trackHistory bool
	mu           sync.Mutex
	history      []weights.Profile
	logger       *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithHistory records the resolved weight profile of every call.
func WithHistory() AggregatorOption {
	return func(a *Aggregator) { a.trackHistory = true }
}

// WithLogger overrides the aggregator logger.
func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		logger: slog.Default().With("component", "scoring"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CalculateGlobal returns the weighted global score in [0, 100].
//
// Weights are restricted to the categories present in subscores. A nil
// profile, or one that names none of them, means equal weighting. Weights
// that already cover every present category and sum to 1.0 are used as-is;
// otherwise they are normalized over the present set, or rejected when
// normalize is false.
func (a *Aggregator) CalculateGlobal(subscores map[contracts.Category]float64, profile *weights.Profile, normalize bool) (float64, error) {
	if len(subscores) == 0 {
		return MaxScore, nil
	}

	present := presentCategories(subscores)
	resolved, err := resolveWeights(present, profile, normalize)
	if err != nil {
		a.logger.Debug("global score rejected", "error", err)
		return 0, err
	}

	total := 0.0
	for _, c := range present {
		total += clamp(subscores[c]) * resolved[c]
	}
	total = snap(total)

	if a.trackHistory {
		name := ""
		if profile != nil {
			name = profile.Name
		}
		a.mu.Lock()
		a.history = append(a.history, weights.Profile{Name: name, Weights: resolved})
		a.mu.Unlock()
	}
	return total, nil
}

// WeightHistory returns the weights resolved by each call, in call order.
// It is empty unless the aggregator was built WithHistory.
func (a *Aggregator) WeightHistory() []weights.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]weights.Profile, len(a.history))
	for i, p := range a.history {
		out[i] = p.Clone()
	}
	return out
}

func resolveWeights(present []contracts.Category, profile *weights.Profile, normalize bool) (map[contracts.Category]float64, error) {
	if profile == nil {
		return weights.Equal(present), nil
	}

	filtered := make(map[contracts.Category]float64, len(present))
	total := 0.0
	for _, c := range present {
		if w, ok := profile.Weights[c]; ok {
			filtered[c] = w
			total += w
		}
	}
	if len(filtered) == 0 {
		return weights.Equal(present), nil
	}
	if weights.SumsToOne(total) && len(filtered) == len(present) {
		return filtered, nil
	}
	if !normalize {
		if weights.SumsToOne(total) {
			return filtered, nil
		}
		return nil, fmt.Errorf("calculate global score: %w", &weights.ValidationError{
			Kind:    weights.KindWeightSum,
			Message: fmt.Sprintf("Weights must sum to 1.0 (got %.6f)", total),
		})
	}
	return weights.Normalize(filtered, present)
}

// presentCategories returns the subscore keys in canonical category order,
// followed by any non-canonical keys.
func presentCategories(subscores map[contracts.Category]float64) []contracts.Category {
	out := make([]contracts.Category, 0, len(subscores))
	for _, c := range contracts.AllCategories() {
		if _, ok := subscores[c]; ok {
			out = append(out, c)
		}
	}
	if len(out) == len(subscores) {
		return out
	}
	var extra []string
	for c := range subscores {
		if !c.Valid() {
			extra = append(extra, string(c))
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		out = append(out, contracts.Category(c))
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(MaxScore, v))
}

func snap(v float64) float64 {
	switch {
	case math.Abs(v-MaxScore) < snapEpsilon || v > MaxScore:
		return MaxScore
	case math.Abs(v) < snapEpsilon || v < 0:
		return 0
	default:
		return v
	}
}
