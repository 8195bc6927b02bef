// Package weights stores, validates and normalizes named category-weight
// profiles used to aggregate category subscores into a global score.
package weights

import (
	"math"
	"time"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Tolerance is the allowed deviation of a weight sum from 1.0.
const Tolerance = 1e-9

// DefaultProfileName is the built-in equal-weight profile.
const DefaultProfileName = "default"

// Profile is a named set of per-category weights.
type Profile struct {
	Name        string                         `json:"name"`
	ProjectType string                         `json:"project_type,omitempty"`
	Weights     map[contracts.Category]float64 `json:"weights"`
	Revision    int                            `json:"revision"`
	CreatedAt   time.Time                      `json:"created_at"`
}

// Clone returns a copy that shares no state with p.
func (p Profile) Clone() Profile {
	out := p
	out.Weights = cloneWeights(p.Weights)
	return out
}

// Sum returns the total of all weights.
func (p Profile) Sum() float64 {
	return sum(p.Weights)
}

// DefaultProfile returns the built-in profile with 1/6 per category.
func DefaultProfile() Profile {
	return Profile{
		Name:    DefaultProfileName,
		Weights: Equal(contracts.AllCategories()),
	}
}

// Equal distributes 1.0 equally across the given categories.
func Equal(categories []contracts.Category) map[contracts.Category]float64 {
	out := make(map[contracts.Category]float64, len(categories))
	if len(categories) == 0 {
		return out
	}
	share := 1.0 / float64(len(categories))
	for _, c := range categories {
		out[c] = share
	}
	return out
}

// SumsToOne reports whether total is 1.0 within Tolerance.
func SumsToOne(total float64) bool {
	return math.Abs(total-1.0) <= Tolerance
}

func sum(w map[contracts.Category]float64) float64 {
	total := 0.0
	for _, c := range contracts.AllCategories() {
		total += w[c]
	}
	return total
}

func cloneWeights(w map[contracts.Category]float64) map[contracts.Category]float64 {
	if w == nil {
		return nil
	}
	out := make(map[contracts.Category]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
