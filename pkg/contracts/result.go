package contracts

import "time"

// CalculationResult is the immutable outcome of one coherence calculation.
type CalculationResult struct {
	CalculationID      string                   `json:"calculation_id"`
	ProjectID          string                   `json:"project_id"`
	// GlobalScore is the reported score: RawGlobalScore rounded, minus
	// PenaltyPoints when gaming was detected and the gaming penalty is
	// enabled (the default), floored at 0. The score.low event fires on
	// this value.
	GlobalScore        int                      `json:"global_score"`
	// RawGlobalScore is the weighted aggregate before rounding and penalty.
	// Anti-gaming rules evaluate this value.
	RawGlobalScore     float64                  `json:"raw_global_score"`
	CategoryScores     map[Category]float64     `json:"category_scores"`
	CategoryViolations map[Category][]Violation `json:"category_violations"`
	Alerts             []AlertCreate            `json:"alerts"`
	GamingDetected     bool                     `json:"gaming_detected"`
	GamingViolations   []string                 `json:"gaming_violations,omitempty"`
	PenaltyPoints      int                      `json:"penalty_points"`
	WeightProfile      string                   `json:"weight_profile"`
	CalculatedAt       time.Time                `json:"calculated_at"`
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r *CalculationResult) Clone() *CalculationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.CategoryScores != nil {
		out.CategoryScores = make(map[Category]float64, len(r.CategoryScores))
		for k, v := range r.CategoryScores {
			out.CategoryScores[k] = v
		}
	}
	if r.CategoryViolations != nil {
		out.CategoryViolations = make(map[Category][]Violation, len(r.CategoryViolations))
		for k, vs := range r.CategoryViolations {
			cp := make([]Violation, len(vs))
			for i, v := range vs {
				v.Evidence = CloneMap(v.Evidence)
				cp[i] = v
			}
			out.CategoryViolations[k] = cp
		}
	}
	if r.Alerts != nil {
		out.Alerts = make([]AlertCreate, len(r.Alerts))
		for i, a := range r.Alerts {
			out.Alerts[i] = a.Clone()
		}
	}
	out.GamingViolations = cloneStrings(r.GamingViolations)
	return &out
}
