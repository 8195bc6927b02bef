// Package scoring turns rule violations into per-category subscores and
// aggregates them into a single weighted global score.
package scoring

import (
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// MaxScore is the score of a category with no violations.
const MaxScore = 100.0

// SeverityPenalties is the points deducted per violation of each severity.
var SeverityPenalties = map[contracts.Severity]float64{
	contracts.SeverityLow:      5,
	contracts.SeverityMedium:   10,
	contracts.SeverityHigh:     20,
	contracts.SeverityCritical: 30,
}

// Penalty returns the deduction for one violation. Legacy severity text is
// upper-cased before lookup; unrecognized severities cost nothing.
func Penalty(s contracts.Severity) float64 {
	return SeverityPenalties[s.Normalize()]
}

// CalculateSubscore scores one category: 100 minus the penalty of every
// violation in that category, floored at 0.
func CalculateSubscore(violations []contracts.Violation, category contracts.Category) float64 {
	score := MaxScore
	for _, v := range violations {
		if v.Category != category {
			continue
		}
		score -= Penalty(v.Severity)
	}
	if score < 0 {
		return 0
	}
	return score
}

// CalculateAll scores every category in the closed category set.
func CalculateAll(violations []contracts.Violation) map[contracts.Category]float64 {
	out := make(map[contracts.Category]float64, 6)
	for _, c := range contracts.AllCategories() {
		out[c] = CalculateSubscore(violations, c)
	}
	return out
}

// GroupByCategory buckets violations by category, preserving input order.
// Every category is present in the result, possibly with an empty slice.
// Violations with an unknown category are dropped.
func GroupByCategory(violations []contracts.Violation) map[contracts.Category][]contracts.Violation {
	out := make(map[contracts.Category][]contracts.Violation, 6)
	for _, c := range contracts.AllCategories() {
		out[c] = []contracts.Violation{}
	}
	for _, v := range violations {
		if _, ok := out[v.Category]; ok {
			out[v.Category] = append(out[v.Category], v)
		}
	}
	return out
}
