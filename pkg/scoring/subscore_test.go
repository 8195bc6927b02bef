package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

func violation(cat contracts.Category, sev contracts.Severity) contracts.Violation {
	return contracts.Violation{RuleID: "rule", Category: cat, Severity: sev}
}

func TestCalculateSubscore_NoViolations(t *testing.T) {
	assert.Equal(t, 100.0, CalculateSubscore(nil, contracts.CategoryBudget))
	assert.Equal(t, 100.0, CalculateSubscore([]contracts.Violation{}, contracts.CategoryBudget))
}

func TestCalculateSubscore_Penalties(t *testing.T) {
	tests := []struct {
		severity contracts.Severity
		want     float64
	}{
		{contracts.SeverityLow, 95},
		{contracts.SeverityMedium, 90},
		{contracts.SeverityHigh, 80},
		{contracts.SeverityCritical, 70},
		{"high", 80},
		{" Critical ", 70},
		{"SEVERE", 100},
		{"", 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			got := CalculateSubscore([]contracts.Violation{violation(contracts.CategoryTime, tt.severity)}, contracts.CategoryTime)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateSubscore_OnlyMatchingCategory(t *testing.T) {
	vs := []contracts.Violation{
		violation(contracts.CategoryBudget, contracts.SeverityHigh),
		violation(contracts.CategoryTime, contracts.SeverityCritical),
		violation(contracts.CategoryBudget, contracts.SeverityLow),
	}
	assert.Equal(t, 75.0, CalculateSubscore(vs, contracts.CategoryBudget))
	assert.Equal(t, 70.0, CalculateSubscore(vs, contracts.CategoryTime))
	assert.Equal(t, 100.0, CalculateSubscore(vs, contracts.CategoryLegal))
}

func TestCalculateSubscore_FlooredAtZero(t *testing.T) {
	var vs []contracts.Violation
	for i := 0; i < 5; i++ {
		vs = append(vs, violation(contracts.CategoryLegal, contracts.SeverityCritical))
	}
	assert.Equal(t, 0.0, CalculateSubscore(vs, contracts.CategoryLegal))
}

func TestCalculateAll(t *testing.T) {
	got := CalculateAll([]contracts.Violation{violation(contracts.CategoryScope, contracts.SeverityMedium)})
	assert.Len(t, got, 6)
	assert.Equal(t, 90.0, got[contracts.CategoryScope])
	assert.Equal(t, 100.0, got[contracts.CategoryBudget])
}

func TestGroupByCategory(t *testing.T) {
	vs := []contracts.Violation{
		violation(contracts.CategoryScope, contracts.SeverityMedium),
		violation("UNKNOWN", contracts.SeverityMedium),
		violation(contracts.CategoryScope, contracts.SeverityLow),
	}
	got := GroupByCategory(vs)
	assert.Len(t, got, 6)
	assert.Len(t, got[contracts.CategoryScope], 2)
	assert.Equal(t, contracts.SeverityLow, got[contracts.CategoryScope][1].Severity)
	assert.NotNil(t, got[contracts.CategoryBudget])
	assert.Empty(t, got[contracts.CategoryBudget])
}
