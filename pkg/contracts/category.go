// Coherence scoring dimensions and severities.
package contracts

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is one of the six fixed compliance dimensions scored independently.
type Category string

const (
	CategoryScope     Category = "SCOPE"
	CategoryBudget    Category = "BUDGET"
	CategoryQuality   Category = "QUALITY"
	CategoryTechnical Category = "TECHNICAL"
	CategoryLegal     Category = "LEGAL"
	CategoryTime      Category = "TIME"
)

var allCategories = []Category{
	CategoryScope,
	CategoryBudget,
	CategoryQuality,
	CategoryTechnical,
	CategoryLegal,
	CategoryTime,
}

// AllCategories returns the closed category set in canonical order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is one of the six categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryScope, CategoryBudget, CategoryQuality, CategoryTechnical, CategoryLegal, CategoryTime:
		return true
	default:
		return false
	}
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(upper(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Severity of a rule violation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity. Comparison is exact; use
// Normalize for legacy lower-case values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Normalize upper-cases legacy severity text ("high", " Medium ").
func (s Severity) Normalize() Severity {
	return Severity(upper(string(s)))
}

// ParseSeverity parses severity text case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s).Normalize()
	return sev, sev.Valid()
}

// Casers carry state and must not be shared between goroutines.
func upper(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}
