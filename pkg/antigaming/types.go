// Package antigaming inspects score and alert-mutation history for patterns
// of deliberate score manipulation. Detection is a pure function of the
// supplied history and reference instant; the package owns no event storage.
package antigaming

import "time"

// EventType classifies a history event.
type EventType string

const (
	EventCreated       EventType = "created"
	EventResolved      EventType = "resolved"
	EventChange        EventType = "change"
	EventWeightChanged EventType = "weight_changed"
)

// Event is one write-once entry of alert/score mutation history.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// WeightChangePct is the relative weight change in percent, for
	// weight_changed events.
	WeightChangePct *float64 `json:"weight_change_pct,omitempty"`
}

// Violation tags a detected manipulation pattern.
type Violation string

const (
	MassChanges         Violation = "mass_changes"
	ResolveReintroduce  Violation = "resolve_reintroduce"
	SuspiciousHighScore Violation = "suspicious_high_score"
	WeightManipulation  Violation = "weight_manipulation"
)

// ReasonMultiple is the result reason when more than one pattern fired.
const ReasonMultiple = "multiple_violations"

// PenaltyPoints is the fixed penalty contributed by each violation type.
var PenaltyPoints = map[Violation]int{
	MassChanges:         5,
	ResolveReintroduce:  10,
	WeightManipulation:  15,
	SuspiciousHighScore: 20,
}

// Input is the full history and context for one detection call.
type Input struct {
	Events        []Event
	Score         *float64
	DocumentCount *int
	Now           time.Time
}

// Result is the outcome of one detection call.
type Result struct {
	IsGaming      bool        `json:"is_gaming"`
	Violations    []Violation `json:"violations"`
	PenaltyPoints int         `json:"penalty_points"`
	AuditLogs     []string    `json:"audit_logs"`
	Reason        string      `json:"reason"`
}

// Tags returns the violation tags as strings.
func (r Result) Tags() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = string(v)
	}
	return out
}

// Has reports whether v was detected.
func (r Result) Has(v Violation) bool {
	for _, got := range r.Violations {
		if got == v {
			return true
		}
	}
	return false
}
