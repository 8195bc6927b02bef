package contracts

import (
	"errors"
	"fmt"
	"time"
)

// AlertStatus is the lifecycle state of a persisted alert.
type AlertStatus string

const (
	AlertOpen      AlertStatus = "OPEN"
	AlertResolved  AlertStatus = "RESOLVED"
	AlertDismissed AlertStatus = "DISMISSED"
)

// Metadata keys stored on AlertRecord.Metadata.
const (
	MetaFingerprint = "fingerprint"
	MetaNotes       = "notes"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// CanTransition reports whether an alert may move from one status to another.
// Only OPEN -> RESOLVED and RESOLVED/DISMISSED -> OPEN are allowed.
func CanTransition(from, to AlertStatus) bool {
	switch from {
	case AlertOpen:
		return to == AlertResolved
	case AlertResolved, AlertDismissed:
		return to == AlertOpen
	default:
		return false
	}
}

// AlertCreate is a user-facing alert payload produced by the alert generator.
type AlertCreate struct {
	RuleID           string              `json:"rule_id"`
	Category         string              `json:"category,omitempty"`
	ScoreCategory    Category            `json:"score_category,omitempty"`
	Severity         Severity            `json:"severity"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	SourceClauseID   string              `json:"source_clause_id,omitempty"`
	RelatedClauseIDs []string            `json:"related_clause_ids,omitempty"`
	AffectedEntities map[string][]string `json:"affected_entities,omitempty"`
	Evidence         map[string]any      `json:"evidence,omitempty"`
	AnalysisID       string              `json:"analysis_id,omitempty"`
}

// Clone returns a deep copy.
func (a AlertCreate) Clone() AlertCreate {
	out := a
	out.RelatedClauseIDs = cloneStrings(a.RelatedClauseIDs)
	out.AffectedEntities = cloneEntities(a.AffectedEntities)
	out.Evidence = CloneMap(a.Evidence)
	return out
}

// AlertRecord is a persisted, deduplicated alert.
type AlertRecord struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"project_id"`
	RuleID              string              `json:"rule_id"`
	Category            string              `json:"category,omitempty"`
	ScoreCategory       Category            `json:"score_category,omitempty"`
	Severity            Severity            `json:"severity"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	Status              AlertStatus         `json:"status"`
	SourceClauseID      string              `json:"source_clause_id,omitempty"`
	RelatedClauseIDs    []string            `json:"related_clause_ids,omitempty"`
	AffectedEntities    map[string][]string `json:"affected_entities,omitempty"`
	Evidence            map[string]any      `json:"evidence,omitempty"`
	Metadata            map[string]any      `json:"metadata,omitempty"`
	AnalysisID          string              `json:"analysis_id,omitempty"`
	RequiresHumanReview bool                `json:"requires_human_review"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
	ResolvedBy          string              `json:"resolved_by,omitempty"`
	ResolutionReason    string              `json:"resolution_reason,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Fingerprint returns the content fingerprint stored in metadata, or "".
func (a *AlertRecord) Fingerprint() string {
	if a.Metadata == nil {
		return ""
	}
	fp, _ := a.Metadata[MetaFingerprint].(string)
	return fp
}

// SetFingerprint stores the content fingerprint in metadata.
func (a *AlertRecord) SetFingerprint(fp string) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[MetaFingerprint] = fp
}

// Notes returns the lifecycle notes stored in metadata.
func (a *AlertRecord) Notes() []string {
	if a.Metadata == nil {
		return nil
	}
	switch notes := a.Metadata[MetaNotes].(type) {
	case []string:
		return cloneStrings(notes)
	case []any:
		out := make([]string, 0, len(notes))
		for _, n := range notes {
			if s, ok := n.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AddNote appends a note unless an identical note is already present.
// It reports whether the note was added.
func (a *AlertRecord) AddNote(note string) bool {
	notes := a.Notes()
	for _, n := range notes {
		if n == note {
			return false
		}
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[MetaNotes] = append(notes, note)
	return true
}

// Resolve marks an OPEN alert as RESOLVED.
func (a *AlertRecord) Resolve(by, reason string, at time.Time) error {
	if !CanTransition(a.Status, AlertResolved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, AlertResolved)
	}
	resolvedAt := at
	a.Status = AlertResolved
	a.ResolvedAt = &resolvedAt
	a.ResolvedBy = by
	a.ResolutionReason = reason
	a.UpdatedAt = at
	return nil
}

// Reopen moves a RESOLVED or DISMISSED alert back to OPEN, clearing its
// resolution metadata and recording note once.
func (a *AlertRecord) Reopen(note string, at time.Time) error {
	if !CanTransition(a.Status, AlertOpen) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, AlertOpen)
	}
	a.Status = AlertOpen
	a.ResolvedAt = nil
	a.ResolvedBy = ""
	a.ResolutionReason = ""
	if note != "" {
		a.AddNote(note)
	}
	a.UpdatedAt = at
	return nil
}

// ToViolation converts the alert back into the violation it represents, for
// rescoring.
func (a *AlertRecord) ToViolation() Violation {
	return Violation{
		RuleID:   a.RuleID,
		Severity: a.Severity,
		Category: a.ScoreCategory,
		Evidence: CloneMap(a.Evidence),
	}
}

// Clone returns a deep copy.
func (a *AlertRecord) Clone() *AlertRecord {
	if a == nil {
		return nil
	}
	out := *a
	out.RelatedClauseIDs = cloneStrings(a.RelatedClauseIDs)
	out.AffectedEntities = cloneEntities(a.AffectedEntities)
	out.Evidence = CloneMap(a.Evidence)
	out.Metadata = CloneMap(a.Metadata)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneEntities(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = cloneStrings(v)
	}
	return out
}
