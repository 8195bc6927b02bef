package coherence

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/observability"
	"github.com/Mindburn-Labs/coherence/pkg/reconcile"
	"github.com/Mindburn-Labs/coherence/pkg/scoring"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

// Action is the user action that prompted a recalculation.
type Action string

const (
	ActionResolved     Action = "RESOLVED"
	ActionDismissed    Action = "DISMISSED"
	ActionAcknowledged Action = "ACKNOWLEDGED"
)

// ParseAction parses an action name, ignoring case and surrounding space.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionResolved, ActionDismissed, ActionAcknowledged:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// RecalculateRequest describes an alert action on a project. When Alerts is
// nil the project's OPEN alerts are loaded from the repository.
type RecalculateRequest struct {
	ProjectID   string                   `json:"project_id"`
	ProjectType string                   `json:"project_type,omitempty"`
	AlertIDs    []string                 `json:"alert_ids"`
	Action      Action                   `json:"action"`
	Alerts      []*contracts.AlertRecord `json:"alerts,omitempty"`
	Weights     *weights.Profile         `json:"weights,omitempty"`
}

// RecalculateResult compares the scores before and after an alert action.
type RecalculateResult struct {
	ProjectID              string                         `json:"project_id"`
	Action                 Action                         `json:"action"`
	PreviousGlobalScore    int                            `json:"previous_global_score"`
	NewGlobalScore         int                            `json:"new_global_score"`
	PreviousCategoryScores map[contracts.Category]float64 `json:"previous_category_scores"`
	NewCategoryScores      map[contracts.Category]float64 `json:"new_category_scores"`
	ScoreDelta             int                            `json:"score_delta"`
	ResolvedAlertIDs       []string                       `json:"resolved_alert_ids"`
	RemainingAlerts        []*contracts.AlertRecord       `json:"remaining_alerts"`
	RecalculationTriggered bool                           `json:"recalculation_triggered"`
}

// RecalculateOnAlert rescores a project without the alerts resolved or
// dismissed by this action. Only OPEN alerts contribute to either score.
// ACKNOWLEDGED and empty id lists leave the scores unchanged.
func (s *Service) RecalculateOnAlert(ctx context.Context, req RecalculateRequest) (*RecalculateResult, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, ErrMissingProject
	}
	action, err := ParseAction(string(req.Action))
	if err != nil {
		return nil, err
	}

	ctx, done := s.telemetry.TrackOperation(ctx, "coherence.recalculate",
		observability.AttrProjectID.String(projectID),
		observability.AttrAction.String(string(action)),
	)
	res, err := s.recalculate(ctx, projectID, action, req)
	done(err)
	return res, err
}

func (s *Service) recalculate(ctx context.Context, projectID string, action Action, req RecalculateRequest) (*RecalculateResult, error) {
	current := req.Alerts
	if current == nil {
		loaded, err := s.loadOpen(ctx, projectID)
		if err != nil {
			return nil, err
		}
		current = loaded
	}
	open := openAlerts(current)

	resolved := []string{}
	if action != ActionAcknowledged {
		resolved = uniqueIDs(req.AlertIDs)
	}
	triggered := len(resolved) > 0

	profile := s.resolveProfile(req.Weights, req.ProjectType)
	prevGlobal, prevScores, err := s.score(open, profile)
	if err != nil {
		return nil, fmt.Errorf("recalculate %s: %w", projectID, err)
	}

	res := &RecalculateResult{
		ProjectID:              projectID,
		Action:                 action,
		PreviousGlobalScore:    prevGlobal,
		NewGlobalScore:         prevGlobal,
		PreviousCategoryScores: prevScores,
		NewCategoryScores:      maps.Clone(prevScores),
		ResolvedAlertIDs:       resolved,
		RemainingAlerts:        open,
		RecalculationTriggered: triggered,
	}
	if !triggered {
		return res, nil
	}

	drop := make(map[string]bool, len(resolved))
	for _, id := range resolved {
		drop[id] = true
	}
	remaining := make([]*contracts.AlertRecord, 0, len(open))
	for _, a := range open {
		if !drop[a.ID] {
			remaining = append(remaining, a)
		}
	}

	newGlobal, newScores, err := s.score(remaining, profile)
	if err != nil {
		return nil, fmt.Errorf("recalculate %s: %w", projectID, err)
	}
	res.NewGlobalScore = newGlobal
	res.NewCategoryScores = newScores
	res.ScoreDelta = newGlobal - prevGlobal
	res.RemainingAlerts = remaining

	if err := s.cache.Delete(ctx, projectID); err != nil {
		return nil, fmt.Errorf("invalidate cached result: %w", err)
	}

	if abs(res.ScoreDelta) >= RecalculatedDeltaThreshold {
		if err := s.publisher.Publish(ctx, contracts.EventRecalculated, map[string]any{
			"project_id":     projectID,
			"action":         string(action),
			"previous_score": prevGlobal,
			"new_score":      newGlobal,
			"delta":          res.ScoreDelta,
			"resolved_ids":   resolved,
		}); err != nil {
			return nil, fmt.Errorf("publish %s: %w", contracts.EventRecalculated, err)
		}
	}

	s.logger.InfoContext(ctx, "coherence recalculated",
		"project_id", projectID,
		"action", string(action),
		"delta", res.ScoreDelta,
		"resolved", len(resolved),
	)
	return res, nil
}

func (s *Service) score(alertList []*contracts.AlertRecord, profile weights.Profile) (int, map[contracts.Category]float64, error) {
	violations := make([]contracts.Violation, len(alertList))
	for i, a := range alertList {
		violations[i] = a.ToViolation()
	}
	subscores := scoring.CalculateAll(violations)
	raw, err := s.aggregator.CalculateGlobal(subscores, &profile, true)
	if err != nil {
		return 0, nil, err
	}
	return int(math.Round(raw)), subscores, nil
}

// loadOpen pages through the repository and keeps OPEN alerts.
func (s *Service) loadOpen(ctx context.Context, projectID string) ([]*contracts.AlertRecord, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	var out []*contracts.AlertRecord
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := s.repo.ListForProject(ctx, projectID, cursor, reconcile.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list alerts for %s: %w", projectID, err)
		}
		if page == nil {
			return out, nil
		}
		out = append(out, openAlerts(page.Items)...)
		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}
		if seen[page.NextCursor] {
			return nil, fmt.Errorf("list alerts for %s: %w", projectID, reconcile.ErrCursorLoop)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}

func openAlerts(in []*contracts.AlertRecord) []*contracts.AlertRecord {
	out := make([]*contracts.AlertRecord, 0, len(in))
	for _, a := range in {
		if a != nil && a.Status == contracts.AlertOpen {
			out = append(out, a)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
