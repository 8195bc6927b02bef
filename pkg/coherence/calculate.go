package coherence

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Mindburn-Labs/coherence/pkg/antigaming"
	"github.com/Mindburn-Labs/coherence/pkg/audit"
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/observability"
	"github.com/Mindburn-Labs/coherence/pkg/scoring"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

// ProjectInput is everything one calculation needs to know about a project.
type ProjectInput struct {
	ProjectID     string                `json:"project_id"`
	ProjectType   string                `json:"project_type,omitempty"`
	Violations    []contracts.Violation `json:"violations"`
	DocumentCount *int                  `json:"document_count,omitempty"`
	Events        []antigaming.Event    `json:"events,omitempty"`
}

// CalculateCommand requests one calculation. A nil Weights resolves the
// profile registered for the project type, or the default profile.
type CalculateCommand struct {
	Input    ProjectInput     `json:"input"`
	Weights  *weights.Profile `json:"weights,omitempty"`
	UseCache bool             `json:"use_cache"`
}

// CalculateCoherence runs a full calculation. With UseCache set, a cached
// result for the project is returned unchanged and a fresh result is cached.
func (s *Service) CalculateCoherence(ctx context.Context, cmd CalculateCommand) (*contracts.CalculationResult, error) {
	return s.track(ctx, "coherence.calculate", cmd, cmd.UseCache)
}

// CalculateBatch calculates every command in order and caches each result.
// The first failure aborts the batch.
func (s *Service) CalculateBatch(ctx context.Context, cmds []CalculateCommand) ([]*contracts.CalculationResult, error) {
	out := make([]*contracts.CalculationResult, 0, len(cmds))
	for i, cmd := range cmds {
		res, err := s.track(ctx, "coherence.calculate_batch", cmd, true)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// GetCachedResult returns the cached result for a project.
func (s *Service) GetCachedResult(ctx context.Context, projectID string) (*contracts.CalculationResult, bool, error) {
	res, ok, err := s.cache.Get(ctx, projectID)
	if err != nil {
		return nil, false, fmt.Errorf("read cached result: %w", err)
	}
	return res, ok, nil
}

// ClearCache drops the cached result of one project, or of every project
// when projectID is empty.
func (s *Service) ClearCache(ctx context.Context, projectID string) error {
	var err error
	if projectID == "" {
		err = s.cache.Clear(ctx)
	} else {
		err = s.cache.Delete(ctx, projectID)
	}
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

func (s *Service) track(ctx context.Context, op string, cmd CalculateCommand, store bool) (*contracts.CalculationResult, error) {
	projectID := strings.TrimSpace(cmd.Input.ProjectID)
	if projectID == "" {
		return nil, ErrMissingProject
	}
	ctx, done := s.telemetry.TrackOperation(ctx, op, observability.AttrProjectID.String(projectID))
	res, err := s.calculate(ctx, projectID, cmd, store)
	done(err)
	return res, err
}

func (s *Service) calculate(ctx context.Context, projectID string, cmd CalculateCommand, store bool) (*contracts.CalculationResult, error) {
	if cmd.UseCache {
		cached, ok, err := s.cache.Get(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("read cached result: %w", err)
		}
		if ok {
			s.logger.DebugContext(ctx, "cached result returned", "project_id", projectID)
			return cached, nil
		}
	}

	res, gaming, err := s.compute(projectID, cmd)
	if err != nil {
		return nil, err
	}

	if store {
		if err := s.cache.Set(ctx, res); err != nil {
			return nil, fmt.Errorf("cache result: %w", err)
		}
	}

	s.telemetry.RecordScore(ctx, res.GlobalScore, observability.AttrWeightProfile.String(res.WeightProfile))
	if gaming.IsGaming {
		s.telemetry.RecordGaming(ctx, res.GamingViolations)
		if err := s.auditor.Record(ctx, audit.EventGaming, "detected", projectID, map[string]any{
			"violations":     res.GamingViolations,
			"penalty_points": res.PenaltyPoints,
			"reason":         gaming.Reason,
			"audit_logs":     gaming.AuditLogs,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit record failed", "project_id", projectID, "error", err)
		}
	}

	if err := s.publishCalculated(ctx, res, gaming); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "coherence calculated",
		"project_id", projectID,
		"global_score", res.GlobalScore,
		"gaming", res.GamingDetected,
		"alerts", len(res.Alerts),
	)
	return res, nil
}

// compute is the pure part of a calculation.
func (s *Service) compute(projectID string, cmd CalculateCommand) (*contracts.CalculationResult, antigaming.Result, error) {
	in := cmd.Input
	profile := s.resolveProfile(cmd.Weights, in.ProjectType)

	subscores := scoring.CalculateAll(in.Violations)
	raw, err := s.aggregator.CalculateGlobal(subscores, &profile, true)
	if err != nil {
		return nil, antigaming.Result{}, fmt.Errorf("calculate %s: %w", projectID, err)
	}

	now := s.clock()
	gaming := s.detector.Detect(antigaming.Input{
		Events:        in.Events,
		Score:         &raw,
		DocumentCount: in.DocumentCount,
		Now:           now,
	})

	global := int(math.Round(raw))
	if s.penalty && gaming.IsGaming {
		global = max(0, global-gaming.PenaltyPoints)
	}

	calcID := s.newID()
	results := make([]contracts.RuleResult, len(in.Violations))
	for i, v := range in.Violations {
		results[i] = contracts.RuleResultFromViolation(v)
	}

	res := &contracts.CalculationResult{
		CalculationID:      calcID,
		ProjectID:          projectID,
		GlobalScore:        global,
		RawGlobalScore:     raw,
		CategoryScores:     subscores,
		CategoryViolations: scoring.GroupByCategory(in.Violations),
		Alerts:             s.generator.GenerateAll(results, calcID),
		GamingDetected:     gaming.IsGaming,
		GamingViolations:   gaming.Tags(),
		PenaltyPoints:      gaming.PenaltyPoints,
		WeightProfile:      profile.Name,
		CalculatedAt:       now,
	}
	return res, gaming, nil
}

func (s *Service) resolveProfile(explicit *weights.Profile, projectType string) weights.Profile {
	if explicit != nil {
		return explicit.Clone()
	}
	return s.registry.GetByProjectType(projectType)
}

func (s *Service) publishCalculated(ctx context.Context, res *contracts.CalculationResult, gaming antigaming.Result) error {
	if res.GlobalScore < ScoreLowThreshold {
		if err := s.publisher.Publish(ctx, contracts.EventScoreLow, map[string]any{
			"project_id":   res.ProjectID,
			"global_score": res.GlobalScore,
			"threshold":    ScoreLowThreshold,
		}); err != nil {
			return fmt.Errorf("publish %s: %w", contracts.EventScoreLow, err)
		}
	}
	if gaming.IsGaming {
		if err := s.publisher.Publish(ctx, contracts.EventGamingDetected, map[string]any{
			"project_id":     res.ProjectID,
			"violations":     res.GamingViolations,
			"penalty_points": res.PenaltyPoints,
			"reason":         gaming.Reason,
		}); err != nil {
			return fmt.Errorf("publish %s: %w", contracts.EventGamingDetected, err)
		}
	}
	return nil
}
