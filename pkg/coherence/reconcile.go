package coherence

import (
	"context"
	"strings"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/observability"
	"github.com/Mindburn-Labs/coherence/pkg/reconcile"
)

// ReconcileAlerts generates alerts from rule results and reconciles them
// against the project's persisted alerts.
func (s *Service) ReconcileAlerts(ctx context.Context, projectID string, results []contracts.RuleResult, analysisID string, autoResolve bool) ([]*contracts.AlertRecord, reconcile.Stats, error) {
	return s.reconcileCreates(ctx, projectID, s.generator.GenerateAll(results, analysisID), autoResolve)
}

// ReconcileCalculation reconciles the alerts generated by a calculation.
func (s *Service) ReconcileCalculation(ctx context.Context, res *contracts.CalculationResult, autoResolve bool) ([]*contracts.AlertRecord, reconcile.Stats, error) {
	return s.reconcileCreates(ctx, res.ProjectID, res.Alerts, autoResolve)
}

func (s *Service) reconcileCreates(ctx context.Context, projectID string, incoming []contracts.AlertCreate, autoResolve bool) ([]*contracts.AlertRecord, reconcile.Stats, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, reconcile.Stats{}, ErrMissingProject
	}
	if s.reconciler == nil {
		return nil, reconcile.Stats{}, ErrNoRepository
	}

	ctx, done := s.telemetry.TrackOperation(ctx, "coherence.reconcile", observability.AttrProjectID.String(projectID))
	records, stats, err := s.reconciler.Reconcile(ctx, projectID, incoming, autoResolve)
	done(err)
	if err != nil {
		return nil, stats, err
	}

	s.telemetry.RecordAlertTransitions(ctx, "created", stats.Created)
	s.telemetry.RecordAlertTransitions(ctx, "updated", stats.Updated)
	s.telemetry.RecordAlertTransitions(ctx, "reopened", stats.Reopened)
	s.telemetry.RecordAlertTransitions(ctx, "auto_resolved", stats.AutoResolved)
	if stats.Reopened > 0 || stats.AutoResolved > 0 {
		if err := s.cache.Delete(ctx, projectID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed", "project_id", projectID, "error", err)
		}
	}
	return records, stats, nil
}
