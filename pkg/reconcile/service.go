// Package reconcile keeps a project's persisted alerts in sync with the
// latest detected violations.
//
// Alerts are matched across runs by a content fingerprint. A run creates
// alerts for new fingerprints, refreshes open ones, reopens resolved or
// dismissed ones that regressed and, optionally, auto-resolves open alerts
// whose fingerprint is no longer reported.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/coherence/pkg/alerts"
	"github.com/Mindburn-Labs/coherence/pkg/audit"
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

const (
	// PageSize is the page size used when loading existing alerts.
	PageSize = 100

	SystemActor     = "system"
	RegressionNote  = "Regression detected automatically"
	AutoResolveNote = "Resolved automatically: no longer detected"
)

// ErrCursorLoop is returned when the repository hands back a cursor it has
// already returned.
var ErrCursorLoop = errors.New("repository returned a repeated cursor")

// Stats counts what one run did.
type Stats struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Reopened     int `json:"reopened"`
	AutoResolved int `json:"auto_resolved"`
	Backfilled   int `json:"backfilled"`
}

// Service reconciles alerts through an AlertRepository. Runs for different
// projects may proceed concurrently; runs for the same project must be
// serialized by the caller or the repository.
type Service struct {
	repo      contracts.AlertRepository
	generator *alerts.Generator
	policy    ReviewPolicy
	auditor   audit.Logger
	clock     func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithGenerator(g *alerts.Generator) Option { return func(s *Service) { s.generator = g } }
func WithReviewPolicy(p ReviewPolicy) Option { return func(s *Service) { s.policy = p } }
func WithAuditor(a audit.Logger) Option { return func(s *Service) { s.auditor = a } }
func WithClock(c func() time.Time) Option { return func(s *Service) { s.clock = c } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService creates a reconciliation service.
func NewService(repo contracts.AlertRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		generator: alerts.NewGenerator(),
		policy:    DefaultReviewPolicy,
		auditor:   audit.Nop(),
		clock:     time.Now,
		newID:     func() string { return uuid.New().String() },
		logger:    slog.Default().With("component", "reconcile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessRuleResults generates alerts from rule results and reconciles them.
func (s *Service) ProcessRuleResults(ctx context.Context, projectID string, results []contracts.RuleResult, analysisID string, autoResolve bool) ([]*contracts.AlertRecord, error) {
	return s.ProcessViolations(ctx, projectID, s.generator.GenerateAll(results, analysisID), autoResolve)
}

// ProcessViolations reconciles incoming alerts against the project's stored
// alerts and returns every record touched by the run.
func (s *Service) ProcessViolations(ctx context.Context, projectID string, incoming []contracts.AlertCreate, autoResolve bool) ([]*contracts.AlertRecord, error) {
	records, _, err := s.Reconcile(ctx, projectID, incoming, autoResolve)
	return records, err
}

// Reconcile is ProcessViolations that also reports run statistics. A failed
// run discards every write it staged.
func (s *Service) Reconcile(ctx context.Context, projectID string, incoming []contracts.AlertCreate, autoResolve bool) ([]*contracts.AlertRecord, Stats, error) {
	records, stats, err := s.reconcile(ctx, projectID, incoming, autoResolve)
	if err != nil {
		if rbErr := s.repo.Rollback(ctx); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback alerts: %w", rbErr))
		}
		return nil, stats, err
	}
	return records, stats, nil
}

func (s *Service) reconcile(ctx context.Context, projectID string, incoming []contracts.AlertCreate, autoResolve bool) ([]*contracts.AlertRecord, Stats, error) {
	var stats Stats
	now := s.clock().UTC()

	existing, err := s.loadAll(ctx, projectID)
	if err != nil {
		return nil, stats, err
	}

	byFingerprint := make(map[string]*contracts.AlertRecord, len(existing))
	var backfilled []*contracts.AlertRecord
	for _, rec := range existing {
		fp := rec.Fingerprint()
		if fp == "" {
			fp = FingerprintRecord(rec)
			rec.SetFingerprint(fp)
			backfilled = append(backfilled, rec)
			stats.Backfilled++
		}
		// First stored alert wins for duplicate fingerprints.
		if _, dup := byFingerprint[fp]; !dup {
			byFingerprint[fp] = rec
		}
	}
	if len(backfilled) > 0 {
		s.logger.Debug("backfilled alert fingerprints", "project_id", projectID, "count", len(backfilled))
	}

	seen := make(map[string]bool, len(incoming))
	touched := make(map[string]bool)
	var processed []*contracts.AlertRecord

	for _, in := range incoming {
		fp := FingerprintCreate(in)
		if seen[fp] {
			continue
		}
		seen[fp] = true

		rec, ok := byFingerprint[fp]
		if !ok {
			created, err := s.create(ctx, projectID, fp, in, now)
			if err != nil {
				return nil, stats, err
			}
			stats.Created++
			processed = append(processed, created)
			continue
		}

		if rec.Status != contracts.AlertOpen {
			from := rec.Status
			if err := rec.Reopen(RegressionNote, now); err != nil {
				return nil, stats, fmt.Errorf("reopen alert %s: %w", rec.ID, err)
			}
			stats.Reopened++
			s.record(ctx, "alert.reopened", projectID, rec, map[string]any{"from": string(from)})
		} else {
			stats.Updated++
		}
		s.apply(rec, in, now)
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, stats, fmt.Errorf("update alert %s: %w", rec.ID, err)
		}
		touched[rec.ID] = true
		processed = append(processed, rec)
	}

	if autoResolve {
		for _, rec := range existing {
			if rec.Status != contracts.AlertOpen || seen[rec.Fingerprint()] {
				continue
			}
			if err := rec.Resolve(SystemActor, AutoResolveNote, now); err != nil {
				return nil, stats, fmt.Errorf("resolve alert %s: %w", rec.ID, err)
			}
			rec.AddNote(AutoResolveNote)
			if err := s.repo.Update(ctx, rec); err != nil {
				return nil, stats, fmt.Errorf("update alert %s: %w", rec.ID, err)
			}
			stats.AutoResolved++
			touched[rec.ID] = true
			processed = append(processed, rec)
			s.record(ctx, "alert.auto_resolved", projectID, rec, nil)
		}
	}

	for _, rec := range backfilled {
		if touched[rec.ID] {
			continue
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, stats, fmt.Errorf("backfill alert %s: %w", rec.ID, err)
		}
	}

	if err := s.repo.Commit(ctx); err != nil {
		return nil, stats, fmt.Errorf("commit alerts: %w", err)
	}

	s.logger.Info("alerts reconciled",
		"project_id", projectID,
		"created", stats.Created,
		"updated", stats.Updated,
		"reopened", stats.Reopened,
		"auto_resolved", stats.AutoResolved,
	)
	return processed, stats, nil
}

// loadAll pages through every stored alert of the project.
func (s *Service) loadAll(ctx context.Context, projectID string) ([]*contracts.AlertRecord, error) {
	var all []*contracts.AlertRecord
	cursor := ""
	seenCursors := make(map[string]bool)
	for {
		page, err := s.repo.ListForProject(ctx, projectID, cursor, PageSize)
		if err != nil {
			return nil, fmt.Errorf("list alerts for %s: %w", projectID, err)
		}
		if page == nil {
			break
		}
		all = append(all, page.Items...)
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		if seenCursors[page.NextCursor] {
			return nil, fmt.Errorf("list alerts for %s: %w", projectID, ErrCursorLoop)
		}
		seenCursors[page.NextCursor] = true
		cursor = page.NextCursor
	}
	return all, nil
}

func (s *Service) create(ctx context.Context, projectID, fp string, in contracts.AlertCreate, now time.Time) (*contracts.AlertRecord, error) {
	rec := &contracts.AlertRecord{
		ID:        s.newID(),
		ProjectID: projectID,
		Status:    contracts.AlertOpen,
		CreatedAt: now,
	}
	s.apply(rec, in, now)
	rec.SetFingerprint(fp)

	created, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create alert for rule %s: %w", in.RuleID, err)
	}
	if created == nil {
		created = rec
	}
	return created, nil
}

// apply copies the mutable fields of an incoming payload onto a record.
func (s *Service) apply(rec *contracts.AlertRecord, in contracts.AlertCreate, now time.Time) {
	in = in.Clone()
	rec.RuleID = in.RuleID
	rec.Category = in.Category
	rec.ScoreCategory = in.ScoreCategory
	rec.Severity = in.Severity
	rec.Title = in.Title
	rec.Description = in.Description
	rec.SourceClauseID = in.SourceClauseID
	rec.RelatedClauseIDs = in.RelatedClauseIDs
	rec.AffectedEntities = in.AffectedEntities
	rec.Evidence = in.Evidence
	if in.AnalysisID != "" {
		rec.AnalysisID = in.AnalysisID
	}
	rec.RequiresHumanReview = s.policy.RequiresReview(in)
	rec.UpdatedAt = now
}

func (s *Service) record(ctx context.Context, action, projectID string, rec *contracts.AlertRecord, meta map[string]any) {
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["alert_id"] = rec.ID
	meta["rule_id"] = rec.RuleID
	meta["fingerprint"] = rec.Fingerprint()
	if err := s.auditor.Record(ctx, audit.EventAlert, action, "project/"+projectID, meta); err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
