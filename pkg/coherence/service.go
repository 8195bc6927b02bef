// Package coherence is the top-level entry point of the engine.
//
// A Service runs full calculations and alert-driven recalculations. The
// latest result per project is kept in a ResultCache.
package coherence

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/coherence/pkg/alerts"
	"github.com/Mindburn-Labs/coherence/pkg/antigaming"
	"github.com/Mindburn-Labs/coherence/pkg/audit"
	"github.com/Mindburn-Labs/coherence/pkg/cache"
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/events"
	"github.com/Mindburn-Labs/coherence/pkg/observability"
	"github.com/Mindburn-Labs/coherence/pkg/reconcile"
	"github.com/Mindburn-Labs/coherence/pkg/scoring"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

const (
	// ScoreLowThreshold is the global score below which score.low is published.
	ScoreLowThreshold = 70
	// RecalculatedDeltaThreshold is the absolute score change that publishes
	// a recalculated event.
	RecalculatedDeltaThreshold = 10
)

var (
	ErrInvalidAction  = errors.New("invalid recalculation action")
	ErrMissingProject = errors.New("project id is required")
	ErrNoRepository   = errors.New("no alert repository configured")
)

// Service orchestrates scoring, gaming detection, alert generation and
// reconciliation. It is safe for concurrent use; the result cache is the
// only shared mutable state.
type Service struct {
	registry   *weights.Registry
	aggregator *scoring.Aggregator
	detector   *antigaming.Detector
	generator  *alerts.Generator
	cache      contracts.ResultCache
	publisher  contracts.EventPublisher
	repo       contracts.AlertRepository
	reconciler *reconcile.Service
	telemetry  *observability.Provider
	auditor    audit.Logger
	penalty    bool
	clock      func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithRegistry(r *weights.Registry) Option { return func(s *Service) { s.registry = r } }
func WithAggregator(a *scoring.Aggregator) Option { return func(s *Service) { s.aggregator = a } }
func WithDetector(d *antigaming.Detector) Option { return func(s *Service) { s.detector = d } }
func WithGenerator(g *alerts.Generator) Option { return func(s *Service) { s.generator = g } }
func WithCache(c contracts.ResultCache) Option { return func(s *Service) { s.cache = c } }
func WithPublisher(p contracts.EventPublisher) Option { return func(s *Service) { s.publisher = p } }
func WithRepository(r contracts.AlertRepository) Option { return func(s *Service) { s.repo = r } }
func WithReconciler(r *reconcile.Service) Option { return func(s *Service) { s.reconciler = r } }
func WithTelemetry(p *observability.Provider) Option { return func(s *Service) { s.telemetry = p } }
func WithAuditor(a audit.Logger) Option { return func(s *Service) { s.auditor = a } }
func WithClock(c func() time.Time) Option { return func(s *Service) { s.clock = c } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithGamingPenalty controls whether gaming penalty points are subtracted
// from the reported global score. It is on by default.
func WithGamingPenalty(enabled bool) Option { return func(s *Service) { s.penalty = enabled } }

// NewService creates a service with in-process defaults for every
// collaborator that is not supplied. Without a repository, reconciliation
// and repository-backed recalculation return ErrNoRepository.
func NewService(opts ...Option) *Service {
	s := &Service{
		penalty: true,
		clock:   time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default().With("component", "coherence"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = weights.NewRegistry()
	}
	if s.aggregator == nil {
		s.aggregator = scoring.NewAggregator()
	}
	if s.detector == nil {
		s.detector = antigaming.NewDetector()
	}
	if s.generator == nil {
		s.generator = alerts.NewGenerator()
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache()
	}
	if s.publisher == nil {
		s.publisher = events.Nop()
	}
	if s.telemetry == nil {
		s.telemetry = observability.Noop()
	}
	if s.auditor == nil {
		s.auditor = audit.Nop()
	}
	if s.reconciler == nil && s.repo != nil {
		s.reconciler = reconcile.NewService(s.repo,
			reconcile.WithGenerator(s.generator),
			reconcile.WithAuditor(s.auditor),
			reconcile.WithClock(s.clock),
			reconcile.WithIDGenerator(s.newID),
		)
	}
	return s
}

// Registry returns the weight profile registry used to resolve profiles.
func (s *Service) Registry() *weights.Registry { return s.registry }

// Detector returns the anti-gaming detector.
func (s *Service) Detector() *antigaming.Detector { return s.detector }
