package contracts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by adapters when a record does not exist.
var ErrNotFound = errors.New("not found")

// Domain event types published by the orchestration service.
const (
	EventScoreLow       = "score.low"
	EventGamingDetected = "gaming.detected"
	EventRecalculated   = "recalculated"
)

// AlertPage is one page of a project's alerts.
type AlertPage struct {
	Items      []*AlertRecord
	HasMore    bool
	NextCursor string
}

// AlertRepository persists alert records between reconciliation runs.
// Create and Update may be staged until Commit. Rollback drops every staged
// write that has not been committed.
type AlertRepository interface {
	ListForProject(ctx context.Context, projectID, cursor string, limit int) (*AlertPage, error)
	Create(ctx context.Context, alert *AlertRecord) (*AlertRecord, error)
	Update(ctx context.Context, alert *AlertRecord) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// EventPublisher delivers domain events to the host application.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// ResultCache stores the latest calculation result per project. Get reports
// a miss as (nil, false, nil). Implementations must be safe for concurrent use
// and must never expose a partially written entry.
type ResultCache interface {
	Get(ctx context.Context, projectID string) (*CalculationResult, bool, error)
	Set(ctx context.Context, result *CalculationResult) error
	Delete(ctx context.Context, projectID string) error
	Clear(ctx context.Context) error
}
