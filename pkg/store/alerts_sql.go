package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Dialect selects placeholder syntax and schema for a SQL backend.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// Rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var alertsSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	score_category TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_clause_id TEXT NOT NULL DEFAULT '',
	related_clause_ids TEXT NOT NULL DEFAULT '[]',
	affected_entities TEXT NOT NULL DEFAULT '{}',
	evidence TEXT NOT NULL DEFAULT '{}',
	metadata TEXT NOT NULL DEFAULT '{}',
	fingerprint TEXT NOT NULL DEFAULT '',
	analysis_id TEXT NOT NULL DEFAULT '',
	requires_human_review BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TEXT,
	resolved_by TEXT NOT NULL DEFAULT '',
	resolution_reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_project ON alerts (project_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts (project_id, fingerprint)`,
}

const alertColumns = `id, project_id, rule_id, category, score_category, severity, title, description, status,
	source_clause_id, related_clause_ids, affected_entities, evidence, metadata, fingerprint, analysis_id,
	requires_human_review, resolved_at, resolved_by, resolution_reason, created_at, updated_at`

// SQLAlertRepository is an AlertRepository over database/sql. Create and
// Update are staged in memory and written in one transaction by Commit.
type SQLAlertRepository struct {
	db      *sql.DB
	dialect Dialect

	mu     sync.Mutex
	staged []stagedOp
}

// NewPostgresAlertRepository wraps a lib/pq connection. Call Init to create
// the schema.
func NewPostgresAlertRepository(db *sql.DB) *SQLAlertRepository {
	return &SQLAlertRepository{db: db, dialect: DialectPostgres}
}

// NewSQLiteAlertRepository wraps a modernc.org/sqlite connection and migrates
// the schema.
func NewSQLiteAlertRepository(db *sql.DB) (*SQLAlertRepository, error) {
	r := &SQLAlertRepository{db: db, dialect: DialectSQLite}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Init creates the alerts table if needed.
func (r *SQLAlertRepository) Init(ctx context.Context) error {
	return r.migrate(ctx)
}

func (r *SQLAlertRepository) migrate(ctx context.Context) error {
	for _, stmt := range alertsSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate alerts (%s): %w", r.dialect, err)
		}
	}
	return nil
}

func (r *SQLAlertRepository) ListForProject(ctx context.Context, projectID, cursor string, limit int) (*contracts.AlertPage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.dialect.Rebind(`SELECT ` + alertColumns + `
		FROM alerts
		WHERE project_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`)

	rows, err := r.db.QueryContext(ctx, query, projectID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := &contracts.AlertPage{Items: make([]*contracts.AlertRecord, 0, limit)}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasMore = true
		page.NextCursor = page.Items[limit-1].ID
	}
	return page, nil
}

func (r *SQLAlertRepository) Create(ctx context.Context, alert *contracts.AlertRecord) (*contracts.AlertRecord, error) {
	if alert.ID == "" {
		return nil, fmt.Errorf("create alert: missing id")
	}
	r.mu.Lock()
	r.staged = append(r.staged, stagedOp{kind: opCreate, alert: alert.Clone()})
	r.mu.Unlock()
	return alert.Clone(), nil
}

func (r *SQLAlertRepository) Update(ctx context.Context, alert *contracts.AlertRecord) error {
	r.mu.Lock()
	r.staged = append(r.staged, stagedOp{kind: opUpdate, alert: alert.Clone()})
	r.mu.Unlock()
	return nil
}

// Commit writes every staged change in a single transaction. On failure the
// transaction is rolled back and the staged changes are kept until Rollback.
func (r *SQLAlertRepository) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.staged) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	insert := r.dialect.Rebind(`INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	update := r.dialect.Rebind(`UPDATE alerts SET
		rule_id = ?, category = ?, score_category = ?, severity = ?, title = ?, description = ?, status = ?,
		source_clause_id = ?, related_clause_ids = ?, affected_entities = ?, evidence = ?, metadata = ?,
		fingerprint = ?, analysis_id = ?, requires_human_review = ?, resolved_at = ?, resolved_by = ?,
		resolution_reason = ?, updated_at = ?
		WHERE id = ?`)

	for _, op := range r.staged {
		row, err := toRow(op.alert)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		switch op.kind {
		case opCreate:
			_, err = tx.ExecContext(ctx, insert,
				row.id, row.projectID, row.ruleID, row.category, row.scoreCategory, row.severity, row.title,
				row.description, row.status, row.sourceClauseID, row.related, row.entities, row.evidence,
				row.metadata, row.fingerprint, row.analysisID, row.review, row.resolvedAt, row.resolvedBy,
				row.resolutionReason, row.createdAt, row.updatedAt)
		case opUpdate:
			var res sql.Result
			res, err = tx.ExecContext(ctx, update,
				row.ruleID, row.category, row.scoreCategory, row.severity, row.title, row.description,
				row.status, row.sourceClauseID, row.related, row.entities, row.evidence, row.metadata,
				row.fingerprint, row.analysisID, row.review, row.resolvedAt, row.resolvedBy,
				row.resolutionReason, row.updatedAt, row.id)
			if err == nil {
				if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
					err = fmt.Errorf("update alert %s: %w", row.id, contracts.ErrNotFound)
				}
			}
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write alert %s: %w", op.alert.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.staged = nil
	return nil
}

// Rollback discards staged writes. Committed rows are untouched.
func (r *SQLAlertRepository) Rollback(ctx context.Context) error {
	r.mu.Lock()
	r.staged = nil
	r.mu.Unlock()
	return nil
}

// Pending reports the number of staged, uncommitted writes.
func (r *SQLAlertRepository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged)
}

type alertRow struct {
	id, projectID, ruleID, category, scoreCategory, severity, title, description, status string
	sourceClauseID, related, entities, evidence, metadata, fingerprint, analysisID       string
	review                                                                               bool
	resolvedAt                                                                           sql.NullString
	resolvedBy, resolutionReason, createdAt, updatedAt                                   string
}

func toRow(a *contracts.AlertRecord) (alertRow, error) {
	related, err := marshalOr(a.RelatedClauseIDs, "[]")
	if err != nil {
		return alertRow{}, err
	}
	entities, err := marshalOr(a.AffectedEntities, "{}")
	if err != nil {
		return alertRow{}, err
	}
	evidence, err := marshalOr(a.Evidence, "{}")
	if err != nil {
		return alertRow{}, err
	}
	metadata, err := marshalOr(a.Metadata, "{}")
	if err != nil {
		return alertRow{}, err
	}
	row := alertRow{
		id:               a.ID,
		projectID:        a.ProjectID,
		ruleID:           a.RuleID,
		category:         a.Category,
		scoreCategory:    string(a.ScoreCategory),
		severity:         string(a.Severity),
		title:            a.Title,
		description:      a.Description,
		status:           string(a.Status),
		sourceClauseID:   a.SourceClauseID,
		related:          related,
		entities:         entities,
		evidence:         evidence,
		metadata:         metadata,
		fingerprint:      a.Fingerprint(),
		analysisID:       a.AnalysisID,
		review:           a.RequiresHumanReview,
		resolvedBy:       a.ResolvedBy,
		resolutionReason: a.ResolutionReason,
		createdAt:        formatTime(a.CreatedAt),
		updatedAt:        formatTime(a.UpdatedAt),
	}
	if a.ResolvedAt != nil {
		row.resolvedAt = sql.NullString{String: formatTime(*a.ResolvedAt), Valid: true}
	}
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*contracts.AlertRecord, error) {
	var (
		a                                 contracts.AlertRecord
		scoreCategory, severity, status   string
		related, entities, evidence, meta string
		fingerprint                       string
		resolvedAt                        sql.NullString
		createdAt, updatedAt              string
	)
	if err := s.Scan(
		&a.ID, &a.ProjectID, &a.RuleID, &a.Category, &scoreCategory, &severity, &a.Title, &a.Description,
		&status, &a.SourceClauseID, &related, &entities, &evidence, &meta, &fingerprint, &a.AnalysisID,
		&a.RequiresHumanReview, &resolvedAt, &a.ResolvedBy, &a.ResolutionReason, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.ScoreCategory = contracts.Category(scoreCategory)
	a.Severity = contracts.Severity(severity)
	a.Status = contracts.AlertStatus(status)

	if err := unmarshalIf(related, &a.RelatedClauseIDs); err != nil {
		return nil, fmt.Errorf("corrupt related_clause_ids for alert %s: %w", a.ID, err)
	}
	if err := unmarshalIf(entities, &a.AffectedEntities); err != nil {
		return nil, fmt.Errorf("corrupt affected_entities for alert %s: %w", a.ID, err)
	}
	if err := unmarshalIf(evidence, &a.Evidence); err != nil {
		return nil, fmt.Errorf("corrupt evidence for alert %s: %w", a.ID, err)
	}
	if err := unmarshalIf(meta, &a.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt metadata for alert %s: %w", a.ID, err)
	}
	// The column is authoritative when metadata predates fingerprinting.
	if fingerprint != "" && a.Fingerprint() == "" {
		a.SetFingerprint(fingerprint)
	}

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		a.ResolvedAt = &t
	}
	return &a, nil
}

func marshalOr(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalIf(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
