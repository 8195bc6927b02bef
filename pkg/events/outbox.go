package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/coherence/pkg/store"
)

// Outbox statuses.
const (
	StatusPending   = "PENDING"
	StatusDelivered = "DELIVERED"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS event_outbox (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL,
	status TEXT NOT NULL
)`

// OutboxRecord is one stored event.
type OutboxRecord struct {
	ID        string
	EventType string
	Payload   []byte
	CreatedAt time.Time
	Status    string
}

// OutboxPublisher stores events in an outbox table for a relay to deliver.
// Payloads are written as RFC 8785 canonical JSON.
type OutboxPublisher struct {
	db      *sql.DB
	dialect store.Dialect
	clock   func() time.Time
	newID   func() string
}

// NewOutboxPublisher creates an outbox publisher for the given dialect.
func NewOutboxPublisher(db *sql.DB, dialect store.Dialect) *OutboxPublisher {
	return &OutboxPublisher{
		db:      db,
		dialect: dialect,
		clock:   time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Init creates the outbox table if needed.
func (p *OutboxPublisher) Init(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, outboxSchema); err != nil {
		return fmt.Errorf("migrate event_outbox: %w", err)
	}
	return nil
}

func (p *OutboxPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize %s payload: %w", eventType, err)
	}

	query := p.dialect.Rebind(`INSERT INTO event_outbox (id, event_type, payload, created_at, status) VALUES (?, ?, ?, ?, ?)`)
	_, err = p.db.ExecContext(ctx, query,
		p.newID(), eventType, string(canonical), p.clock().UTC().Format(time.RFC3339Nano), StatusPending)
	if err != nil {
		return fmt.Errorf("failed to store %s event: %w", eventType, err)
	}
	return nil
}

// Pending returns undelivered events, oldest first.
func (p *OutboxPublisher) Pending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	query := p.dialect.Rebind(`SELECT id, event_type, payload, created_at, status
		FROM event_outbox
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`)
	rows, err := p.db.QueryContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		var payload, created string
		if err := rows.Scan(&rec.ID, &rec.EventType, &payload, &created, &rec.Status); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt timestamp in outbox record %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkDelivered flags an event as delivered.
func (p *OutboxPublisher) MarkDelivered(ctx context.Context, id string) error {
	query := p.dialect.Rebind(`UPDATE event_outbox SET status = ? WHERE id = ?`)
	_, err := p.db.ExecContext(ctx, query, StatusDelivered, id)
	return err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
