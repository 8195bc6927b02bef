package events

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/store"

	_ "modernc.org/sqlite"
)

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPublisher()
	payload := map[string]any{"project_id": "p1"}

	require.NoError(t, p.Publish(ctx, contracts.EventScoreLow, payload))
	require.NoError(t, p.Publish(ctx, contracts.EventGamingDetected, nil))
	payload["project_id"] = "mutated"

	events := p.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "p1", events[0].Payload["project_id"])
	assert.Equal(t, 1, p.Count(contracts.EventScoreLow))

	boom := errors.New("down")
	p.FailWith(boom)
	assert.ErrorIs(t, p.Publish(ctx, "x", nil), boom)

	p.Reset()
	assert.Empty(t, p.Events())
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewLogPublisher(logger)

	require.NoError(t, p.Publish(context.Background(), contracts.EventRecalculated, map[string]any{"delta": 12, "project_id": "p1"}))
	out := buf.String()
	assert.Contains(t, out, "event_type=recalculated")
	assert.Contains(t, out, "delta=12")
	assert.Contains(t, out, "project_id=p1")
}

func TestFanOut(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryPublisher(), NewMemoryPublisher()
	boom := errors.New("b down")
	b.FailWith(boom)

	err := FanOut{a, b, Nop()}.Publish(ctx, "x", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.Count("x"), "failure in one publisher does not stop the others")

	assert.NoError(t, FanOut{}.Publish(ctx, "x", nil))
}

func TestRateLimitedPublisher(t *testing.T) {
	next := NewMemoryPublisher()
	p := NewRateLimitedPublisher(next, 0, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Publish(context.Background(), "x", nil))
	}
	assert.Equal(t, 20, next.Count("x"))

	slow := NewRateLimitedPublisher(next, 0.001, 1)
	require.NoError(t, slow.Publish(context.Background(), "y", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := slow.Publish(ctx, "y", nil)
	assert.Error(t, err, "second event must wait for a token")
	assert.Equal(t, 1, next.Count("y"))
}

func TestOutboxPublisher_CanonicalPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p := NewOutboxPublisher(db, store.DialectPostgres)
	p.newID = func() string { return "evt-1" }
	p.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	mock.ExpectExec(`INSERT INTO event_outbox \(id, event_type, payload, created_at, status\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs("evt-1", contracts.EventScoreLow, `{"global_score":42,"project_id":"p1"}`, "2026-01-01T00:00:00Z", StatusPending).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = p.Publish(context.Background(), contracts.EventScoreLow, map[string]any{"project_id": "p1", "global_score": 42})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_ErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO event_outbox`).WillReturnError(errors.New("disk full"))
	err = NewOutboxPublisher(db, store.DialectPostgres).Publish(context.Background(), "x", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestOutboxPublisher_SQLiteRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	p := NewOutboxPublisher(db, store.DialectSQLite)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	p.clock = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	require.NoError(t, p.Init(ctx))

	require.NoError(t, p.Publish(ctx, contracts.EventGamingDetected, map[string]any{"b": 2, "a": []any{"x"}}))
	require.NoError(t, p.Publish(ctx, contracts.EventRecalculated, map[string]any{"delta": -15.5}))

	pending, err := p.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, `{"a":["x"],"b":2}`, string(pending[0].Payload))

	require.NoError(t, p.MarkDelivered(ctx, pending[0].ID))
	pending, err = p.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, contracts.EventRecalculated, pending[0].EventType)
}
